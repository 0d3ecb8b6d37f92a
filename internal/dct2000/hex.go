package dct2000

const hexDigits = "0123456789abcdef"

const invalidNibble = 0xff

var (
	nibbleTable = buildNibbleTable()
	pairTable   = buildPairTable()
)

func buildNibbleTable() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = invalidNibble
	}
	for i := 0; i < 10; i++ {
		t['0'+i] = byte(i)
	}
	for i := 0; i < 6; i++ {
		t['a'+i] = byte(10 + i)
		t['A'+i] = byte(10 + i)
	}
	return t
}

// buildPairTable precomputes the byte value of every two-character hex pair.
// Characters that are not hex digits contribute a zero nibble.
func buildPairTable() *[256][256]byte {
	var t [256][256]byte
	for hi := 0; hi < 256; hi++ {
		h := nibbleTable[hi]
		if h == invalidNibble {
			h = 0
		}
		for lo := 0; lo < 256; lo++ {
			l := nibbleTable[lo]
			if l == invalidNibble {
				l = 0
			}
			t[hi][lo] = h<<4 | l
		}
	}
	return &t
}

// HexNibble returns the value of a single hex digit.
func HexNibble(c byte) (byte, bool) {
	v := nibbleTable[c]
	return v, v != invalidNibble
}

// HexByte decodes the pair hi,lo through the lookup table.
func HexByte(hi, lo byte) byte {
	return pairTable[hi][lo]
}

// HexChar returns the lowercase digit for the low nibble of v.
func HexChar(v byte) byte {
	return hexDigits[v&0x0f]
}

// AppendHex appends two lowercase hex characters per byte of src.
func AppendHex(dst, src []byte) []byte {
	for _, b := range src {
		dst = append(dst, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return dst
}

// DecodeHex converts pairs of hex characters into bytes. A trailing odd
// character is ignored. It reports false if any non-hex character was seen.
func DecodeHex(dst, src []byte) ([]byte, bool) {
	valid := true
	for i := 0; i+1 < len(src); i += 2 {
		if nibbleTable[src[i]] == invalidNibble || nibbleTable[src[i+1]] == invalidNibble {
			valid = false
		}
		dst = append(dst, pairTable[src[i]][src[i+1]])
	}
	return dst, valid
}

// isCanonicalHex reports whether AppendHex would spell the bytes of src
// exactly as src: even length, lowercase digits only.
func isCanonicalHex(src []byte) bool {
	if len(src)%2 != 0 {
		return false
	}
	for _, c := range src {
		if !isDigit(c) && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
