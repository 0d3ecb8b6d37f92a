package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/dct2000"
	"example.com/dctgate/internal/export"
	"example.com/dctgate/internal/report"
)

// runDecode writes one JSON record view per line to w.
func runDecode(path string, w io.Writer, opts []dct2000.Option) (int, int64, error) {
	rd, err := dct2000.OpenFile(path, opts...)
	if err != nil {
		return 0, 0, err
	}
	defer rd.Close()
	enc := json.NewEncoder(w)
	n := 0
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, rd.Index().SkippedLines, err
		}
		if err := enc.Encode(export.NewRecordView(rec)); err != nil {
			return n, rd.Index().SkippedLines, err
		}
		n++
	}
	return n, rd.Index().SkippedLines, nil
}

// runRetime shifts every record of in by delta into out and appends the
// changes to edits.
func runRetime(in, out string, delta time.Duration, edits *common.EditLog, opts []dct2000.Option) (dct2000.RetimeResult, error) {
	rd, err := dct2000.OpenFile(in, opts...)
	if err != nil {
		return dct2000.RetimeResult{}, err
	}
	defer rd.Close()
	f, err := os.Create(out)
	if err != nil {
		return dct2000.RetimeResult{}, err
	}
	res, err := dct2000.Retime(rd, f, delta)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return res, err
	}
	source := filepath.Base(in)
	for i := range res.Edits {
		res.Edits[i].Source = source
	}
	if edits != nil {
		if err := edits.AppendAll(res.Edits); err != nil {
			return res, fmt.Errorf("append edit log: %w", err)
		}
	}
	return res, nil
}

type lineMismatch struct {
	Offset   int64
	Original string
	Dumped   string
}

type verifyResult struct {
	Records    int
	Skipped    int64
	Mismatches []lineMismatch
}

// runVerify reads every record and checks that writing it back reproduces
// the original line byte for byte.
func runVerify(path string, opts []dct2000.Option) (verifyResult, error) {
	var res verifyResult
	data, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	rd, err := dct2000.Open(bytes.NewReader(data), opts...)
	if err != nil {
		return res, err
	}
	d := dct2000.NewDumper(io.Discard, rd)
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Records++
		dumped, err := d.DumpLine(rec.Offset, rec.Relative, rec.Frame)
		if err != nil {
			return res, fmt.Errorf("dump offset %d: %w", rec.Offset, err)
		}
		dumped = bytes.TrimSuffix(dumped, []byte("\n"))
		original := lineAt(data, rec.Offset)
		if !bytes.Equal(dumped, original) {
			res.Mismatches = append(res.Mismatches, lineMismatch{
				Offset:   rec.Offset,
				Original: string(original),
				Dumped:   string(dumped),
			})
		}
	}
	res.Skipped = rd.Index().SkippedLines
	return res, nil
}

func lineAt(data []byte, offset int64) []byte {
	if offset < 0 || offset >= int64(len(data)) {
		return nil
	}
	line := data[offset:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return bytes.TrimSuffix(line, []byte("\r"))
}

type exportResult struct {
	Encap   dct2000.Encapsulation
	Written int
	Skipped int
}

// runExport writes the records of one encapsulation to a pcap file. An
// empty encapName picks the most common exportable kind in the trace.
func runExport(in, out, encapName string, snaplen int, opts []dct2000.Option) (exportResult, error) {
	var res exportResult
	if encapName != "" {
		encap, ok := dct2000.ParseEncapsulation(encapName)
		if !ok {
			return res, fmt.Errorf("unknown encapsulation %q", encapName)
		}
		res.Encap = encap
	} else {
		_, idx, err := dct2000.ScanFile(in, opts...)
		if err != nil {
			return res, err
		}
		encap, ok := export.ChooseEncapsulation(idx)
		if !ok {
			return res, errNoExportable
		}
		res.Encap = encap
	}

	rd, err := dct2000.OpenFile(in, opts...)
	if err != nil {
		return res, err
	}
	defer rd.Close()
	f, err := os.Create(out)
	if err != nil {
		return res, err
	}
	pw, err := export.NewWriterFor(f, res.Encap, snaplen)
	if err == nil {
		for {
			var rec dct2000.Record
			rec, err = rd.Next()
			if err != nil {
				break
			}
			if _, err = pw.WriteRecord(rec); err != nil {
				break
			}
		}
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return res, err
	}
	res.Written, res.Skipped = pw.Written, pw.Skipped
	return res, nil
}

type batchResult struct {
	Input   string
	Output  string
	Records int
	Err     error
}

// runBatch summarizes every trace below inDir into outDir using up to
// concurrency workers. Results are ordered by input path.
func runBatch(inDir, outDir string, concurrency int, opts []dct2000.Option) ([]batchResult, error) {
	var inputs []string
	err := filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != inDir && filepath.Clean(path) == filepath.Clean(outDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if report.IsTrace(path) {
			inputs = append(inputs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(inputs)
	if len(inputs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]batchResult, len(inputs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = summarizeOne(inDir, inputs[i], outDir, opts)
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results, nil
}

func summarizeOne(inDir, input, outDir string, opts []dct2000.Option) batchResult {
	res := batchResult{Input: input}
	rel, err := filepath.Rel(inDir, input)
	if err != nil {
		rel = filepath.Base(input)
	}
	name := strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
	res.Output = filepath.Join(outDir, name+".summary.json")
	sum, err := report.BuildSummary(input, opts...)
	if err != nil {
		res.Err = err
		common.Warnf("batch %s: %v", input, err)
		return res
	}
	sum.File = filepath.ToSlash(rel)
	res.Records = sum.Records
	res.Err = report.SaveSummaryJSON(sum, res.Output)
	return res
}
