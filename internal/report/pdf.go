package report

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/dctgate/internal/common"
)

const qrImageName = "trace-sha256"

// SaveSummaryPDF renders sum into a PDF document in the given language.
func SaveSummaryPDF(sum Summary, out string, lang Language) error {
	tr := NewTranslator(lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(tr.T("title"), true)
	pdf.SetAuthor("dctctl", false)
	pdf.SetCreator("dctctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	utf := pdf.UnicodeTranslatorFromDescriptor("")

	addPDFTitle(pdf, utf(tr.T("title")))
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, utf(tr.Plural("count.records", int64(sum.Records))+", "+tr.Plural("count.skipped", sum.SkippedLines)))
	pdf.Ln(10)
	addFileSection(pdf, tr, utf, sum)
	addCountSection(pdf, tr, utf, tr.T("section.counts"), sum.ByProtocol)
	addCountSection(pdf, tr, utf, tr.T("section.encap"), sum.ByEncap)
	addCountSection(pdf, tr, utf, tr.T("section.direction"), sum.ByDirection)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addFileSection(pdf *gofpdf.Fpdf, tr Translator, utf func(string) string, sum Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, utf(tr.T("section.file")))
	pdf.Ln(8)

	top := pdf.GetY()
	span := "-"
	if sum.First != "" {
		span = sum.First + " - " + sum.Last
	}
	items := []struct {
		label string
		value string
	}{
		{label: "label.path", value: sum.File},
		{label: "label.size", value: common.FormatBytes(sum.SizeBytes)},
		{label: "label.magic", value: sum.MagicLine},
		{label: "label.start", value: formatTime(sum.Start)},
		{label: "label.records", value: strconv.Itoa(sum.Records)},
		{label: "label.comments", value: strconv.Itoa(sum.Comments)},
		{label: "label.skipped", value: strconv.FormatInt(sum.SkippedLines, 10)},
		{label: "label.span", value: span},
		{label: "label.generated", value: formatTime(sum.GeneratedAt)},
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(40, 6, utf(tr.T(item.label)), "", 0, "L", false, 0, "")
		pdf.CellFormat(100, 6, emptyFallback(item.value, "-"), "", 1, "L", false, 0, "")
	}
	if sum.SHA256 != "" {
		pdf.CellFormat(40, 6, utf(tr.T("label.sha256")), "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 6, sum.SHA256, "", 1, "L", false, 0, "")
		addHashQR(pdf, tr, utf, sum.SHA256, top)
	}
	pdf.Ln(4)
}

// addHashQR places a QR code of the file hash in the top right of the file
// section.
func addHashQR(pdf *gofpdf.Fpdf, tr Translator, utf func(string) string, hash string, top float64) {
	png, err := HashToQR(hash, 256)
	if err != nil {
		common.Warnf("render hash QR: %v", err)
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImageName, opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	const size = 35.0
	x := pageW - right - size
	y, x0 := pdf.GetY(), pdf.GetX()
	pdf.ImageOptions(qrImageName, x, top, size, size, false, opts, 0, "")
	pdf.SetXY(x, top+size)
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(size, 4, utf(tr.T("qr.caption")), "", 0, "C", false, 0, "")
	pdf.SetXY(x0, y)
}

func addCountSection(pdf *gofpdf.Fpdf, tr Translator, utf func(string) string, title string, rows []Count) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, utf(title))
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, utf(tr.T("empty")), "", "L", false)
		pdf.Ln(2)
		return
	}

	headers := []string{tr.T("col.name"), tr.T("col.records"), tr.T("col.bytes")}
	widths := []float64{90, 40, 50}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, utf(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		values := []string{
			row.Name,
			strconv.Itoa(row.Records),
			common.FormatBytes(row.Bytes),
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		lines := pdf.SplitText(emptyFallback(val, "-"), widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+float64(maxLines)*lineHeight)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}
