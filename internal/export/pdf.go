package export

import (
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/aaj441/aaronos-core/internal/domain"
)

func writePDF(path, title, author string, chapters []domain.GeneratedChapter) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)

	// Title page.
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.MultiCell(0, 12, title, "", "L", false)
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 8, "by "+author, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	for _, ch := range chapters {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 16)
		pdf.MultiCell(0, 9, fmt.Sprintf("Chapter %d: %s", ch.Number, ch.Title), "", "L", false)
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 5.5, ch.Content, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf export: %w", err)
	}
	return nil
}
