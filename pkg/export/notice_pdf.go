package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// NoticeRenderer produces the printable parking notice document. It renders
// exclusively from the payload frozen at issuance, so a reprint is always
// byte-equivalent in content to the original.
type NoticeRenderer struct{}

// NewNoticeRenderer constructs a notice renderer.
func NewNoticeRenderer() *NoticeRenderer {
	return &NoticeRenderer{}
}

// Render creates the notice PDF from a stored payload and QR token.
func (r *NoticeRenderer) Render(payload models.NoticePayload, qrToken string) ([]byte, error) {
	if payload.NoticeID == "" {
		return nil, fmt.Errorf("notice payload missing id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PARKING VIOLATION NOTICE", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Notice", payload.NoticeID},
		{"Violation", payload.ViolationID},
		{"Category", string(payload.Category)},
		{"Site", payload.Site},
		{"Position", payload.PositionLabel},
		{"Vehicle", fmt.Sprintf("%s (%s)", payload.Plate, payload.Jurisdiction)},
		{"Detected", payload.DetectedAt.Format(time.RFC1123)},
		{"Issued", payload.IssuedAt.Format(time.RFC1123)},
		{"Escalation deadline", payload.EscalationDeadline.Format(time.RFC1123)},
		{"Tow deadline", payload.TowDeadline.Format(time.RFC1123)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(125, 7, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Instructions", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 6, payload.Instructions, "", "", false)

	pdf.Ln(6)
	pdf.SetFont("Courier", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Reference token: %s", qrToken), "", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render notice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
