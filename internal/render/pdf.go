package render

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/redlinehq/redline/internal/diff"
	"github.com/redlinehq/redline/model"
)

// PDF renders the agreement as an A4 document: title, field table, and on
// signed documents a certificate block with signer lines and a verification
// QR code.
type PDF struct {
	// VerificationBase is the public URL prefix the QR code points at, e.g.
	// "https://redline.example.com". Empty disables the QR block.
	VerificationBase string
}

// NewPDF creates a PDF renderer.
func NewPDF(verificationBase string) *PDF {
	return &PDF{VerificationBase: verificationBase}
}

// Render implements Renderer.
func (p *PDF) Render(_ context.Context, doc model.Document, signers []model.Signer) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	title := doc.Title
	if title == "" {
		title = "Non-Disclosure Agreement"
	}
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, fmt.Sprintf("Document %s", doc.ID), "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	// Field table in the document's own field order, leftovers sorted.
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 7, "Term", "B", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Value", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, field := range orderedFields(doc) {
		pdf.CellFormat(70, 7, diff.FormatFieldPath(field), "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 7, formatValue(doc.Data[field]), "", "L", false)
	}

	if doc.WorkflowState == model.StateSigningComplete || doc.WorkflowState == model.StateSigningInProgress {
		if err := p.certificateBlock(pdf, doc, signers); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PDF) certificateBlock(pdf *gofpdf.Fpdf, doc model.Document, signers []model.Signer) error {
	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Signature Certificate", "T", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)

	for _, sg := range signers {
		line := fmt.Sprintf("%s (%s)", sg.Email, sg.Role)
		if sg.Status == model.SignerSigned && sg.SignedAt != nil {
			line = fmt.Sprintf("%s - signed by %s on %s", line, sg.Name, sg.SignedAt.Format("2006-01-02 15:04 MST"))
		} else {
			line += " - signature pending"
		}
		pdf.CellFormat(0, 7, line, "", 1, "L", false, 0, "")
	}

	if p.VerificationBase == "" {
		return nil
	}
	verifyURL := fmt.Sprintf("%s/verify/%s", p.VerificationBase, doc.ID)
	qrPNG, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode verification qr: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("verify_qr", opts, bytes.NewReader(qrPNG))
	pdf.Ln(4)
	y := pdf.GetY()
	pdf.ImageOptions("verify_qr", 20, y, 28, 28, false, opts, 0, "")
	pdf.SetXY(52, y+10)
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, "Scan to verify: "+verifyURL, "", 1, "L", false, 0, "")
	return nil
}

func orderedFields(doc model.Document) []string {
	seen := make(map[string]bool, len(doc.FieldOrder))
	fields := make([]string, 0, len(doc.Data))
	for _, f := range doc.FieldOrder {
		if _, ok := doc.Data[f]; ok && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	var rest []string
	for f := range doc.Data {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	return append(fields, rest...)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprintf("%v", t)
	}
}
