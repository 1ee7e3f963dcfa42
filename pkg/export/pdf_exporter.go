package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// CertificateDocument is the content printed on a certificate.
type CertificateDocument struct {
	HolderName        string
	CertificateNumber string
	TestType          string
	AttemptKind       string
	OverallScore      string
	IssuedAt          time.Time
	VerificationURL   string
}

// CertificatePDF renders certificates as a single landscape A4 page.
type CertificatePDF struct {
	Organization string
}

// NewCertificatePDF constructs a certificate renderer.
func NewCertificatePDF(organization string) *CertificatePDF {
	if organization == "" {
		organization = "IELS"
	}
	return &CertificatePDF{Organization: organization}
}

// Render draws the certificate and a QR code pointing at the verification URL.
func (e *CertificatePDF) Render(doc CertificateDocument) ([]byte, error) {
	if doc.CertificateNumber == "" {
		return nil, fmt.Errorf("certificate number required")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetY(30)
	pdf.CellFormat(0, 14, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(0, 10, fmt.Sprintf("%s English Test Programme", e.Organization), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 14, doc.HolderName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("has completed the %s %s", strings.ToUpper(doc.TestType), doc.AttemptKind), "", 1, "C", false, 0, "")

	if doc.OverallScore != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 18)
		pdf.CellFormat(0, 10, fmt.Sprintf("Overall score: %s", doc.OverallScore), "", 1, "C", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(20, 170)
	pdf.CellFormat(150, 6, fmt.Sprintf("Certificate No. %s", doc.CertificateNumber), "", 2, "L", false, 0, "")
	pdf.CellFormat(150, 6, fmt.Sprintf("Issued %s", doc.IssuedAt.UTC().Format("2 January 2006")), "", 2, "L", false, 0, "")
	if doc.VerificationURL != "" {
		pdf.CellFormat(150, 6, doc.VerificationURL, "", 2, "L", false, 0, doc.VerificationURL)

		png, err := qrcode.Encode(doc.VerificationURL, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader("verification-qr", opts, bytes.NewReader(png))
		pdf.ImageOptions("verification-qr", 242, 152, 35, 35, false, opts, 0, doc.VerificationURL)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
