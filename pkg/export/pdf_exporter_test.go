package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificatePDFRender(t *testing.T) {
	renderer := NewCertificatePDF("")
	out, err := renderer.Render(CertificateDocument{
		HolderName:        "Jane Learner",
		CertificateNumber: "IELS-2026-ABC123",
		TestType:          "ielts",
		AttemptKind:       "post-test",
		OverallScore:      "6.5",
		IssuedAt:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		VerificationURL:   "https://iels.example/certificates/verify/ABCDEFGHIJ",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCertificatePDFRequiresNumber(t *testing.T) {
	_, err := NewCertificatePDF("IELS").Render(CertificateDocument{HolderName: "x"})
	assert.Error(t, err)
}
