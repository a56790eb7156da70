package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-companion/internal/domain"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func TestIngestPDF(t *testing.T) {
	payload, err := New(0, nil).Ingest("lecture.pdf", bytes.NewReader(samplePDF))
	require.NoError(t, err)

	doc, ok := payload.(domain.BinaryDocument)
	require.True(t, ok, "expected binary document, got %T", payload)
	assert.Equal(t, "application/pdf", doc.MIMEType)

	raw, err := base64.StdEncoding.DecodeString(doc.Data)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, raw)
}

func TestIngestLargeTextIsNotTruncated(t *testing.T) {
	text := strings.Repeat("Entropy always increases. ", 2000)
	require.Greater(t, len(text), 40000)

	payload, err := New(0, nil).Ingest("notes.txt", strings.NewReader(text))
	require.NoError(t, err)

	doc, ok := payload.(domain.TextDocument)
	require.True(t, ok)
	assert.Equal(t, text, doc.Text)
}

func TestIngestMarkdownCountsAsText(t *testing.T) {
	payload, err := New(0, nil).Ingest("notes.md", strings.NewReader("# Thermodynamics\n\n- first law\n- second law\n"))
	require.NoError(t, err)
	assert.IsType(t, domain.TextDocument{}, payload)
}

func TestIngestRejections(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	latin1 := []byte("caf\xe9 au lait, cr\xe8me br\xfbl\xe9e")

	cases := []struct {
		name string
		data []byte
		kind domain.IngestErrorKind
		is   error
	}{
		{"photo.png", png, domain.IngestUnsupported, domain.ErrUnsupportedFile},
		{"legacy.txt", latin1, domain.IngestUnsupported, domain.ErrUnsupportedFile},
		{"empty.txt", nil, domain.IngestEmpty, domain.ErrEmptyFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(0, nil).Ingest(tc.name, bytes.NewReader(tc.data))
			var ierr *domain.IngestError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tc.kind, ierr.Kind)
			assert.Equal(t, tc.name, ierr.FileName)
			assert.ErrorIs(t, err, tc.is)
			assert.NotEmpty(t, ierr.Reason())
			assert.True(t, IsIngestError(err))
		})
	}
}

func TestIngestTooLarge(t *testing.T) {
	_, err := New(16, nil).Ingest("big.txt", strings.NewReader(strings.Repeat("a", 17)))
	var ierr *domain.IngestError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, domain.IngestTooLarge, ierr.Kind)

	_, err = New(16, nil).Ingest("fits.txt", strings.NewReader(strings.Repeat("a", 16)))
	assert.NoError(t, err)
}

func TestIngestUnreadable(t *testing.T) {
	_, err := New(0, nil).Ingest("broken.txt", iotest.ErrReader(errors.New("disk on fire")))
	var ierr *domain.IngestError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, domain.IngestUnreadable, ierr.Kind)
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Newton's laws of motion"), 0o600))

	payload, err := New(0, nil).IngestFile(path)
	require.NoError(t, err)
	assert.Equal(t, domain.TextDocument{Text: "Newton's laws of motion"}, payload)

	_, err = New(0, nil).IngestFile(filepath.Join(dir, "missing.pdf"))
	var ierr *domain.IngestError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, domain.IngestUnreadable, ierr.Kind)
	assert.Equal(t, "missing.pdf", ierr.FileName)
}

func TestIsIngestError(t *testing.T) {
	assert.False(t, IsIngestError(errors.New("other")))
	assert.False(t, IsIngestError(nil))
}
