// Package ingest turns uploaded study material into a document payload the
// oracle can consume. PDFs travel as base64 blobs and text travels as text;
// neither is truncated here.
package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"study-companion/internal/domain"
	"study-companion/internal/logger"
)

const (
	pdfMIME  = "application/pdf"
	textMIME = "text/plain"
)

// DefaultMaxBytes caps uploads when no explicit limit is configured.
const DefaultMaxBytes int64 = 20 << 20

type Ingestor struct {
	maxBytes int64
	log      *zap.Logger
}

func New(maxBytes int64, log *zap.Logger) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Ingestor{
		maxBytes: maxBytes,
		log:      logger.OrNop(log).Named("ingest"),
	}
}

// Ingest reads the whole stream and classifies it by content.
func (i *Ingestor) Ingest(name string, r io.Reader) (domain.DocumentPayload, error) {
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return nil, i.fail(name, domain.IngestUnreadable, fmt.Errorf("read: %w", err))
	}
	if int64(len(data)) > i.maxBytes {
		return nil, i.fail(name, domain.IngestTooLarge, domain.ErrFileTooLarge)
	}
	if len(data) == 0 {
		return nil, i.fail(name, domain.IngestEmpty, domain.ErrEmptyFile)
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is(pdfMIME):
		i.log.Info("ingested document",
			zap.String("file", name),
			zap.String("mime", pdfMIME),
			zap.Int("bytes", len(data)))
		return domain.BinaryDocument{
			Data:     base64.StdEncoding.EncodeToString(data),
			MIMEType: pdfMIME,
		}, nil
	case isText(mtype) && utf8.Valid(data):
		i.log.Info("ingested document",
			zap.String("file", name),
			zap.String("mime", mtype.String()),
			zap.Int("bytes", len(data)))
		return domain.TextDocument{Text: string(data)}, nil
	default:
		return nil, i.fail(name, domain.IngestUnsupported,
			fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, mtype.String()))
	}
}

// IngestFile opens path and ingests its content under the file's base name.
func (i *Ingestor) IngestFile(path string) (domain.DocumentPayload, error) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, i.fail(name, domain.IngestUnreadable, err)
	}
	defer f.Close()
	return i.Ingest(name, f)
}

func (i *Ingestor) fail(name string, kind domain.IngestErrorKind, err error) error {
	ierr := &domain.IngestError{Kind: kind, FileName: name, Err: err}
	i.log.Warn("ingest rejected", zap.String("file", name), zap.String("kind", kind.String()), zap.Error(err))
	return ierr
}

// isText reports whether the detected type is plain text or derives from it
// (markdown, csv, json and friends).
func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(textMIME) {
			return true
		}
	}
	return false
}

// IsIngestError reports whether err came from the ingestor.
func IsIngestError(err error) bool {
	var ierr *domain.IngestError
	return errors.As(err, &ierr)
}
