package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnreadableFile = errors.New("file is neither PDF nor UTF-8 text")

// ExtractText returns the plain text of an uploaded file. PDFs are detected
// by extension, content type or magic bytes; everything else must be UTF-8.
func ExtractText(filename, contentType string, data []byte) (string, error) {
	if isPDF(filename, contentType, data) {
		return extractPDF(data)
	}
	if !utf8.Valid(data) {
		return "", ErrUnreadableFile
	}
	return string(data), nil
}

func isPDF(filename, contentType string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") ||
		strings.HasPrefix(contentType, "application/pdf") ||
		bytes.HasPrefix(data, []byte("%PDF-"))
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}
