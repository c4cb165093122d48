// Package extract converts fetched PDFs into structured resume records.
package extract

import (
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Text is the raw text of one document, whole and per page (page order
// preserved).
type Text struct {
	Full  string
	Pages []string
}

// Empty reports whether no usable text was extracted.
func (t Text) Empty() bool {
	return strings.TrimSpace(t.Full) == ""
}

// ExtractText parses the PDF at path into raw text. A document that fails to
// parse (corrupt, encrypted, image-only) yields empty text rather than an
// error; the pipeline's fallback still produces a record for it. The parser
// can panic on hostile files, so the whole parse is wrapped in a recover.
func ExtractText(path string, logger *zap.Logger) (out Text) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("pdf parser panicked", zap.String("path", path), zap.Any("panic", r))
			out = Text{}
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		logger.Debug("pdf open failed", zap.String("path", path), zap.Error(err))
		return Text{}
	}
	defer f.Close()

	var (
		pages []string
		full  strings.Builder
	)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("pdf page unreadable",
				zap.String("path", path),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		pages = append(pages, text)
		full.WriteString(text)
		full.WriteString("\n")
	}
	return Text{Full: full.String(), Pages: pages}
}
