// Package extract turns uploaded files into plain text. Extraction never
// fails: unknown or broken formats degrade to a best-effort UTF-8 decode of
// the raw bytes.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"knowledge_backend/pkg/logging"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".log":      true,
	".json":     true,
}

// Bytes extracts text from data, dispatching on MIME type first and the
// filename extension second.
func Bytes(data []byte, filename, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	var (
		text string
		ok   bool
	)
	switch {
	case mimeType == "application/pdf" || ext == ".pdf":
		text, ok = pdfText(data)
	case mimeType == docxMIME || ext == ".docx":
		text, ok = docxText(data)
	case strings.HasPrefix(mimeType, "text/") || textExtensions[ext]:
		text, ok = decodeUTF8(data), true
	}
	if !ok {
		text = decodeUTF8(data)
	}
	// postgres text columns reject NUL
	return strings.ReplaceAll(text, "\x00", "")
}

func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func pdfText(data []byte) (text string, ok bool) {
	defer func() {
		// the pdf reader panics on some malformed inputs
		if r := recover(); r != nil {
			logging.Logger.Warn("extract: pdf parser panic", "panic", r)
			text, ok = "", false
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logging.Logger.Warn("extract: open pdf failed", "error", err)
		return "", false
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			logging.Logger.Warn("extract: pdf page failed", "page", i, "error", err)
			continue
		}
		if content = strings.TrimSpace(content); content != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n\n"), true
}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

func docxText(data []byte) (string, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logging.Logger.Warn("extract: open docx failed", "error", err)
		return "", false
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", false
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", false
		}
		var doc docxDocument
		if err := xml.Unmarshal(content, &doc); err != nil {
			logging.Logger.Warn("extract: parse docx failed", "error", err)
			return "", false
		}
		return docxParagraphs(doc), true
	}
	return "", true
}

// docxParagraphs joins paragraphs with blank lines and renders Heading
// styles as markdown headings so the chunker can split on them.
func docxParagraphs(doc docxDocument) string {
	var parts []string
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t)
			}
		}
		line := strings.TrimSpace(b.String())
		if line == "" {
			continue
		}
		if level := headingLevel(p.Props.Style.Val); level > 0 {
			line = strings.Repeat("#", level) + " " + line
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n\n")
}

func headingLevel(style string) int {
	s := strings.ToLower(style)
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	n := strings.TrimSpace(strings.TrimPrefix(s, "heading"))
	if len(n) == 1 && n[0] >= '1' && n[0] <= '6' {
		return int(n[0] - '0')
	}
	return 0
}
