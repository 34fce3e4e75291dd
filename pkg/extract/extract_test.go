package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesPlainText(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		mime     string
		want     string
	}{
		{"text mime", []byte("hello"), "notes", "text/plain; charset=utf-8", "hello"},
		{"markdown ext", []byte("# Title\nbody"), "readme.md", "", "# Title\nbody"},
		{"invalid utf8 dropped", []byte("ab\xffcd"), "a.txt", "", "abcd"},
		{"nul stripped", []byte("a\x00b"), "a.txt", "text/plain", "ab"},
		{"unknown falls back", []byte("raw bytes"), "blob.bin", "application/octet-stream", "raw bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bytes(tt.data, tt.filename, tt.mime))
		})
	}
}

func TestBytesBrokenPDFFallsBack(t *testing.T) {
	got := Bytes([]byte("not really a pdf"), "paper.pdf", "application/pdf")
	assert.Equal(t, "not really a pdf", got)
}

func TestBytesBrokenDOCXFallsBack(t *testing.T) {
	got := Bytes([]byte("plain"), "memo.docx", "")
	assert.Equal(t, "plain", got)
}

func TestBytesDOCX(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Overview</w:t></w:r></w:p>
<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
</w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(docXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got := Bytes(buf.Bytes(), "memo.docx", docxMIME)
	assert.Equal(t, "# Overview\n\nFirst paragraph.\n\nSecond paragraph.", got)
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("Heading1"))
	assert.Equal(t, 3, headingLevel("heading 3"))
	assert.Equal(t, 0, headingLevel("Title"))
	assert.Equal(t, 0, headingLevel("Heading9"))
}
