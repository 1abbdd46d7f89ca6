package services

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDOCX_MissingDocument(t *testing.T) {
	_, err := NewFileExtractService().ExtractDOCX(docxWithout(t))
	assert.Error(t, err)
}

func TestExtractDOCX_LineBreaksAndTabs(t *testing.T) {
	data := docxBytes(t, `<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`)

	text, err := NewFileExtractService().ExtractDOCX(data)

	require.NoError(t, err)
	assert.Equal(t, "a\tb\nc", text)
}

func TestExtractPDF_RejectsGarbage(t *testing.T) {
	_, err := NewFileExtractService().ExtractPDF([]byte("plain text, not a pdf"))
	assert.Error(t, err)
}

func TestNormalizeExtractedText(t *testing.T) {
	in := "  Title \r\n\r\n\r\n\r\n body line  \n\n\nend  "
	assert.Equal(t, "Title\n\nbody line\n\nend", normalizeExtractedText(in))
}

func docxWithout(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
