package document

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func cell(text string) string {
	return `<w:tc><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:tc>`
}

func para(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func TestExtract_DOCXTable(t *testing.T) {
	body := para("Packing list 4471") +
		`<w:tbl>` +
		`<w:tr>` + cell("Part No") + cell("Serial") + `</w:tr>` +
		`<w:tr>` + cell("A") + cell("S1") + `</w:tr>` +
		`<w:tr>` + cell("A") + cell("S2") + `</w:tr>` +
		`</w:tbl>`

	e := NewExtractor(nil, nil, zap.NewNop())
	res, err := e.Extract(context.Background(), extraction.Source{Data: buildDOCX(t, body), AdapterID: router.AdapterDOCX}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Part No", "Serial"}, res.SourceFields)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "A", res.Items[0].PartNumber)
	assert.Equal(t, "S2", res.Items[1].SerialNumber)
	assert.InDelta(t, docxTableScale, res.FieldConfidence["Part No"], 1e-9)
	assert.Contains(t, res.RawSample, "Packing list 4471")
}

func TestExtract_DOCXProseUsesStructurer(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64, thinking bool) (*llm.GenerateResponseResult, error) {
		assert.Contains(t, prompt, "Two pumps, model P-9")
		return &llm.GenerateResponseResult{Content: `{"fields":["model"],"items":[{"fields":{"model":"P-9"},"part_number":"P-9","quantity":2,"confidence":0.7}]}`}, nil
	}

	e := NewExtractor(nil, extraction.NewTextStructurer(mock, zap.NewNop()), zap.NewNop())
	res, err := e.Extract(context.Background(), extraction.Source{Data: buildDOCX(t, para("Two pumps, model P-9")), AdapterID: router.AdapterDOCX}, nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 2, *res.Items[0].Quantity)
	assert.InDelta(t, 0.7, res.Items[0].Confidence, 1e-9)
}

func TestExtract_ImageViaVisionTable(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.TranscribeFunc = func(ctx context.Context, prompt string, data []byte, mimeType string) (*llm.GenerateResponseResult, error) {
		assert.Equal(t, "image/png", mimeType)
		return &llm.GenerateResponseResult{Content: "INVOICE 22\n\n| SKU | Qty |\n|---|---|\n| W-1 | 4 |\n| W-2 | 6 |\n\nThank you"}, nil
	}

	e := NewExtractor(mock, nil, zap.NewNop())
	res, err := e.Extract(context.Background(), extraction.Source{Data: []byte("png"), MIMEType: "image/png", AdapterID: router.AdapterVision}, nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "W-2", res.Items[1].PartNumber)
	assert.Equal(t, 6, *res.Items[1].Quantity)
	assert.InDelta(t, ocrTableScale, res.FieldConfidence["SKU"], 1e-9)
}

func TestExtract_VisualFailures(t *testing.T) {
	e := NewExtractor(nil, nil, zap.NewNop())
	_, err := e.Extract(context.Background(), extraction.Source{Data: []byte("%PDF"), AdapterID: router.AdapterPDF}, nil)
	var extErr *extraction.Error
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "no vision backend configured", extErr.Reason)

	mock := llm.NewMockLLMClient()
	backendDown := errors.New("connection refused")
	mock.TranscribeFunc = func(ctx context.Context, prompt string, data []byte, mimeType string) (*llm.GenerateResponseResult, error) {
		return nil, backendDown
	}
	e = NewExtractor(mock, nil, zap.NewNop())
	_, err = e.Extract(context.Background(), extraction.Source{Data: []byte("%PDF"), AdapterID: router.AdapterPDF}, nil)
	require.True(t, errors.As(err, &extErr))
	assert.ErrorIs(t, err, backendDown)
}

func TestParseMarkdownTable(t *testing.T) {
	header, rows := parseMarkdownTable(strings.Join([]string{
		"Header text",
		"| Part | Serial |",
		"| :--- | ---: |",
		"| A | S1 |",
		"",
		"| Other | Table |",
		"| x | y |",
	}, "\n"))
	assert.Equal(t, []string{"Part", "Serial"}, header)
	assert.Equal(t, [][]string{{"A", "S1"}}, rows)

	header, rows = parseMarkdownTable("no tables here\n| lonely |")
	assert.Nil(t, header)
	assert.Nil(t, rows)
}
