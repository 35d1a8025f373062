package tabular

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
)

func TestExtract_CSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfPart Number,S/N,Qty,Notes\nA,S1,,\nA,S2,,fragile\nB,,5 pcs,\n\n")

	res, err := NewExtractor().Extract(context.Background(), extraction.Source{Data: data, AdapterID: router.AdapterCSV}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Part Number", "S/N", "Qty", "Notes"}, res.SourceFields)
	require.Len(t, res.Items, 3)

	assert.Equal(t, "A", res.Items[0].PartNumber)
	assert.Equal(t, "S1", res.Items[0].SerialNumber)
	assert.Nil(t, res.Items[0].Quantity)

	require.NotNil(t, res.Items[2].Quantity)
	assert.Equal(t, 5, *res.Items[2].Quantity)

	assert.InDelta(t, 1.0, res.FieldConfidence["Part Number"], 1e-9)
	assert.InDelta(t, 1.0/3.0, res.Coverage["Notes"], 1e-9)
	assert.Contains(t, res.RawSample, "Part Number,S/N,Qty,Notes")
}

func TestExtract_SemicolonCSV(t *testing.T) {
	data := []byte("sku;serial\nX;1\nY;2\n")
	res, err := NewExtractor().Extract(context.Background(), extraction.Source{Data: data, AdapterID: router.AdapterCSV}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "serial"}, res.SourceFields)
	assert.Equal(t, "X", res.Items[0].PartNumber)
	assert.Equal(t, "1", res.Items[0].SerialNumber)
}

func TestExtract_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Part", "Quantity"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"P-100", 3}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := NewExtractor().Extract(context.Background(), extraction.Source{Data: buf.Bytes(), AdapterID: router.AdapterXLSX}, nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "P-100", res.Items[0].PartNumber)
	assert.Equal(t, 3, *res.Items[0].Quantity)
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		adapter string
	}{
		{"header only", []byte("part,qty\n"), router.AdapterCSV},
		{"empty", []byte("\n\n"), router.AdapterCSV},
		{"broken xlsx", []byte("PK not really"), router.AdapterXLSX},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor().Extract(context.Background(), extraction.Source{Data: tt.data, AdapterID: tt.adapter}, nil)
			require.Error(t, err)
			var extErr *extraction.Error
			assert.True(t, errors.As(err, &extErr))
			assert.Equal(t, tt.adapter, extErr.AdapterID)
		})
	}
}
