// Package tabular reads spreadsheets (CSV, TSV and XLSX) into candidate items.
package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
)

// Extractor handles the tabular.csv and tabular.xlsx adapter ids.
type Extractor struct{}

var _ extraction.Extractor = (*Extractor)(nil)

// NewExtractor creates a tabular extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract implements extraction.Extractor. Spreadsheet cells are read
// exactly, so field confidence reflects only fill rate and type fit.
func (e *Extractor) Extract(ctx context.Context, src extraction.Source, _ *models.DestinationSchema) (*extraction.Result, error) {
	var (
		rows [][]string
		err  error
	)
	switch src.AdapterID {
	case router.AdapterXLSX:
		rows, err = readXLSX(src.Data)
	default:
		rows, err = readCSV(src.Data)
	}
	if err != nil {
		return nil, extraction.NewError(src.AdapterID, "unreadable spreadsheet", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header, body := splitHeader(rows)
	if header == nil {
		return nil, extraction.NewError(src.AdapterID, "spreadsheet has no header row", nil)
	}
	if len(body) == 0 {
		return nil, extraction.NewError(src.AdapterID, "spreadsheet has no data rows", nil)
	}
	return extraction.FromTable(header, body, 1.0), nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// detectDelimiter picks the most frequent of comma, semicolon and tab in the
// first line.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(string(line), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// readXLSX returns the rows of the first sheet that has any.
func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

// splitHeader skips leading blank rows and returns the first non-blank row as
// the header.
func splitHeader(rows [][]string) ([]string, [][]string) {
	for i, row := range rows {
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				return row, rows[i+1:]
			}
		}
	}
	return nil, nil
}
