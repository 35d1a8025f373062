// Package document extracts inventory items from semi-structured documents:
// Word files, PDFs and scanned images.
package document

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
)

const (
	// docxTableScale discounts Word tables slightly: merged cells and
	// free-form layout make column boundaries less certain than a spreadsheet.
	docxTableScale = 0.95
	// ocrTableScale discounts tables read back from a vision transcription.
	ocrTableScale = 0.85
)

const transcribePrompt = `Transcribe this inventory document (invoice, packing list or label).
Reproduce every table as a markdown table with exactly one header row.
Reproduce other text line by line. Output only the transcription.`

// Extractor handles document.docx, document.pdf and image.vision.
type Extractor struct {
	vision     llm.VisionClient
	structurer *extraction.TextStructurer
	logger     *zap.Logger
}

var _ extraction.Extractor = (*Extractor)(nil)

// NewExtractor creates a document extractor. vision may be nil, in which case
// PDFs and images fail with an extraction error.
func NewExtractor(vision llm.VisionClient, structurer *extraction.TextStructurer, logger *zap.Logger) *Extractor {
	return &Extractor{
		vision:     vision,
		structurer: structurer,
		logger:     logger.Named("document-extractor"),
	}
}

// Extract implements extraction.Extractor.
func (e *Extractor) Extract(ctx context.Context, src extraction.Source, schema *models.DestinationSchema) (*extraction.Result, error) {
	if src.AdapterID == router.AdapterDOCX {
		return e.extractDOCX(ctx, src, schema)
	}
	return e.extractVisual(ctx, src, schema)
}

func (e *Extractor) extractDOCX(ctx context.Context, src extraction.Source, schema *models.DestinationSchema) (*extraction.Result, error) {
	content, err := readDOCX(src.Data)
	if err != nil {
		return nil, extraction.NewError(src.AdapterID, "unreadable Word document", err)
	}

	if len(content.Table) >= 2 {
		res := extraction.FromTable(content.Table[0], content.Table[1:], docxTableScale)
		if len(res.Items) > 0 {
			res.RawSample = truncate(content.Text)
			return res, nil
		}
	}
	return e.structurer.Structure(ctx, src.AdapterID, content.Text, schema)
}

func (e *Extractor) extractVisual(ctx context.Context, src extraction.Source, schema *models.DestinationSchema) (*extraction.Result, error) {
	if e.vision == nil {
		return nil, extraction.NewError(src.AdapterID, "no vision backend configured", nil)
	}

	resp, err := e.vision.Transcribe(ctx, transcribePrompt, src.Data, src.MIMEType)
	if err != nil {
		return nil, extraction.NewError(src.AdapterID, "transcription failed", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, extraction.NewError(src.AdapterID, "transcription is empty", nil)
	}

	e.logger.Debug("Transcribed document",
		zap.String("adapter", src.AdapterID),
		zap.String("model", e.vision.GetModel()),
		zap.Int("chars", len(text)))

	if header, rows := parseMarkdownTable(text); header != nil {
		res := extraction.FromTable(header, rows, ocrTableScale)
		if len(res.Items) > 0 {
			res.RawSample = truncate(text)
			return res, nil
		}
	}
	return e.structurer.Structure(ctx, src.AdapterID, text, schema)
}

// parseMarkdownTable returns the first pipe table in text that has a header
// and at least one data row.
func parseMarkdownTable(text string) ([]string, [][]string) {
	var header []string
	var rows [][]string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") {
			if header != nil && len(rows) > 0 {
				break
			}
			header, rows = nil, nil
			continue
		}
		cells := splitPipeRow(line)
		if len(cells) < 2 {
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}
		if header == nil {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil || len(rows) == 0 {
		return nil, nil
	}
	return header, rows
}

func splitPipeRow(line string) []string {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

const maxRawSample = 8000

func truncate(s string) string {
	if len(s) > maxRawSample {
		return s[:maxRawSample]
	}
	return s
}
