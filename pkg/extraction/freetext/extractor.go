// Package freetext extracts inventory items from unstructured text such as
// emails, notes and pasted lists.
package freetext

import (
	"context"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
)

// Extractor structures free text through a language model. Every confidence
// it reports is capped at extraction.FreeTextConfidenceCap.
type Extractor struct {
	structurer *extraction.TextStructurer
}

var _ extraction.Extractor = (*Extractor)(nil)

// NewExtractor creates a free-text extractor.
func NewExtractor(structurer *extraction.TextStructurer) *Extractor {
	return &Extractor{structurer: structurer}
}

// Extract implements extraction.Extractor.
func (e *Extractor) Extract(ctx context.Context, src extraction.Source, schema *models.DestinationSchema) (*extraction.Result, error) {
	if !utf8.Valid(src.Data) {
		return nil, extraction.NewError(router.AdapterFreeText, "source is not valid UTF-8 text", nil)
	}

	res, err := e.structurer.Structure(ctx, router.AdapterFreeText, string(src.Data), schema)
	if err != nil {
		return nil, err
	}
	extraction.CapResult(res, extraction.FreeTextConfidenceCap)
	return res, nil
}
