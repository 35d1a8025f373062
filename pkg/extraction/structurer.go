package extraction

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

const maxStructureInput = 12000

const structureSystemMessage = `You extract inventory line items from documents.
Return JSON only. Use the source's own labels as field names. Never invent values.
Confidence values are between 0 and 1 and express how sure you are the value was read correctly.`

// TextStructurer asks a language model to turn unstructured text into items.
type TextStructurer struct {
	client llm.LLMClient
	logger *zap.Logger
}

// NewTextStructurer creates a structurer backed by client.
func NewTextStructurer(client llm.LLMClient, logger *zap.Logger) *TextStructurer {
	return &TextStructurer{client: client, logger: logger.Named("text-structurer")}
}

type structuredItem struct {
	Fields       map[string]jsonutil.FlexibleString `json:"fields"`
	PartNumber   jsonutil.FlexibleString            `json:"part_number"`
	SerialNumber jsonutil.FlexibleString            `json:"serial_number"`
	Quantity     jsonutil.FlexibleInt               `json:"quantity"`
	Confidence   *float64                           `json:"confidence"`
}

type structuredReply struct {
	Fields          []string           `json:"fields"`
	FieldConfidence map[string]float64 `json:"field_confidence"`
	Items           []structuredItem   `json:"items"`
}

// Structure extracts items from text. adapterID labels errors.
func (s *TextStructurer) Structure(ctx context.Context, adapterID, text string, schema *models.DestinationSchema) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewError(adapterID, "source contains no text", nil)
	}
	if len(text) > maxStructureInput {
		text = text[:maxStructureInput]
	}

	prompt := buildStructurePrompt(text, schema)
	resp, err := s.client.GenerateResponse(ctx, prompt, structureSystemMessage, 0.0, false)
	if err != nil {
		return nil, NewError(adapterID, "structuring call failed", err)
	}

	reply, err := llm.ParseJSONResponse[structuredReply](resp.Content)
	if err != nil {
		return nil, NewError(adapterID, "structuring reply unreadable", err)
	}
	if len(reply.Items) == 0 {
		return nil, NewError(adapterID, "no inventory items found", nil)
	}

	s.logger.Debug("Structured text",
		zap.String("adapter", adapterID),
		zap.Int("items", len(reply.Items)),
		zap.Int("fields", len(reply.Fields)))

	return buildStructuredResult(reply, text), nil
}

func buildStructurePrompt(text string, schema *models.DestinationSchema) string {
	var b strings.Builder
	if schema != nil {
		b.WriteString(schema.Describe())
		b.WriteString("\n")
	}
	b.WriteString(`Extract every inventory line item from the source below.
Respond with:
{"fields": ["<source label>", ...],
 "field_confidence": {"<source label>": 0.0},
 "items": [{"fields": {"<source label>": "<value>"}, "part_number": "", "serial_number": "", "quantity": null, "confidence": 0.0}]}
Leave quantity null when the source does not state it.

SOURCE:
`)
	b.WriteString(text)
	return b.String()
}

func buildStructuredResult(reply structuredReply, text string) *Result {
	fields := append([]string(nil), reply.Fields...)
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f] = true
	}
	filled := make(map[string]int)

	items := make([]models.CandidateItem, 0, len(reply.Items))
	for i, si := range reply.Items {
		item := models.CandidateItem{
			Row:             i + 1,
			Fields:          make(map[string]string, len(si.Fields)),
			PartNumber:      strings.TrimSpace(string(si.PartNumber)),
			SerialNumber:    strings.TrimSpace(string(si.SerialNumber)),
			Quantity:        si.Quantity.Value,
			FieldConfidence: make(map[string]float64, len(si.Fields)),
		}
		for k, raw := range si.Fields {
			v := strings.TrimSpace(string(raw))
			if v == "" {
				continue
			}
			if !known[k] {
				known[k] = true
				fields = append(fields, k)
			}
			item.Fields[k] = v
			filled[k]++
			if c, ok := reply.FieldConfidence[k]; ok {
				item.FieldConfidence[k] = clamp01(c)
			} else if si.Confidence != nil {
				item.FieldConfidence[k] = clamp01(*si.Confidence)
			}
		}
		if si.Confidence != nil {
			item.Confidence = clamp01(*si.Confidence)
		} else {
			item.RollUpConfidence()
		}
		items = append(items, item)
	}

	res := &Result{
		Items:           items,
		SourceFields:    fields,
		FieldConfidence: make(map[string]float64, len(fields)),
		Coverage:        make(map[string]float64, len(fields)),
		RawSample:       text,
	}
	n := float64(len(items))
	for _, f := range fields {
		res.Coverage[f] = float64(filled[f]) / n
		if c, ok := reply.FieldConfidence[f]; ok {
			res.FieldConfidence[f] = clamp01(c)
		} else {
			res.FieldConfidence[f] = meanItemConfidence(items, f)
		}
	}
	return res
}

func meanItemConfidence(items []models.CandidateItem, field string) float64 {
	var sum float64
	var n int
	for _, it := range items {
		if c, ok := it.FieldConfidence[field]; ok {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CapResult lowers every confidence in the result to at most limit.
func CapResult(res *Result, limit float64) {
	for k, v := range res.FieldConfidence {
		if v > limit {
			res.FieldConfidence[k] = limit
		}
	}
	for i := range res.Items {
		res.Items[i].CapConfidence(limit)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Describe summarizes a result for logs.
func (r *Result) Describe() string {
	return fmt.Sprintf("%d item(s), %d field(s)", len(r.Items), len(r.SourceFields))
}
