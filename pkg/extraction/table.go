package extraction

import (
	"bytes"
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/mapping"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

const (
	sampleRows     = 25
	maxSampleBytes = 8000
	// roleMinSimilarity is the header similarity needed before a column is
	// read as the part, serial or quantity column.
	roleMinSimilarity = 0.75
)

var leadingInt = regexp.MustCompile(`^\s*(-?\d[\d,]*)`)

// FromTable converts a header row plus data rows into a Result. scale (0..1]
// discounts every field confidence, e.g. for OCR-transcribed tables.
func FromTable(header []string, rows [][]string, scale float64) *Result {
	header = uniqueHeaders(header)
	partCol := roleColumn(header, models.TargetFieldPartNumber)
	serialCol := roleColumn(header, models.TargetFieldSerialNumber)
	qtyCol := roleColumn(header, models.TargetFieldQuantity)

	filled := make([]int, len(header))
	intParsed := make([]int, len(header))
	var items []models.CandidateItem

	for r, row := range rows {
		if isBlank(row) {
			continue
		}
		item := models.CandidateItem{
			Row:    r + 1,
			Fields: make(map[string]string, len(header)),
		}
		for c, name := range header {
			if c >= len(row) {
				break
			}
			v := strings.TrimSpace(row[c])
			if v == "" {
				continue
			}
			item.Fields[name] = v
			filled[c]++
			if _, ok := ParseQuantity(v); ok {
				intParsed[c]++
			}
		}
		if partCol >= 0 {
			item.PartNumber = item.Fields[header[partCol]]
		}
		if serialCol >= 0 {
			item.SerialNumber = item.Fields[header[serialCol]]
		}
		if qtyCol >= 0 {
			if q, ok := ParseQuantity(item.Fields[header[qtyCol]]); ok {
				item.Quantity = &q
			}
		}
		items = append(items, item)
	}

	res := &Result{
		Items:           items,
		SourceFields:    header,
		FieldConfidence: make(map[string]float64, len(header)),
		Coverage:        make(map[string]float64, len(header)),
		RawSample:       renderSample(header, rows),
	}
	if scale <= 0 || scale > 1 {
		scale = 1
	}

	n := float64(len(items))
	for c, name := range header {
		if n == 0 {
			res.FieldConfidence[name] = 0
			continue
		}
		fill := float64(filled[c]) / n
		fit := 1.0
		if c == qtyCol && filled[c] > 0 {
			fit = float64(intParsed[c]) / float64(filled[c])
		}
		res.Coverage[name] = fill
		res.FieldConfidence[name] = scale * fill * fit
	}

	for i := range res.Items {
		it := &res.Items[i]
		it.FieldConfidence = make(map[string]float64, len(it.Fields))
		for name := range it.Fields {
			it.FieldConfidence[name] = res.FieldConfidence[name]
		}
		it.RollUpConfidence()
	}
	return res
}

// ParseQuantity reads a leading integer such as "12", "1,200" or "5 pcs".
func ParseQuantity(s string) (int, bool) {
	m := leadingInt.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func roleColumn(header []string, role string) int {
	best, bestScore := -1, roleMinSimilarity
	for i, h := range header {
		if s := mapping.NameSimilarity(h, role); s >= bestScore {
			if s > bestScore || best == -1 {
				best, bestScore = i, s
			}
		}
	}
	return best
}

// uniqueHeaders fills blank headers and disambiguates duplicates so every
// source field name is distinct.
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		seen[h]++
		if seen[h] > 1 {
			h = h + "_" + strconv.Itoa(seen[h])
		}
		out[i] = h
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func renderSample(header []string, rows [][]string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	for i, row := range rows {
		if i >= sampleRows || buf.Len() > maxSampleBytes {
			break
		}
		_ = w.Write(row)
	}
	w.Flush()
	s := buf.String()
	if len(s) > maxSampleBytes {
		s = s[:maxSampleBytes]
	}
	return s
}
