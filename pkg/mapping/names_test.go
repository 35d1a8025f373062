package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Part Number", []string{"part", "number"}},
		{"serial_no", []string{"serial", "no"}},
		{"SerialNo", []string{"serial", "no"}},
		{"XMLPartID", []string{"xml", "part", "id"}},
		{"S/N", []string{"s", "n"}},
		{"Bin 12A", []string{"bin", "12", "a"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestNormalizeField(t *testing.T) {
	assert.Equal(t, "serial_number", NormalizeField("Serial Numbers"))
	assert.Equal(t, "serial_number", NormalizeField("serialNumber"))
	assert.Equal(t, "qty", NormalizeField("QTY"))
	assert.Equal(t, "s_n", NormalizeField("S/N"))
}

func TestNameSimilarity(t *testing.T) {
	same := []struct{ a, b string }{
		{"Part Number", "part_number"},
		{"Qty", "quantity"},
		{"S/N", "serial_number"},
		{"SerialNo", "serial_number"},
		{"SKU", "part_number"},
		{"Unit Price", "unit_price"},
	}
	for _, tt := range same {
		assert.Equal(t, 1.0, NameSimilarity(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}

	assert.Less(t, NameSimilarity("Color", "part_number"), HeuristicMinSimilarity)
	assert.Less(t, NameSimilarity("Notes", "quantity"), HeuristicMinSimilarity)
	assert.Equal(t, 0.0, NameSimilarity("", "quantity"))
}

func TestBestTarget(t *testing.T) {
	targets := []string{"part_number", "quantity", "description"}

	best, score := BestTarget("Qty", targets)
	assert.Equal(t, "quantity", best)
	assert.Equal(t, 1.0, score)

	best, _ = BestTarget("Item Description", targets)
	assert.Equal(t, "description", best)
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "inventory:serial_number", Signature("Inventory", "Serial Numbers"))
	assert.Equal(t, Signature("inventory", "serialNumber"), Signature("INVENTORY ", "serial_numbers"))
	assert.NotEqual(t, Signature("inventory", "Part"), Signature("assets", "Part"))
}
