package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("tabular.csv")
	assert.False(t, ok)

	called := false
	r.Register("tabular.csv", ExtractorFunc(func(ctx context.Context, src Source, schema *models.DestinationSchema) (*Result, error) {
		called = true
		return &Result{}, nil
	}))
	r.Register("freetext.llm", ExtractorFunc(func(ctx context.Context, src Source, schema *models.DestinationSchema) (*Result, error) {
		return nil, nil
	}))

	e, ok := r.Get("tabular.csv")
	require.True(t, ok)
	_, err := e.Extract(context.Background(), Source{}, nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"freetext.llm", "tabular.csv"}, r.Registered())
}

func TestFromTable(t *testing.T) {
	res := FromTable(
		[]string{"Part", "Qty", "", "Part"},
		[][]string{
			{"A", "2", "x", "dup"},
			{"", "", "", ""},
			{"B", "many", ""},
		},
		0.5,
	)

	assert.Equal(t, []string{"Part", "Qty", "column_3", "Part_2"}, res.SourceFields)
	require.Len(t, res.Items, 2, "blank rows are skipped")
	assert.Equal(t, 1, res.Items[0].Row)
	assert.Equal(t, 3, res.Items[1].Row)
	assert.Equal(t, 2, *res.Items[0].Quantity)
	assert.Nil(t, res.Items[1].Quantity)

	// Qty filled twice, parsed once: 0.5 * 1.0 * 0.5
	assert.InDelta(t, 0.25, res.FieldConfidence["Qty"], 1e-9)
	assert.InDelta(t, 0.5, res.Coverage["column_3"], 1e-9)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"12", 12, true},
		{" 1,200 ", 1200, true},
		{"5 pcs", 5, true},
		{"-3", 0, false},
		{"five", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseQuantity(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
