// Package extraction turns raw uploaded bytes into normalized candidate items.
// Each source kind has its own Extractor; callers select one through a
// Registry keyed by the router's adapter id.
package extraction

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// FreeTextConfidenceCap bounds every confidence produced from unstructured
// text. It sits below the acceptance threshold so free text always needs at
// least one human round.
const FreeTextConfidenceCap = 0.60

// Source is one uploaded artifact after routing.
type Source struct {
	Data       []byte
	Filename   string
	MIMEType   string
	SourceType models.SourceType
	AdapterID  string
}

// Result is what every extractor returns.
type Result struct {
	Items           []models.CandidateItem
	RawSample       string
	SourceFields    []string
	FieldConfidence map[string]float64 // adapter confidence per source field
	Coverage        map[string]float64 // fraction of items with a value, per source field
}

// Extractor turns a source into candidate items.
type Extractor interface {
	Extract(ctx context.Context, src Source, schema *models.DestinationSchema) (*Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, src Source, schema *models.DestinationSchema) (*Result, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, src Source, schema *models.DestinationSchema) (*Result, error) {
	return f(ctx, src, schema)
}

// Error is the typed failure every extractor reports.
type Error struct {
	AdapterID string
	Reason    string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction %s: %s: %v", e.AdapterID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("extraction %s: %s", e.AdapterID, e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an extraction error.
func NewError(adapterID, reason string, cause error) *Error {
	return &Error{AdapterID: adapterID, Reason: reason, Cause: cause}
}

// Registry maps adapter ids to extractors. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// Register adds or replaces the extractor for an adapter id.
func (r *Registry) Register(adapterID string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[adapterID] = e
}

// Get returns the extractor for an adapter id.
func (r *Registry) Get(adapterID string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[adapterID]
	return e, ok
}

// Registered lists the adapter ids with an extractor, sorted.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.extractors))
	for id := range r.extractors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
