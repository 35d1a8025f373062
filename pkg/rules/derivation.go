// Package rules holds the deterministic business rules applied to candidate
// items independent of AI confidence.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Outcome is the result of running the item rules over one batch.
type Outcome struct {
	Items       []models.CandidateItem
	Flags       []models.ReviewFlag
	Derivations []models.SummaryDerivation
}

// Apply runs quantity derivation, conflict detection, serial uniqueness and
// value screening. The input slice is not modified.
func Apply(items []models.CandidateItem) Outcome {
	derived, flags, derivations := DeriveQuantities(items)
	flags = append(flags, CheckSerialUniqueness(derived)...)
	flags = append(flags, ScreenValues(derived)...)
	return Outcome{Items: derived, Flags: flags, Derivations: derivations}
}

type partGroup struct {
	key   string
	items []int
}

// DeriveQuantities groups items by part number.
//
// A group with no explicit quantity and at least one serial collapses into a
// single item whose quantity is the number of distinct serials; the distinct
// serials are kept in first-seen order. A group whose explicit quantities
// disagree is flagged and left untouched. Items without a part number are
// flagged.
func DeriveQuantities(items []models.CandidateItem) ([]models.CandidateItem, []models.ReviewFlag, []models.SummaryDerivation) {
	work := models.CloneItems(items)

	var groups []*partGroup
	byKey := make(map[string]*partGroup)
	var flags []models.ReviewFlag
	var missingRows []int

	for i := range work {
		key := strings.TrimSpace(work[i].PartNumber)
		if key == "" {
			missingRows = append(missingRows, work[i].Row)
			work[i].NeedsReview = true
			continue
		}
		work[i].PartNumber = key
		g, ok := byKey[key]
		if !ok {
			g = &partGroup{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, i)
	}
	if len(missingRows) > 0 {
		flags = append(flags, models.ReviewFlag{
			Kind:   models.FlagKindMissingPart,
			Rows:   missingRows,
			Detail: fmt.Sprintf("%d item(s) have no part number", len(missingRows)),
		})
	}

	drop := make(map[int]bool)
	var derivations []models.SummaryDerivation

	for _, g := range groups {
		explicit := explicitQuantities(work, g.items)

		if len(explicit) > 1 {
			rows := make([]int, 0, len(g.items))
			for _, idx := range g.items {
				work[idx].NeedsReview = true
				rows = append(rows, work[idx].Row)
			}
			flags = append(flags, models.ReviewFlag{
				Kind:       models.FlagKindQuantityConflict,
				PartNumber: g.key,
				Rows:       rows,
				Detail:     fmt.Sprintf("part %s has conflicting quantities %s", g.key, joinInts(explicit)),
			})
			continue
		}
		if len(explicit) == 1 {
			continue
		}

		serials := distinctSerials(work, g.items)
		if len(serials) == 0 {
			continue
		}

		head := g.items[0]
		qty := len(serials)
		work[head].Quantity = &qty
		work[head].QuantityDerived = true
		work[head].SerialNumbers = serials
		work[head].SerialNumber = ""
		for _, idx := range g.items[1:] {
			drop[idx] = true
		}
		derivations = append(derivations, models.SummaryDerivation{
			PartNumber:    g.key,
			Quantity:      qty,
			SerialNumbers: append([]string(nil), serials...),
		})
	}

	out := make([]models.CandidateItem, 0, len(work)-len(drop))
	for i := range work {
		if !drop[i] {
			out = append(out, work[i])
		}
	}
	return out, flags, derivations
}

// ConflictingParts returns the part numbers whose explicit quantities
// disagree, the groups DeriveQuantities would flag.
func ConflictingParts(items []models.CandidateItem) map[string]bool {
	groups := make(map[string][]int)
	for i, it := range items {
		if key := strings.TrimSpace(it.PartNumber); key != "" {
			groups[key] = append(groups[key], i)
		}
	}
	out := make(map[string]bool)
	for key, idxs := range groups {
		if len(explicitQuantities(items, idxs)) > 1 {
			out[key] = true
		}
	}
	return out
}

// explicitQuantities returns the distinct explicit quantities in a group,
// sorted. Previously derived quantities are not explicit.
func explicitQuantities(items []models.CandidateItem, idxs []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, idx := range idxs {
		it := items[idx]
		if it.Quantity == nil || it.QuantityDerived {
			continue
		}
		if !seen[*it.Quantity] {
			seen[*it.Quantity] = true
			out = append(out, *it.Quantity)
		}
	}
	sort.Ints(out)
	return out
}

func distinctSerials(items []models.CandidateItem, idxs []int) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, idx := range idxs {
		for _, s := range items[idx].SerialNumbers {
			add(s)
		}
		add(items[idx].SerialNumber)
	}
	return out
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " and ")
}
