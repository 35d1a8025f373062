package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// CheckSerialUniqueness flags serial numbers that appear under more than one
// part number.
func CheckSerialUniqueness(items []models.CandidateItem) []models.ReviewFlag {
	parts := make(map[string]map[string]bool)
	rows := make(map[string][]int)
	var order []string

	note := func(serial, part string, row int) {
		serial = strings.TrimSpace(serial)
		if serial == "" || part == "" {
			return
		}
		if _, ok := parts[serial]; !ok {
			parts[serial] = make(map[string]bool)
			order = append(order, serial)
		}
		parts[serial][part] = true
		rows[serial] = append(rows[serial], row)
	}

	for _, it := range items {
		for _, s := range it.SerialNumbers {
			note(s, it.PartNumber, it.Row)
		}
		note(it.SerialNumber, it.PartNumber, it.Row)
	}

	var flags []models.ReviewFlag
	for _, serial := range order {
		if len(parts[serial]) < 2 {
			continue
		}
		names := make([]string, 0, len(parts[serial]))
		for p := range parts[serial] {
			names = append(names, p)
		}
		sort.Strings(names)
		flags = append(flags, models.ReviewFlag{
			Kind:         models.FlagKindSerialConflict,
			SerialNumber: serial,
			Rows:         rows[serial],
			Detail:       fmt.Sprintf("serial %s appears under parts %s", serial, strings.Join(names, ", ")),
		})
	}
	return flags
}
