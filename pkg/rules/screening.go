package rules

import (
	"fmt"
	"sort"

	"github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// ScreenValues flags text cells that look like SQL injection payloads. The
// flags are informational and never block the gate.
func ScreenValues(items []models.CandidateItem) []models.ReviewFlag {
	var flags []models.ReviewFlag
	for _, it := range items {
		keys := make([]string, 0, len(it.Fields))
		for k := range it.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, field := range keys {
			value := it.Fields[field]
			if len(value) < 4 {
				continue
			}
			if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
				flags = append(flags, models.ReviewFlag{
					Kind:        models.FlagKindSuspiciousValue,
					PartNumber:  it.PartNumber,
					SourceField: field,
					Rows:        []int{it.Row},
					Detail:      fmt.Sprintf("value matches injection fingerprint %s", fingerprint),
				})
			}
		}
	}
	return flags
}
