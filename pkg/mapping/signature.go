package mapping

import "strings"

// Signature is the learned-pattern key for a source field observed against a
// destination schema: "<schema>:<normalized field>".
func Signature(schemaName, sourceField string) string {
	return strings.ToLower(strings.TrimSpace(schemaName)) + ":" + NormalizeField(sourceField)
}
