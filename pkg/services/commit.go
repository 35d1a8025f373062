package services

import (
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// BuildRecords turns the approved items into inventory records. Columns
// mapped to non-core fields become attributes; columns kept as metadata are
// copied under their source name. Ignored columns and those awaiting a
// schema update are dropped.
func BuildRecords(sess *models.ImportSession) []models.InventoryRecord {
	attributes := make(map[string]string) // source -> target
	for _, p := range sess.Proposals {
		if !p.IsMapped() {
			continue
		}
		switch p.Target() {
		case models.TargetFieldPartNumber, models.TargetFieldSerialNumber, models.TargetFieldQuantity:
		default:
			attributes[p.SourceField] = p.Target()
		}
	}
	var metadata []string
	for _, d := range sess.Decisions {
		if d.Resolved && d.Disposition == models.DispositionStoreAsMetadata {
			metadata = append(metadata, d.SourceField)
		}
	}

	records := make([]models.InventoryRecord, 0, len(sess.Items))
	for _, it := range sess.Items {
		rec := models.InventoryRecord{
			SourceRow:     it.Row,
			PartNumber:    it.PartNumber,
			SerialNumber:  it.SerialNumber,
			SerialNumbers: it.SerialNumbers,
			Quantity:      itemQuantity(it),
		}
		for src, target := range attributes {
			if v := strings.TrimSpace(it.Fields[src]); v != "" {
				if rec.Attributes == nil {
					rec.Attributes = make(map[string]string)
				}
				rec.Attributes[target] = v
			}
		}
		for _, src := range metadata {
			if v := strings.TrimSpace(it.Fields[src]); v != "" {
				if rec.Metadata == nil {
					rec.Metadata = make(map[string]string)
				}
				rec.Metadata[src] = v
			}
		}
		records = append(records, rec)
	}
	return records
}

// BuildLearningTask collects the user-confirmed mappings of a committed
// session. ok is false when there is nothing to learn.
func BuildLearningTask(sess *models.ImportSession) (LearningTask, bool) {
	task := LearningTask{SessionID: sess.ID, SchemaName: sess.SchemaName}
	for _, p := range sess.Proposals {
		if p.Status == models.ProposalStatusConfirmed && p.IsMapped() {
			task.Mappings = append(task.Mappings, ConfirmedMapping{
				SourceField: p.SourceField,
				TargetField: p.Target(),
			})
		}
	}
	return task, len(task.Mappings) > 0
}
