package chat

import "agora/internal/models"

// auditLog is a ring buffer of moderation records. Once full, the oldest record is overwritten.
type auditLog struct {
	records    []models.AuditEntry
	lastIndex  int
	maxRecords int
}

func newAuditLog(maxRecords int) *auditLog {
	return &auditLog{
		maxRecords: maxRecords,
		lastIndex:  -1,
	}
}

func (a *auditLog) add(e models.AuditEntry) {
	switch {
	case len(a.records) < a.maxRecords:
		a.records = append(a.records, e)
		a.lastIndex++
	default:
		i := (a.lastIndex + 1) % a.maxRecords
		a.records[i] = e
		a.lastIndex = i
	}
}

// last returns up to count most recent records in chronological order.
func (a *auditLog) last(count int) []models.AuditEntry {
	total := len(a.records)
	if count <= 0 || count > total {
		count = total
	}
	result := make([]models.AuditEntry, count)
	if count == 0 {
		return result
	}

	head := 0
	if total == a.maxRecords {
		head = (a.lastIndex + 1) % a.maxRecords
	}
	startIdx := (head + total - count) % total

	if startIdx+count <= total {
		copy(result, a.records[startIdx:startIdx+count])
	} else {
		n1 := total - startIdx
		copy(result, a.records[startIdx:])
		copy(result[n1:], a.records[:count-n1])
	}
	return result
}
