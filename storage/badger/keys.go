package badger

import (
	"github.com/poiesic/recall/core"
)

// Key prefixes for different data types.
// Records are keyed by state so ScanActive only touches active records.
const (
	activeRecordPrefix   = "rec:a:"
	inactiveRecordPrefix = "rec:i:"
	documentPrefix       = "doc:"
	settingsPrefix       = "own:"
	snapshotKey          = "idx:snapshot"
)

// makeActiveKey generates the key for an active embedding record.
func makeActiveKey(id core.DocumentID) []byte {
	return append([]byte(activeRecordPrefix), id...)
}

// makeInactiveKey generates the key for a deactivated embedding record.
func makeInactiveKey(id core.DocumentID) []byte {
	return append([]byte(inactiveRecordPrefix), id...)
}

// makeDocumentKey generates the key for document metadata.
func makeDocumentKey(id core.DocumentID) []byte {
	return append([]byte(documentPrefix), id...)
}

// makeSettingsKey generates the key for an owner's settings.
func makeSettingsKey(ownerID string) []byte {
	return append([]byte(settingsPrefix), ownerID...)
}
