package resource

import "github.com/rakunlabs/datahub/internal/sample"

// BufferSample is the durable projection of one ring-buffer slot.
type BufferSample struct {
	Timestamp float64
	Kind      sample.Kind
	Bool      bool
	Number    float64
	Text      string // string/json payload
}

// BufferStore is the opaque persistence collaborator for observation
// ring-buffer backups (explicitly out of scope for the core per the
// purpose statement, but the core depends on the interface).
type BufferStore interface {
	// Load returns the previously backed-up sample sequence and
	// last-backup timestamp for an observation path, or (nil, 0, nil) if
	// there is no backup yet.
	Load(path string) ([]BufferSample, float64, error)
	// Save persists the current sample sequence and last-backup
	// timestamp for an observation path.
	Save(path string, samples []BufferSample, lastBackup float64) error
	// Purge deletes any backup for an observation path (called when the
	// observation is deleted, and by the hub's orphaned-backup sweep).
	Purge(path string) error
	// ListPaths returns every observation path with a stored backup,
	// used by the garbage collector to find backups whose observation
	// no longer exists in the tree.
	ListPaths() ([]string, error)
}
