// Package artifact persists the outputs of built rules keyed by rule key.
// A record is written once when a rule is freshly built, read on later
// lookups with the same key, and never mutated or deleted by the engine;
// eviction is an external-cache concern.
package artifact

import (
	"time"

	"github.com/vk/quarry/internal/rulekey"
)

// Output is one produced file captured into a record.
type Output struct {
	// Path is the output location relative to nothing in particular: the
	// engine stores and restores the exact path the rule declared.
	Path string `json:"path"`
	// Content is the file's bytes at commit time.
	Content []byte `json:"content"`
	// ContentHash fingerprints Content so reuse can verify an on-disk copy
	// without comparing whole files.
	ContentHash string `json:"content_hash"`
}

// Record is one committed build result.
type Record struct {
	// Key is the rule key the outputs were built under.
	Key string `json:"key"`
	// BuildID identifies the engine run that committed the record.
	BuildID string `json:"build_id"`
	// Outputs holds every declared output in declared order.
	Outputs []Output `json:"outputs"`
	// OutputHash is a digest over the output contents in declared order.
	// Tooling that wants an ABI-level key derived from what was produced,
	// rather than from the inputs, reads this.
	OutputHash string `json:"output_hash"`
	// CreatedAt is when the record was committed.
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord assembles a record from freshly read output contents and
// computes the per-output and whole-record hashes.
func NewRecord(key rulekey.Key, buildID string, outputs []Output, createdAt time.Time) *Record {
	hasher := rulekey.NewBuilder("artifact-outputs", nil)
	for i := range outputs {
		outputs[i].ContentHash = rulekey.HashBytes(outputs[i].Content).String()
		hasher.SetField(outputs[i].Path, outputs[i].ContentHash)
	}
	return &Record{
		Key:        key.String(),
		BuildID:    buildID,
		Outputs:    outputs,
		OutputHash: hasher.Build().String(),
		CreatedAt:  createdAt,
	}
}

// Store is the key-value persistence boundary for records. Implementations
// must allow concurrent readers; the engine guarantees a given key is
// written by at most one worker per run.
type Store interface {
	// Contains reports whether a record exists for the key.
	Contains(key rulekey.Key) bool
	// Get returns the record for the key, or (nil, nil) on a miss.
	Get(key rulekey.Key) (*Record, error)
	// Put commits a record. Committing the same key twice is allowed and
	// the second write is ignored: records are immutable once stored.
	Put(record *Record) error
}
