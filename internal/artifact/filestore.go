package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/vk/quarry/internal/rulekey"
)

// FileStore keeps records on the local filesystem:
//
//	{dir}/{key[0:2]}/{key}/record.json
//
// The two-character fan-out keeps directory listings manageable for large
// caches. Writes go through a temp file plus rename so a crashed run never
// leaves a half-written record that a later run would trust.
type FileStore struct {
	dir   string
	clock clockwork.Clock
}

// NewFileStore creates a store rooted at dir. Pass a fake clock in tests to
// control record timestamps.
func NewFileStore(dir string, clock clockwork.Clock) *FileStore {
	return &FileStore{dir: dir, clock: clock}
}

func (s *FileStore) recordPath(key rulekey.Key) string {
	hex := key.String()
	return filepath.Join(s.dir, hex[:2], hex, "record.json")
}

// Contains reports whether a committed record exists for the key.
func (s *FileStore) Contains(key rulekey.Key) bool {
	_, err := os.Stat(s.recordPath(key))
	return err == nil
}

// Get loads the record for a key. A missing record is (nil, nil); a present
// but unreadable or corrupt record is an error, never silently a miss, so
// cache corruption surfaces instead of causing spurious rebuilds.
func (s *FileStore) Get(key rulekey.Key) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact record %s: %w", key, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode artifact record %s: %w", key, err)
	}
	if record.Key != key.String() {
		return nil, fmt.Errorf("artifact record %s holds mismatched key %s", key, record.Key)
	}
	return &record, nil
}

// Put commits a record. A record already present under the key is left
// untouched.
func (s *FileStore) Put(record *Record) error {
	key, err := rulekey.ParseKey(record.Key)
	if err != nil {
		return err
	}
	path := s.recordPath(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode artifact record %s: %w", record.Key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "record-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
