package rule

import (
	"sync"

	"github.com/vk/quarry/internal/rulekey"
)

// KeyCell is a once-computed cache slot for a rule's key. The key is derived
// lazily on first access during an engine run and never mutated afterwards;
// invalidation happens by constructing a fresh graph for the next run.
//
// The cell also acts as the single-computation guard: concurrent callers
// share one computation and observe the identical result.
type KeyCell struct {
	once sync.Once
	key  rulekey.Key
	err  error
}

// Get returns the memoized key, running compute exactly once across all
// callers. A compute failure is memoized too: the rule's key is undefined
// for the rest of the run and every caller sees the same error.
func (c *KeyCell) Get(compute func() (rulekey.Key, error)) (rulekey.Key, error) {
	c.once.Do(func() {
		c.key, c.err = compute()
	})
	return c.key, c.err
}
