package rulekey

import (
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

// IOError reports that an input file could not be read while hashing.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read input %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// defaultCacheSize bounds the per-run file hash cache. Large builds reference
// the same headers and shared sources from many rules, so hits dominate.
const defaultCacheSize = 8192

// FileHasher computes and memoizes content hashes of input files for one
// engine run. It is safe for concurrent use: parallel workers asking for the
// same uncached file share a single read through a singleflight group.
//
// The cache is keyed by path only, with no mtime validation. A run hashes
// each file's content exactly once and the engine treats on-disk content as
// fixed for the duration of a run, so invalidation happens by constructing a
// fresh FileHasher for the next run.
type FileHasher struct {
	cache  *lru.Cache
	inline singleflight.Group
}

// NewFileHasher creates a FileHasher with a bounded LRU cache.
func NewFileHasher() *FileHasher {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &FileHasher{cache: cache}
}

// HashFile returns the BLAKE3 digest of the file's content at path.
func (f *FileHasher) HashFile(path string) (Key, error) {
	if sum, ok := f.cache.Get(path); ok {
		return sum.(Key), nil
	}
	v, err, _ := f.inline.Do(path, func() (any, error) {
		sum, err := hashFileContent(path)
		if err != nil {
			return Key{}, err
		}
		f.cache.Add(path, sum)
		return sum, nil
	})
	if err != nil {
		return Key{}, err
	}
	return v.(Key), nil
}

func hashFileContent(path string) (Key, error) {
	file, err := os.Open(path)
	if err != nil {
		return Key{}, &IOError{Path: path, Err: err}
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Key{}, &IOError{Path: path, Err: err}
	}
	var k Key
	copy(k[:], hasher.Sum(nil))
	return k, nil
}

// HashBytes digests an in-memory buffer with the same algorithm used for
// files. The artifact store uses it to fingerprint freshly built outputs.
func HashBytes(data []byte) Key {
	var k Key
	sum := blake3.Sum256(data)
	copy(k[:], sum[:])
	return k
}
