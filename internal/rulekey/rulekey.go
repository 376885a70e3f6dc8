// Package rulekey computes the content-addressed hash that decides whether a
// build rule's cached output is still valid.
//
// A rule key covers the rule's type tag, an ordered sequence of named field
// contributions, the content of the rule's declared input files, and the
// already-finalized rule keys of its dependencies in declared order. Order is
// significant: the builder hashes contributions exactly in call order, which
// must mirror the order the rule kind declares them. Every contribution is
// length-prefixed so adjacent values can never run together.
package rulekey

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/zeebo/blake3"
)

// Size is the digest width in bytes.
const Size = 32

// Key is a fixed-width BLAKE3 digest identifying one rule's full input
// closure. The zero Key is never a valid digest of anything.
type Key [Size]byte

// String renders the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey decodes the hex form produced by String.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse rule key %q: %w", s, err)
	}
	if len(b) != Size {
		return k, fmt.Errorf("parse rule key %q: got %d bytes, want %d", s, len(b), Size)
	}
	copy(k[:], b)
	return k, nil
}

// Builder accumulates ordered contributions and finalizes them into a Key.
// It is not safe for concurrent use; each key computation owns one Builder.
type Builder struct {
	hasher *blake3.Hasher
	files  *FileHasher

	built bool
	key   Key
}

// NewBuilder starts a key computation for a rule of the given type tag.
// The type tag is the first contribution, so two rules of different kinds
// never share a key even with identical fields.
func NewBuilder(ruleType string, files *FileHasher) *Builder {
	b := &Builder{hasher: blake3.New(), files: files}
	b.writeField([]byte("type"))
	b.writeField([]byte(ruleType))
	return b
}

// writeField appends one length-prefixed contribution to the digest state.
func (b *Builder) writeField(data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	b.hasher.Write(prefix[:])
	b.hasher.Write(data)
}

// SetField records one named field contribution. Supported value kinds are
// strings, bools, integers, string slices, string maps (hashed in sorted key
// order, since Go map iteration is unordered) and nested Keys.
func (b *Builder) SetField(name string, value any) *Builder {
	b.writeField([]byte(name))
	switch v := value.(type) {
	case string:
		b.writeField([]byte(v))
	case bool:
		b.writeField([]byte(strconv.FormatBool(v)))
	case int:
		b.writeField([]byte(strconv.FormatInt(int64(v), 10)))
	case int64:
		b.writeField([]byte(strconv.FormatInt(v, 10)))
	case []string:
		b.writeField([]byte(strconv.Itoa(len(v))))
		for _, s := range v {
			b.writeField([]byte(s))
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.writeField([]byte(strconv.Itoa(len(keys))))
		for _, k := range keys {
			b.writeField([]byte(k))
			b.writeField([]byte(v[k]))
		}
	case Key:
		b.writeField(v[:])
	default:
		// A rule kind contributing an unsupported type is a programming
		// error in that kind, not a build input problem.
		panic(fmt.Sprintf("rulekey: unsupported field type %T for field %q", value, name))
	}
	return b
}

// AddPath hashes the content of the file at path into the key. The content
// hash is looked up through the shared FileHasher so repeated references to
// the same file across rules hash it once per run. Returns an *IOError if
// the file cannot be read.
func (b *Builder) AddPath(path string) error {
	sum, err := b.files.HashFile(path)
	if err != nil {
		return err
	}
	b.writeField([]byte(path))
	b.writeField(sum[:])
	return nil
}

// AddRuleKeys appends already-computed dependency keys in the order given.
func (b *Builder) AddRuleKeys(keys ...Key) *Builder {
	for _, k := range keys {
		b.writeField(k[:])
	}
	return b
}

// Build finalizes the accumulated state into a Key. Build is idempotent:
// calling it again returns the identical value and further contributions are
// not accepted after the first call.
func (b *Builder) Build() Key {
	if !b.built {
		sum := b.hasher.Sum(nil)
		copy(b.key[:], sum)
		b.built = true
	}
	return b.key
}
