package profilestore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Backend is the byte-level storage beneath a Store. Keys are hierarchical
// paths encoded with ':' between segments.
type Backend interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete removes keys; absent keys are ignored. Deletion is atomic.
	Delete(ctx context.Context, keys ...Key) error
	// Scan iterates in lexicographic order over entries under prefix.
	Scan(ctx context.Context, prefix Key) iter.Seq2[Record, error]
	Close() error
}

// Record is a key-value pair produced by Scan.
type Record struct {
	Key   Key
	Value []byte
}

const separator = ':'

// ErrInvalidKey is returned for empty key segments or segments containing
// the separator.
var ErrInvalidKey = errors.New("profilestore: invalid key segment")

// Key is a hierarchical storage path, e.g. {"vt", "bp", "alice", "office"}.
type Key []string

func (k Key) String() string { return strings.Join(k, string(separator)) }

func (k Key) bytes() []byte { return []byte(k.String()) }

// prefixBytes returns the encoded prefix followed by a separator so that
// {"a", "b"} does not match "a:bc".
func (k Key) prefixBytes() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.bytes(), separator)
}

func parseKey(b []byte) Key {
	return Key(strings.Split(string(b), string(separator)))
}

func checkSegment(name, seg string) error {
	if seg == "" || strings.IndexByte(seg, separator) >= 0 {
		return fmt.Errorf("%w: %s %q", ErrInvalidKey, name, seg)
	}
	return nil
}
