// Package cache persists operation results on disk so repeated requests for
// the same formula skip the pipeline. Entries are msgpack-encoded files
// named by the SHA-256 of the request.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// Current schema version - increment when Entry format changes
const schemaVersion uint16 = 1

// Key identifies a cached result.
type Key struct {
	Op       string
	Formula  string
	Variable rune
	Bindings map[rune]float64
}

// Digest returns the SHA-256 of op|formula|variable|bindings, with bindings
// in ascending variable order.
func (k Key) Digest() [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(k.Op))
	h.Write([]byte{'|'})
	h.Write([]byte(k.Formula))
	h.Write([]byte{'|'})
	if k.Variable != 0 {
		h.Write([]byte(string(k.Variable)))
	}
	h.Write([]byte{'|'})

	names := make([]rune, 0, len(k.Bindings))
	for name := range k.Bindings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		fmt.Fprintf(h, "%c=%s;", name, strconv.FormatFloat(k.Bindings[name], 'g', -1, 64))
	}

	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Entry is the on-disk form of a cached value.
type Entry struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Type   string
	Number float64
	Text   string
}

// Cache is a directory of cached results. A nil *Cache is a valid cache
// that never hits. Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open returns a cache rooted at dir, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenDefault opens the cache at $XDG_CACHE_HOME/app, falling back to
// ~/.cache/app.
func OpenDefault(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, app))
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Key) string {
	d := key.Digest()
	hexKey := hex.EncodeToString(d[:])
	return filepath.Join(c.dir, "results", hexKey[:2], hexKey+".mp")
}

// Put writes a value for key, replacing any previous entry atomically.
func (c *Cache) Put(key Key, v types.Value) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	entry := Entry{Schema: schemaVersion, Type: v.Type().String(), Text: v.Text()}
	if n, ok := v.AsNumber(); ok {
		entry.Number = n
	}
	if err := msgpack.NewEncoder(f).Encode(&entry); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

// Get reads the value for key. Entries written with another schema version
// are treated as misses.
func (c *Cache) Get(key Key) (types.Value, bool, error) {
	if c == nil {
		return types.Null, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Null, false, nil
		}
		return types.Null, false, err
	}
	defer f.Close()

	var entry Entry
	if err := msgpack.NewDecoder(f).Decode(&entry); err != nil {
		return types.Null, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	if entry.Schema != schemaVersion {
		return types.Null, false, nil
	}
	typ, err := types.ParseValueType(entry.Type)
	if err != nil {
		return types.Null, false, err
	}
	return types.ValueFromParts(typ, entry.Number, entry.Text), true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "results"))
}
