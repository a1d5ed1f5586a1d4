package cache

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name  string
		key   Key
		value types.Value
	}{
		{"number", Key{Op: "evaluate", Formula: "3 + 5 * 4"}, types.NewNumber(23)},
		{"infinity", Key{Op: "evaluate", Formula: "1 / 0"}, types.NewNumber(math.Inf(1))},
		{"equation", Key{Op: "solve", Formula: "3 * x = 6", Variable: 'x'}, types.NewEquation("x = 2")},
		{"bound", Key{Op: "evaluate", Formula: "x * 2", Bindings: map[rune]float64{'x': 4}}, types.NewNumber(8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Put(tt.key, tt.value); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := c.Get(tt.key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !ok {
				t.Fatal("expected hit")
			}
			if !got.Equal(tt.value) || got.Type() != tt.value.Type() {
				t.Errorf("got %v (%s), want %v (%s)", got, got.Type(), tt.value, tt.value.Type())
			}
		})
	}
}

func TestMiss(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, ok, err := c.Get(Key{Op: "evaluate", Formula: "1"})
	if err != nil || ok {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestKeyDigest(t *testing.T) {
	a := Key{Op: "evaluate", Formula: "x + y", Bindings: map[rune]float64{'x': 1, 'y': 2}}
	b := Key{Op: "evaluate", Formula: "x + y", Bindings: map[rune]float64{'y': 2, 'x': 1}}
	if a.Digest() != b.Digest() {
		t.Error("binding order must not change the digest")
	}

	distinct := []Key{
		{Op: "simplify", Formula: "x + y"},
		{Op: "evaluate", Formula: "x + y"},
		{Op: "evaluate", Formula: "x + y", Bindings: map[rune]float64{'x': 1}},
		{Op: "solve", Formula: "x + y = 1", Variable: 'x'},
		{Op: "solve", Formula: "x + y = 1", Variable: 'y'},
	}
	seen := make(map[[32]byte]int)
	for i, k := range distinct {
		if j, ok := seen[k.Digest()]; ok {
			t.Errorf("keys %d and %d collide", i, j)
		}
		seen[k.Digest()] = i
	}
}

func TestSchemaMismatchIsMiss(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := Key{Op: "evaluate", Formula: "2"}
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := msgpack.Marshal(&Entry{Schema: schemaVersion + 1, Type: "number", Number: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := c.Get(key); ok || err != nil {
		t.Errorf("expected miss for foreign schema, got ok=%v err=%v", ok, err)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	if err := c.Put(Key{Op: "evaluate"}, types.NewNumber(1)); err != nil {
		t.Errorf("nil put: %v", err)
	}
	if _, ok, err := c.Get(Key{Op: "evaluate"}); ok || err != nil {
		t.Errorf("nil get: ok=%v err=%v", ok, err)
	}
}

func TestDropAll(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := Key{Op: "evaluate", Formula: "1"}
	if err := c.Put(key, types.NewNumber(1)); err != nil {
		t.Fatal(err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Error("expected miss after DropAll")
	}
}

func TestOpenDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	c, err := OpenDefault("algebra")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if c.Dir() != filepath.Join(dir, "algebra") {
		t.Errorf("unexpected dir %q", c.Dir())
	}
}
