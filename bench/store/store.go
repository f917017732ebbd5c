// Package store keeps the nested result mapping of a sweep
// (kind → variant → placement → size → mean) and persists it as YAML.
//
// Keys keep their insertion order, so a flushed file lists results in the
// order the sweep produced them and two flushes of the same content are
// byte-identical.
package store

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/heimdall-bench/heimdall/bench"
)

// ErrNotFound is returned by Load when the result file does not exist.
var ErrNotFound = fmt.Errorf("result file not found: %w", fs.ErrNotExist)

// ParseError reports a result file that is not a valid nested mapping.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// FileName is the base name of the result file for a run.
func FileName(machine, timestamp string) string {
	return fmt.Sprintf("res_%s_%s.yaml", machine, timestamp)
}

// node is either an interior mapping or a leaf holding an aggregate.
type node struct {
	keys     []string
	children map[string]*node
	leaf     bool
	value    bench.Aggregate
}

func newInterior() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) child(key string) *node {
	if n.children == nil {
		return nil
	}
	return n.children[key]
}

func (n *node) add(key string, c *node) {
	n.keys = append(n.keys, key)
	n.children[key] = c
}

// Entry is one stored aggregate.
type Entry struct {
	Path      bench.Path
	Aggregate bench.Aggregate
}

// Store is the in-memory result mapping of one run. It is safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	dir  string
	root *node
}

// New returns an empty store that flushes into dir.
func New(dir string) *Store {
	return &Store{dir: dir, root: newInterior()}
}

// Dir is the directory the store flushes into.
func (s *Store) Dir() string {
	return s.dir
}

// FilePath is the full path of the result file for a run.
func (s *Store) FilePath(machine, timestamp string) string {
	return filepath.Join(s.dir, FileName(machine, timestamp))
}

// Record stores agg at path, creating intermediate levels in order and
// overwriting an existing value in place. A path that would turn a value
// into a mapping, or a mapping into a value, is rejected.
func (s *Store) Record(path bench.Path, agg bench.Aggregate) error {
	if len(path) == 0 {
		return fmt.Errorf("store: empty path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.root
	for i, key := range path {
		last := i == len(path)-1
		c := n.child(key)
		switch {
		case c == nil && last:
			n.add(key, &node{leaf: true, value: agg})
			return nil
		case c == nil:
			c = newInterior()
			n.add(key, c)
		case last && !c.leaf:
			return fmt.Errorf("store: %s holds nested results, cannot record a value", path)
		case last:
			c.value = agg
			return nil
		case c.leaf:
			return fmt.Errorf("store: %s holds a value, cannot nest %s under it", bench.Path(path[:i+1]), path)
		}
		n = c
	}
	return nil
}

// Get returns the aggregate stored at path.
func (s *Store) Get(path bench.Path) (bench.Aggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookup(path)
	if n == nil || !n.leaf {
		return bench.NoData, false
	}
	return n.value, true
}

// Children returns the keys directly under prefix, in insertion order.
func (s *Store) Children(prefix bench.Path) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookup(prefix)
	if n == nil || n.leaf {
		return nil
	}
	return append([]string(nil), n.keys...)
}

func (s *Store) lookup(path bench.Path) *node {
	n := s.root
	for _, key := range path {
		if n.leaf {
			return nil
		}
		n = n.child(key)
		if n == nil {
			return nil
		}
	}
	return n
}

// Len is the number of stored aggregates.
func (s *Store) Len() int {
	return len(s.Entries())
}

// Entries returns every stored aggregate in insertion order.
func (s *Store) Entries() []Entry {
	var out []Entry
	_ = s.Walk(func(p bench.Path, agg bench.Aggregate) error {
		out = append(out, Entry{Path: p, Aggregate: agg})
		return nil
	})
	return out
}

// Walk calls fn for every stored aggregate in insertion order, stopping at
// the first error.
func (s *Store) Walk(fn func(bench.Path, bench.Aggregate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return walk(s.root, nil, fn)
}

func walk(n *node, prefix bench.Path, fn func(bench.Path, bench.Aggregate) error) error {
	if n.leaf {
		return fn(append(bench.Path(nil), prefix...), n.value)
	}
	for _, k := range n.keys {
		if err := walk(n.children[k], append(prefix, k), fn); err != nil {
			return err
		}
	}
	return nil
}
