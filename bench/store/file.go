package store

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/heimdall-bench/heimdall/bench"
)

const (
	tagFloat = "!!float"
	tagNull  = "!!null"
)

// Flush writes the store to res_<machine>_<timestamp>.yaml in the store's
// directory. The file is replaced atomically, so a reader never sees a
// partial write.
func (s *Store) Flush(machine, timestamp string) error {
	s.mu.Lock()
	data, err := encode(s.root)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create result directory %s", s.dir)
	}
	target := s.FilePath(machine, timestamp)
	tmp, err := os.CreateTemp(s.dir, ".res-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temporary result file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrapf(err, "replace %s", target)
	}
	return nil
}

func encode(root *node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(root)); err != nil {
		return nil, errors.Wrap(err, "encode results")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode results")
	}
	return buf.Bytes(), nil
}

func toYAML(n *node) *yaml.Node {
	if n.leaf {
		mean, ok := n.value.Mean()
		if !ok {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagNull, Value: "null"}
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagFloat, Value: formatMean(mean)}
	}
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range n.keys {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			toYAML(n.children[k]),
		)
	}
	return m
}

// formatMean keeps a decimal point on integral means so they read back as
// floats.
func formatMean(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".IN") {
		s += ".0"
	}
	return s
}

// Load reads the result file of a run from dir.
func Load(dir, machine, timestamp string) (*Store, error) {
	path := filepath.Join(dir, FileName(machine, timestamp))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.WithMessage(ErrNotFound, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: path, Msg: err.Error()}
	}
	// Flush writes at least "{}", so an empty document means the file was damaged
	if doc.Kind == 0 {
		return nil, &ParseError{File: path, Msg: "empty result file"}
	}
	s := New(dir)
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{File: path, Line: doc.Line, Msg: "top level is not a mapping"}
	}
	if err := fromYAML(path, doc.Content[0], s.root); err != nil {
		return nil, err
	}
	return s, nil
}

func fromYAML(file string, m *yaml.Node, into *node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return &ParseError{File: file, Line: k.Line, Msg: "mapping key is not a scalar"}
		}
		if into.child(k.Value) != nil {
			return &ParseError{File: file, Line: k.Line, Msg: "duplicate key " + strconv.Quote(k.Value)}
		}
		switch v.Kind {
		case yaml.MappingNode:
			c := newInterior()
			if err := fromYAML(file, v, c); err != nil {
				return err
			}
			into.add(k.Value, c)
		case yaml.ScalarNode:
			agg, err := parseLeaf(v)
			if err != nil {
				return &ParseError{File: file, Line: v.Line, Msg: err.Error()}
			}
			into.add(k.Value, &node{leaf: true, value: agg})
		default:
			return &ParseError{File: file, Line: v.Line, Msg: "value of " + strconv.Quote(k.Value) + " is neither a number nor a mapping"}
		}
	}
	return nil
}

func parseLeaf(v *yaml.Node) (bench.Aggregate, error) {
	if v.ShortTag() == tagNull {
		return bench.NoData, nil
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return bench.NoData, errors.Errorf("value %q is not a number", v.Value)
	}
	return bench.Value(f), nil
}
