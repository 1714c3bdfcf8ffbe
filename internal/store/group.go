package store

import (
	"fmt"
	"sort"
)

// Group is a handle on one group of the tree. On non-coordinator ranks
// of a collective group the handle is a participation stub: navigation
// succeeds so call sequences stay matched across ranks, but independent
// reads and writes fail with ErrNotCoordinator.
type Group struct {
	f *File
	n *node
}

// stub reports whether this handle has no tree behind it.
func (g *Group) stub() bool { return g.n == nil }

// independent guards attribute and dataset access.
func (g *Group) independent() error {
	if g.f.closed {
		return ErrClosed
	}
	if g.stub() {
		return ErrNotCoordinator
	}
	return nil
}

// writable additionally requires append mode.
func (g *Group) writable() error {
	if err := g.independent(); err != nil {
		return err
	}
	if g.f.mode == ModeRead {
		return ErrReadOnly
	}
	return nil
}

// CreateGroup returns the named child group, creating it if absent.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if g.f.closed {
		return nil, ErrClosed
	}
	if g.stub() {
		return &Group{f: g.f}, nil
	}
	if g.f.mode == ModeRead {
		return nil, ErrReadOnly
	}
	child, ok := g.n.Groups[name]
	if !ok {
		child = newNode()
		g.n.Groups[name] = child
	}
	return &Group{f: g.f, n: child}, nil
}

// OpenGroup returns the named child group, or ErrNotFound.
func (g *Group) OpenGroup(name string) (*Group, error) {
	if g.f.closed {
		return nil, ErrClosed
	}
	if g.stub() {
		return &Group{f: g.f}, nil
	}
	child, ok := g.n.Groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: group %q", ErrNotFound, name)
	}
	return &Group{f: g.f, n: child}, nil
}

// Groups returns the sorted names of the child groups.
func (g *Group) Groups() []string {
	if g.stub() {
		return nil
	}
	names := make([]string, 0, len(g.n.Groups))
	for name := range g.n.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attribute writers.

func (g *Group) SetAttrInt(name string, v int64) error {
	if err := g.writable(); err != nil {
		return err
	}
	g.n.Attrs[name] = attr{Kind: kindInt, Int: v}
	return nil
}

func (g *Group) SetAttrFloat(name string, v float64) error {
	if err := g.writable(); err != nil {
		return err
	}
	g.n.Attrs[name] = attr{Kind: kindFloat, Float: v}
	return nil
}

func (g *Group) SetAttrString(name, v string) error {
	if err := g.writable(); err != nil {
		return err
	}
	g.n.Attrs[name] = attr{Kind: kindString, Str: v}
	return nil
}

// Attribute readers.

func (g *Group) AttrInt(name string) (int64, error) {
	a, err := g.attr(name, kindInt)
	if err != nil {
		return 0, err
	}
	return a.Int, nil
}

func (g *Group) AttrFloat(name string) (float64, error) {
	a, err := g.attr(name, kindFloat)
	if err != nil {
		return 0, err
	}
	return a.Float, nil
}

func (g *Group) AttrString(name string) (string, error) {
	a, err := g.attr(name, kindString)
	if err != nil {
		return "", err
	}
	return a.Str, nil
}

// HasAttr reports whether the named attribute exists.
func (g *Group) HasAttr(name string) bool {
	if g.stub() {
		return false
	}
	_, ok := g.n.Attrs[name]
	return ok
}

func (g *Group) attr(name, kind string) (attr, error) {
	if err := g.independent(); err != nil {
		return attr{}, err
	}
	a, ok := g.n.Attrs[name]
	if !ok {
		return attr{}, fmt.Errorf("%w: attribute %q", ErrNotFound, name)
	}
	if a.Kind != kind {
		return attr{}, fmt.Errorf("%w: attribute %q is %s", ErrTypeMismatch, name, a.Kind)
	}
	return a, nil
}

// Dataset writers. Slices are copied in.

func (g *Group) WriteInts(name string, v []int64) error {
	if err := g.writable(); err != nil {
		return err
	}
	data := make([]int64, len(v))
	copy(data, v)
	g.n.Datasets[name] = dataset{Kind: kindInt, Ints: data}
	return nil
}

func (g *Group) WriteFloats(name string, v []float64) error {
	if err := g.writable(); err != nil {
		return err
	}
	data := make([]float64, len(v))
	copy(data, v)
	g.n.Datasets[name] = dataset{Kind: kindFloat, Floats: data}
	return nil
}

func (g *Group) WriteStrings(name string, v []string) error {
	if err := g.writable(); err != nil {
		return err
	}
	data := make([]string, len(v))
	copy(data, v)
	g.n.Datasets[name] = dataset{Kind: kindString, Strs: data}
	return nil
}

// Dataset readers. Slices are copied out.

func (g *Group) ReadInts(name string) ([]int64, error) {
	d, err := g.dataset(name, kindInt)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(d.Ints))
	copy(out, d.Ints)
	return out, nil
}

func (g *Group) ReadFloats(name string) ([]float64, error) {
	d, err := g.dataset(name, kindFloat)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(d.Floats))
	copy(out, d.Floats)
	return out, nil
}

func (g *Group) ReadStrings(name string) ([]string, error) {
	d, err := g.dataset(name, kindString)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(d.Strs))
	copy(out, d.Strs)
	return out, nil
}

// HasDataset reports whether the named dataset exists.
func (g *Group) HasDataset(name string) bool {
	if g.stub() {
		return false
	}
	_, ok := g.n.Datasets[name]
	return ok
}

func (g *Group) dataset(name, kind string) (dataset, error) {
	if err := g.independent(); err != nil {
		return dataset{}, err
	}
	d, ok := g.n.Datasets[name]
	if !ok {
		return dataset{}, fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}
	if d.Kind != kind {
		return dataset{}, fmt.Errorf("%w: dataset %q is %s", ErrTypeMismatch, name, d.Kind)
	}
	return d, nil
}

// Scalar dataset conveniences.

func (g *Group) WriteInt(name string, v int64) error {
	return g.WriteInts(name, []int64{v})
}

func (g *Group) WriteFloat(name string, v float64) error {
	return g.WriteFloats(name, []float64{v})
}

func (g *Group) ReadInt(name string) (int64, error) {
	v, err := g.ReadInts(name)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("%w: dataset %q has %d elements, want 1", ErrTypeMismatch, name, len(v))
	}
	return v[0], nil
}

func (g *Group) ReadFloat(name string) (float64, error) {
	v, err := g.ReadFloats(name)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("%w: dataset %q has %d elements, want 1", ErrTypeMismatch, name, len(v))
	}
	return v[0], nil
}
