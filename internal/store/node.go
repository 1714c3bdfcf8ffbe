package store

// Value kinds carried by attributes and datasets.
const (
	kindInt    = "int64"
	kindFloat  = "float64"
	kindString = "string"
)

// attr is a scalar attribute. Exactly one of the value fields is
// meaningful, selected by Kind. Zero values round-trip through omitempty
// because a missing field decodes back to the zero value.
type attr struct {
	Kind  string  `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
}

// dataset is a typed one-dimensional array.
type dataset struct {
	Kind   string    `json:"kind"`
	Ints   []int64   `json:"ints,omitempty"`
	Floats []float64 `json:"floats,omitempty"`
	Strs   []string  `json:"strs,omitempty"`
}

// node is one group of the serialized tree.
type node struct {
	Attrs    map[string]attr    `json:"attrs,omitempty"`
	Datasets map[string]dataset `json:"datasets,omitempty"`
	Groups   map[string]*node   `json:"groups,omitempty"`
}

func newNode() *node {
	return &node{
		Attrs:    make(map[string]attr),
		Datasets: make(map[string]dataset),
		Groups:   make(map[string]*node),
	}
}

// normalize restores nil maps after JSON decoding.
func (n *node) normalize() {
	if n.Attrs == nil {
		n.Attrs = make(map[string]attr)
	}
	if n.Datasets == nil {
		n.Datasets = make(map[string]dataset)
	}
	if n.Groups == nil {
		n.Groups = make(map[string]*node)
	}
	for _, child := range n.Groups {
		child.normalize()
	}
}
