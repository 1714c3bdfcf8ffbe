package comm

import (
	"testing"
)

func TestMeshConfig_Validate(t *testing.T) {
	valid := MeshConfig{
		NodeID:        "node-a",
		BindAddr:      "127.0.0.1",
		BindPort:      17946,
		DataAddr:      "127.0.0.1:17950",
		ExpectedRanks: 2,
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("validate() on valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*MeshConfig)
	}{
		{"MissingNodeID", func(c *MeshConfig) { c.NodeID = "" }},
		{"MissingBindAddr", func(c *MeshConfig) { c.BindAddr = "" }},
		{"MissingDataAddr", func(c *MeshConfig) { c.DataAddr = "" }},
		{"ZeroRanks", func(c *MeshConfig) { c.ExpectedRanks = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Fatal("validate() should error")
			}
		})
	}
}

func TestFloatFrameCodec(t *testing.T) {
	vals := []float64{0, 1.5, -2.25, 1e300}
	got, err := decodeFloats(encodeFloats(vals))
	if err != nil {
		t.Fatalf("decodeFloats: %v", err)
	}
	if len(got) != len(vals) {
		t.Fatalf("len = %d, want %d", len(got), len(vals))
	}
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("value %d = %v, want %v", i, got[i], vals[i])
		}
	}

	if _, err := decodeFloats(make([]byte, 7)); err == nil {
		t.Fatal("decodeFloats should reject a truncated payload")
	}
}
