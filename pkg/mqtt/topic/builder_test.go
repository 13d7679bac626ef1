package topic

import (
	"testing"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("mesh/v1/")

	if got, want := b.Node("dfu/start", 0xdeadbeef), "mesh/v1/dfu/start/00000000deadbeef"; got != want {
		t.Errorf("Node() = %q, want %q", got, want)
	}
	if got, want := b.Wildcard("mesh/heartbeat"), "mesh/v1/mesh/heartbeat/+"; got != want {
		t.Errorf("Wildcard() = %q, want %q", got, want)
	}
}

func TestBuilderParse(t *testing.T) {
	b := NewBuilder("mesh/v1")

	tests := []struct {
		name        string
		topic       string
		wantSegment string
		wantID      uint64
		wantErr     bool
	}{
		{
			name:        "nested segment",
			topic:       "mesh/v1/dfu/chunk/ack/00000000000000ab",
			wantSegment: "dfu/chunk/ack",
			wantID:      0xab,
		},
		{
			name:        "single segment",
			topic:       "mesh/v1/online/1",
			wantSegment: "online",
			wantID:      1,
		},
		{name: "foreign root", topic: "other/v1/online/1", wantErr: true},
		{name: "missing id", topic: "mesh/v1/online", wantErr: true},
		{name: "bad id", topic: "mesh/v1/online/xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segment, id, err := b.Parse(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if segment != tt.wantSegment || id != tt.wantID {
				t.Errorf("Parse(%q) = (%q, %x), want (%q, %x)", tt.topic, segment, id, tt.wantSegment, tt.wantID)
			}
		})
	}
}
