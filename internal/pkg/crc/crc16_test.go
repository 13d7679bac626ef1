package crc

import (
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint16
	}{
		{name: "empty", in: nil, want: 0},
		{name: "check string", in: []byte("123456789"), want: 0x31c3},
		{name: "single zero", in: []byte{0x00}, want: 0},
		{name: "single byte", in: []byte{0x01}, want: 0x1021},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.in); got != tt.want {
				t.Errorf("Checksum(%q) = %#04x, want %#04x", tt.in, got, tt.want)
			}
		})
	}
}

func TestUpdateIncremental(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	want := Checksum(data)

	for split := 0; split <= len(data); split++ {
		got := Update(Update(0, data[:split]), data[split:])
		if got != want {
			t.Fatalf("split at %d: got %#04x, want %#04x", split, got, want)
		}
	}
}
