// Package wire encodes the messages exchanged between a node, its peers and
// the host. Messages use the protobuf wire format so any protobuf toolchain can
// read them, but are encoded by hand to keep the node free of generated code.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrWireType is returned when a known field arrives with an unexpected wire type.
var ErrWireType = errors.New("unexpected wire type")

type encoder struct {
	b []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.uint(num, 1)
	}
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

// message appends v even when empty, so repeated entries keep their count.
func (e *encoder) message(num protowire.Number, v []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

// field is one undecoded field; b starts at its value.
type field struct {
	num protowire.Number
	typ protowire.Type
	b   []byte
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: %w %d", f.num, ErrWireType, f.typ)
	}
	return nil
}

func (f field) uint64(dst *uint64) (int, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(f.b)
	if n < 0 {
		return 0, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
	}
	*dst = v
	return n, nil
}

func (f field) uint32(dst *uint32) (int, error) {
	var v uint64
	n, err := f.uint64(&v)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("field %d: value %d overflows uint32", f.num, v)
	}
	*dst = uint32(v)
	return n, nil
}

func (f field) uint16(dst *uint16) (int, error) {
	var v uint32
	n, err := f.uint32(&v)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("field %d: value %d overflows uint16", f.num, v)
	}
	*dst = uint16(v)
	return n, nil
}

func (f field) uint8(dst *uint8) (int, error) {
	var v uint32
	n, err := f.uint32(&v)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint8 {
		return 0, fmt.Errorf("field %d: value %d overflows uint8", f.num, v)
	}
	*dst = uint8(v)
	return n, nil
}

func (f field) bool(dst *bool) (int, error) {
	var v uint64
	n, err := f.uint64(&v)
	if err != nil {
		return 0, err
	}
	*dst = v != 0
	return n, nil
}

func (f field) bytes(dst *[]byte) (int, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeBytes(f.b)
	if n < 0 {
		return 0, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func (f field) string(dst *string) (int, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeString(f.b)
	if n < 0 {
		return 0, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
	}
	*dst = v
	return n, nil
}

// decode walks the fields of b. fn returns the number of bytes it consumed, or
// zero to skip a field it does not know.
func decode(b []byte, fn func(f field) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(field{num: num, typ: typ, b: b})
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}
