// Package wire is a small helper over protobuf's low-level wire format
// (protowire). Records in gophchat are flat, so they are encoded by hand
// instead of through generated code; the bytes are still valid protobuf
// and readable by any protobuf decoder given a matching schema.
package wire

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"google.golang.org/protobuf/encoding/protowire"
)

// Builder appends fields to a protobuf message. Zero values are skipped,
// matching proto3 semantics.
type Builder struct {
	buf []byte
}

func (w *Builder) String(num protowire.Number, s string) {
	if s == "" {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, s)
}

func (w *Builder) Bytes(num protowire.Number, b []byte) {
	if len(b) == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, b)
}

// Message embeds an already encoded message. Unlike Bytes it is written
// even when empty, so repeated fields keep their element count.
func (w *Builder) Message(num protowire.Number, b []byte) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, b)
}

func (w *Builder) Uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *Builder) Int64(num protowire.Number, v int64) {
	w.Uint64(num, uint64(v))
}

func (w *Builder) Bool(num protowire.Number, v bool) {
	if v {
		w.Uint64(num, 1)
	}
}

// Time is stored as Unix nanoseconds.
func (w *Builder) Time(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	w.Int64(num, t.UnixNano())
}

// Finish returns the encoded message.
func (w *Builder) Finish() []byte {
	if w.buf == nil {
		return []byte{}
	}
	return w.buf
}

// Field is one decoded field. Only varint and length-delimited fields are
// surfaced; other wire types are skipped by Walk.
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	varint uint64
	bytes  []byte
}

// Str returns a length-delimited field as a string.
func (f Field) Str() string { return string(f.bytes) }

// Raw returns a copy of a length-delimited field.
func (f Field) Raw() []byte { return common.CloneBytes(f.bytes) }

func (f Field) Uint64() uint64 { return f.varint }

func (f Field) Int64() int64 { return int64(f.varint) }

func (f Field) Bool() bool { return f.varint != 0 }

// Time decodes a field written by Builder.Time, in UTC.
func (f Field) Time() time.Time { return time.Unix(0, int64(f.varint)).UTC() }

// Walk decodes data field by field and calls fn for each. Unknown wire
// types are skipped. Malformed input yields common.ErrInvalidInput.
func Walk(data []byte, fn func(f Field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return malformed(n)
		}
		data = data[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return malformed(m)
			}
			f.varint = v
			data = data[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return malformed(m)
			}
			f.bytes = v
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return malformed(m)
			}
			data = data[m:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func malformed(n int) error {
	return fmt.Errorf("wire: %v: %w", protowire.ParseError(n), common.ErrInvalidInput)
}
