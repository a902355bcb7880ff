package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Writer appends MUS-encoded values to a growing buffer.
type Writer struct {
	buf []byte
	n   int
}

// NewWriter creates a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) reserve(size int) []byte {
	w.buf = slices.Grow(w.buf, size)[:w.n+size]
	return w.buf[w.n:]
}

// Uint64 writes a varint-encoded unsigned integer.
func (w *Writer) Uint64(v uint64) {
	w.n += varint.Uint64.Marshal(v, w.reserve(varint.Uint64.Size(v)))
}

// Int64 writes a zigzag varint-encoded signed integer.
func (w *Writer) Int64(v int64) {
	w.n += varint.Int64.Marshal(v, w.reserve(varint.Int64.Size(v)))
}

// Int writes a non-negative scalar.
func (w *Writer) Int(v int) {
	w.Uint64(uint64(v))
}

// Len writes a length or element count.
func (w *Writer) Len(v int) {
	w.Uint64(uint64(v))
}

// String writes a length-prefixed string.
func (w *Writer) String(v string) {
	w.n += ord.String.Marshal(v, w.reserve(ord.String.Size(v)))
}

// Bool writes a single-byte boolean.
func (w *Writer) Bool(v bool) {
	w.n += ord.Bool.Marshal(v, w.reserve(ord.Bool.Size(v)))
}

// Float64 writes a raw IEEE-754 double.
func (w *Writer) Float64(v float64) {
	w.n += raw.Float64.Marshal(v, w.reserve(raw.Float64.Size(v)))
}

// Time writes a timestamp with microsecond precision.
// The zero time round-trips as the zero time.
func (w *Writer) Time(t time.Time) {
	if t.IsZero() {
		w.Int64(0)
		return
	}
	w.Int64(t.UnixMicro())
}

// Vector writes a length-prefixed float32 slice.
func (w *Writer) Vector(v []float32) {
	w.Len(len(v))
	for _, x := range v {
		w.n += raw.Float32.Marshal(x, w.reserve(raw.Float32.Size(x)))
	}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.n]
}

// Reader decodes MUS-encoded values in the order they were written.
// The first failure is latched; subsequent reads return zero values.
type Reader struct {
	buf []byte
	n   int
	err error
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: offset %d: %w", ErrSerializationFailed, r.n, err)
	}
}

// Uint64 reads a varint-encoded unsigned integer.
func (r *Reader) Uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.buf[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

// Int64 reads a zigzag varint-encoded signed integer.
func (r *Reader) Int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.buf[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

// Int reads a non-negative scalar written by Writer.Int.
func (r *Reader) Int() int {
	v := r.Uint64()
	if r.err == nil && v > math.MaxInt {
		r.fail(fmt.Errorf("value %d overflows int", v))
		return 0
	}
	return int(v)
}

// Len reads a length or element count. Every element takes at least one
// byte, so a count larger than the unread input is rejected before anything
// is allocated for it.
func (r *Reader) Len() int {
	v := r.Uint64()
	if r.err == nil && v > uint64(len(r.buf)-r.n) {
		r.fail(ErrTruncatedData)
		return 0
	}
	return int(v)
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.buf[r.n:])
	if err != nil {
		r.fail(err)
		return ""
	}
	r.n += n
	return v
}

// Bool reads a single-byte boolean.
func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.buf[r.n:])
	if err != nil {
		r.fail(err)
		return false
	}
	r.n += n
	return v
}

// Float64 reads a raw IEEE-754 double.
func (r *Reader) Float64() float64 {
	if r.err != nil {
		return 0
	}
	v, n, err := raw.Float64.Unmarshal(r.buf[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

// Time reads a timestamp written by Writer.Time, in UTC.
func (r *Reader) Time() time.Time {
	micros := r.Int64()
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

// Vector reads a length-prefixed float32 slice.
func (r *Reader) Vector() []float32 {
	size := r.Len()
	if r.err != nil {
		return nil
	}
	v := make([]float32, size)
	for i := range v {
		x, n, err := raw.Float32.Unmarshal(r.buf[r.n:])
		if err != nil {
			r.fail(err)
			return nil
		}
		r.n += n
		v[i] = x
	}
	return v
}

// Done returns the first decoding error, or ErrTruncatedData if unread bytes remain.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.n != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(r.buf)-r.n)
	}
	return nil
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error {
	return r.err
}
