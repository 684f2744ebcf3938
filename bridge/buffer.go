package bridge

import "unicode/utf8"

// Buffer is a read-only view over bytes owned by someone else.
// The zero Buffer is the null sentinel, which is distinct from an empty view.
type Buffer struct {
	data []byte
}

// FromBytes returns a view over b. A nil b yields an empty, non-null view.
func FromBytes(b []byte) Buffer {
	if b == nil {
		b = []byte{}
	}
	return Buffer{data: b}
}

// FromText returns a view over the bytes of s
func FromText(s string) Buffer {
	return FromBytes([]byte(s))
}

// Null returns the null sentinel
func Null() Buffer {
	return Buffer{}
}

// IsNull reports whether b is the null sentinel
func (b Buffer) IsNull() bool {
	return b.data == nil
}

// Len returns the number of bytes in the view
func (b Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the viewed bytes; nil for the null sentinel.
// The slice must not be modified or kept beyond the life of the producer.
func (b Buffer) Bytes() []byte {
	return b.data
}

// Text decodes the view as UTF-8. The null sentinel decodes to "".
func (b Buffer) Text() (string, error) {
	if !utf8.Valid(b.data) {
		return "", newError(StatusEncoding, nil, "buffer is not valid UTF-8")
	}
	return string(b.data), nil
}

// QueryParam is a typed parameter as handed over by the caller
type QueryParam struct {
	TypeName Buffer
	Value    Buffer
}

// RowItem is one column of a row. Both buffers are null for SQL NULL.
type RowItem struct {
	TypeName Buffer
	Value    Buffer
}

// IsNull reports whether the item is SQL NULL
func (i RowItem) IsNull() bool {
	return i.TypeName.IsNull() && i.Value.IsNull()
}
