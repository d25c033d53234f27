package hpack

// Indexing selects how a HeaderField's representation interacts with the
// dynamic table, per RFC 7541 §6.2.
type Indexing int

const (
	// Incremental adds the field to the dynamic table after emitting it.
	Incremental Indexing = iota
	// WithoutIndex emits the field as a literal without touching the table.
	WithoutIndex
	// NeverIndexed is like WithoutIndex, but marks the field so that
	// intermediaries must re-encode it the same way (RFC 7541 §7.1.3).
	NeverIndexed
)

// literalPrefix and literalMSB give the (prefix-bit-count, msb-mask) pair
// used for a literal-representation header field, indexed by Indexing.
//
// https://tools.ietf.org/html/rfc7541#section-6.2
var (
	literalPrefix = [...]uint{Incremental: 6, WithoutIndex: 4, NeverIndexed: 4}
	literalMSB    = [...]byte{Incremental: 0x40, WithoutIndex: 0x00, NeverIndexed: 0x10}
)

// HeaderField is one name/value pair with its indexing directive and
// per-string encoding hints. This is the unit Compress operates on.
type HeaderField struct {
	Name     String
	Value    String
	Indexing Indexing
}

// NewHeaderField builds a HeaderField from plain strings with
// incremental indexing and no Huffman coding, the common case.
func NewHeaderField(name, value string) HeaderField {
	return HeaderField{Name: NewString(name), Value: NewString(value), Indexing: Incremental}
}

// size is the RFC 7541 §4.1 entry size accounting used for dynamic-table
// bookkeeping: name length + value length + 32 bytes of overhead.
func (hf HeaderField) size() uint32 {
	return uint32(len(hf.Name.Data)) + uint32(len(hf.Value.Data)) + 32
}
