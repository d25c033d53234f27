package hpack

// Compressor holds the dynamic table for one HPACK encoding context. A
// fresh Compressor must be created per connection/conversation: there is
// no package-level shared state, so two Compressors never interfere with
// each other even when used concurrently.
//
// https://tools.ietf.org/html/rfc7541#section-2.3.2
type Compressor struct {
	dynamicTable []HeaderField
	maxTableSize uint32
	tableSize    uint32
}

// NewCompressor returns a Compressor with an empty dynamic table and the
// given size limit (RFC 7541 §4.2, SETTINGS_HEADER_TABLE_SIZE).
func NewCompressor(maxTableSize uint32) *Compressor {
	return &Compressor{maxTableSize: maxTableSize}
}

// SetMaxTableSize changes the dynamic table's size limit, evicting
// entries immediately if the new limit is smaller than the current
// table size (RFC 7541 §4.3 — eviction happens as soon as the limit
// changes, not lazily on the next Compress call).
func (c *Compressor) SetMaxTableSize(size uint32) {
	c.maxTableSize = size
	c.evict()
}

// Compress returns the HPACK representation of headers in a new slice,
// choosing for each field the indexed,
// literal-with-indexed-name, or literal-with-literal-name
// representation, per RFC 7541 §6.
func (c *Compressor) Compress(headers []HeaderField) []byte {
	return c.AppendCompress(nil, headers)
}

// AppendCompress is the append-style counterpart of Compress.
func (c *Compressor) AppendCompress(dst []byte, headers []HeaderField) []byte {
	for _, hf := range headers {
		dst = c.compressField(dst, hf)
	}
	return dst
}

func (c *Compressor) compressField(dst []byte, hf HeaderField) []byte {
	name := string(hf.Name.Data)
	value := string(hf.Value.Data)

	if !hf.Name.ForceLiteral {
		if idx, full := c.headerIndex(name, value); full {
			// Indexed Header Field, RFC 7541 §6.1: a single index,
			// 7-bit prefix, high bit set.
			return AppendPrefixInt(dst, uint64(idx), 7, 0x80)
		}
	}

	nameIdx, nameFound := 0, false
	if !hf.Name.ForceLiteral {
		nameIdx, nameFound = c.nameIndex(name)
	}

	prefix := literalPrefix[hf.Indexing]
	msb := literalMSB[hf.Indexing]

	if nameFound {
		// Literal Header Field with Incremental/Without/Never Indexing,
		// indexed name: RFC 7541 §6.2.1/6.2.2/6.2.3.
		dst = AppendPrefixInt(dst, uint64(nameIdx), prefix, msb)
	} else {
		dst = AppendPrefixInt(dst, 0, prefix, msb)
		dst = EncodeString(dst, hf.Name)
	}
	dst = EncodeString(dst, hf.Value)

	if hf.Indexing == Incremental {
		c.dynamicTableAdd(hf)
	}
	return dst
}

// headerIndex searches the static table then the dynamic table for an
// exact name+value match. The returned index is 1-based per RFC 7541
// §2.3.3, with the dynamic table addressed starting at
// len(staticTable)+1.
func (c *Compressor) headerIndex(name, value string) (idx int, ok bool) {
	for i, e := range staticTable {
		if e.name == name && e.value == value {
			return i + 1, true
		}
	}
	for i, hf := range c.dynamicTable {
		if string(hf.Name.Data) == name && string(hf.Value.Data) == value {
			return len(staticTable) + i + 1, true
		}
	}
	return 0, false
}

// nameIndex is like headerIndex but matches on name only, preferring the
// static table (matching the original source's lookup order).
func (c *Compressor) nameIndex(name string) (idx int, ok bool) {
	for i, e := range staticTable {
		if e.name == name {
			return i + 1, true
		}
	}
	for i, hf := range c.dynamicTable {
		if string(hf.Name.Data) == name {
			return len(staticTable) + i + 1, true
		}
	}
	return 0, false
}

// dynamicTableAdd inserts hf at the front of the dynamic table (newest
// entry first, per RFC 7541 §2.3.2) and evicts from the back until the
// table fits within maxTableSize.
func (c *Compressor) dynamicTableAdd(hf HeaderField) {
	c.dynamicTable = append([]HeaderField{hf}, c.dynamicTable...)
	c.tableSize += hf.size()
	c.evict()
}

// evict drops entries from the back of the dynamic table until
// tableSize fits within maxTableSize. An entry larger than the whole
// table on its own empties the table entirely and the size accounting
// resets to zero, per RFC 7541 §4.4.
func (c *Compressor) evict() {
	for c.tableSize > c.maxTableSize && len(c.dynamicTable) > 0 {
		last := c.dynamicTable[len(c.dynamicTable)-1]
		c.dynamicTable = c.dynamicTable[:len(c.dynamicTable)-1]
		c.tableSize -= last.size()
	}
	if len(c.dynamicTable) == 0 {
		c.tableSize = 0
	}
}
