package hpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The three requests and expected wire output are RFC 7541 Appendix
// C.3 (without Huffman) and C.4 (with Huffman), run sequentially
// against one Compressor so that each exercises the dynamic table the
// previous request populated.

func huffField(name, value string) HeaderField {
	hf := NewHeaderField(name, value)
	hf.Name.Huffman = true
	hf.Value.Huffman = true
	return hf
}

func TestCompressorAppendixC3PlainRequests(t *testing.T) {
	c := NewCompressor(4096)

	first := c.Compress([]HeaderField{
		NewHeaderField(":method", "GET"),
		NewHeaderField(":scheme", "http"),
		NewHeaderField(":path", "/"),
		NewHeaderField(":authority", "www.example.com"),
	})
	require.Equal(t, []byte{
		0x82, 0x86, 0x84, 0x41, 0x0f,
		'w', 'w', 'w', '.', 'e', 'x', 'a', 'm', 'p', 'l', 'e', '.', 'c', 'o', 'm',
	}, first)

	second := c.Compress([]HeaderField{
		NewHeaderField(":method", "GET"),
		NewHeaderField(":scheme", "http"),
		NewHeaderField(":path", "/"),
		NewHeaderField(":authority", "www.example.com"),
		NewHeaderField("cache-control", "no-cache"),
	})
	require.Equal(t, []byte{
		0x82, 0x86, 0x84, 0xbe, 0x58, 0x08,
		'n', 'o', '-', 'c', 'a', 'c', 'h', 'e',
	}, second)

	third := c.Compress([]HeaderField{
		NewHeaderField(":method", "GET"),
		NewHeaderField(":scheme", "https"),
		NewHeaderField(":path", "/index.html"),
		NewHeaderField(":authority", "www.example.com"),
		NewHeaderField("custom-key", "custom-value"),
	})
	require.Equal(t, []byte{
		0x82, 0x87, 0x85, 0xbf, 0x40, 0x0a,
		'c', 'u', 's', 't', 'o', 'm', '-', 'k', 'e', 'y', 0x0c,
		'c', 'u', 's', 't', 'o', 'm', '-', 'v', 'a', 'l', 'u', 'e',
	}, third)
}

func TestCompressorAppendixC4HuffmanRequests(t *testing.T) {
	c := NewCompressor(4096)

	first := c.Compress([]HeaderField{
		NewHeaderField(":method", "GET"),
		NewHeaderField(":scheme", "http"),
		NewHeaderField(":path", "/"),
		huffField(":authority", "www.example.com"),
	})
	require.Equal(t, []byte{
		0x82, 0x86, 0x84, 0x41, 0x8c,
		0xf1, 0xe3, 0xc2, 0xe5, 0xf2, 0x3a, 0x6b, 0xa0, 0xab, 0x90, 0xf4, 0xff,
	}, first)

	second := c.Compress([]HeaderField{
		NewHeaderField(":method", "GET"),
		NewHeaderField(":scheme", "http"),
		NewHeaderField(":path", "/"),
		huffField(":authority", "www.example.com"),
		huffField("cache-control", "no-cache"),
	})
	require.Equal(t, []byte{
		0x82, 0x86, 0x84, 0xbe, 0x58, 0x86,
		0xa8, 0xeb, 0x10, 0x64, 0x9c, 0xbf,
	}, second)

	third := c.Compress([]HeaderField{
		NewHeaderField(":method", "GET"),
		NewHeaderField(":scheme", "https"),
		NewHeaderField(":path", "/index.html"),
		huffField(":authority", "www.example.com"),
		huffField("custom-key", "custom-value"),
	})
	require.Equal(t, []byte{
		0x82, 0x87, 0x85, 0xbf, 0x40, 0x88,
		0x25, 0xa8, 0x49, 0xe9, 0x5b, 0xa9, 0x7d, 0x7f, 0x89,
		0x25, 0xa8, 0x49, 0xe9, 0x5b, 0xb8, 0xe8, 0xb4, 0xbf,
	}, third)
}

// TestCompressorMultiOctetHuffmanLiteral is the custom "multi-octet
// Huffman literal" vector carried over from the original source's own
// acceptance run: a literal header with no indexed name, both name and
// value Huffman-coded, where the value's encoded length (15 bytes)
// itself needs its own length-prefix octet.
func TestCompressorMultiOctetHuffmanLiteral(t *testing.T) {
	c := NewCompressor(4096)

	out := c.Compress([]HeaderField{
		huffField("custom-key", "[huffmancodeme]lol"),
	})
	require.Equal(t, []byte{
		0x40, 0x88,
		0x25, 0xa8, 0x49, 0xe9, 0x5b, 0xa9, 0x7d, 0x7f,
		0x8f,
		0xff, 0xdc, 0xf6, 0xcb, 0x2d, 0x23, 0xa8, 0x87, 0x90, 0xb4, 0x97, 0xff, 0x94, 0x1e, 0x8f,
	}, out)
}

func TestDynamicTableEvictionOnOversizedEntry(t *testing.T) {
	c := NewCompressor(64)

	c.Compress([]HeaderField{NewHeaderField("x", "y")})
	require.Len(t, c.dynamicTable, 1)

	// An entry whose own size exceeds maxTableSize empties the table,
	// per RFC 7541 §4.4, rather than being rejected.
	big := NewHeaderField("k", string(make([]byte, 128)))
	c.Compress([]HeaderField{big})
	require.Empty(t, c.dynamicTable)
	require.Zero(t, c.tableSize)
}

func TestSetMaxTableSizeEvictsImmediately(t *testing.T) {
	c := NewCompressor(4096)
	c.Compress([]HeaderField{NewHeaderField("a", "1")})
	c.Compress([]HeaderField{NewHeaderField("b", "2")})
	require.Len(t, c.dynamicTable, 2)

	c.SetMaxTableSize(0)
	require.Empty(t, c.dynamicTable)
	require.Zero(t, c.tableSize)
}

func TestNeverIndexedDoesNotGrowDynamicTable(t *testing.T) {
	c := NewCompressor(4096)
	hf := NewHeaderField("authorization", "secret")
	hf.Indexing = NeverIndexed

	out := c.Compress([]HeaderField{hf})
	require.Empty(t, c.dynamicTable)
	// NeverIndexed uses a 4-bit prefix, msb 0x10: authorization is
	// static index 23, which overflows the 4-bit prefix (max 15), so it
	// spills into a continuation byte: 0x1f then (23-15).
	require.Equal(t, []byte{0x1f, 0x08}, out[:2])
}
