package h2gen

import (
	"testing"

	"github.com/DanielWood/h2-lpm/hpack"
	"github.com/stretchr/testify/require"
)

func TestEncodeConversationSingleExchange(t *testing.T) {
	conv := Conversation{
		Exchanges: []Exchange{
			{
				Request: Sequence{
					Frames: []Frame{
						HeadersFrame{
							StreamID: 1,
							Headers: []hpack.HeaderField{
								hpack.NewHeaderField(":method", "GET"),
								hpack.NewHeaderField(":scheme", "http"),
								hpack.NewHeaderField(":path", "/"),
							},
							EndStream:  true,
							EndHeaders: true,
						},
					},
				},
			},
		},
	}

	out := EncodeConversation(conv)

	// 9-byte frame header + 3-byte compressed header block (all three
	// headers are static-table indexed hits).
	require.Len(t, out, 9+3)
	require.Equal(t, frameTypeHeaders, out[3])
	require.Equal(t, flagEndStream|flagEndHeaders, out[4])
	require.Equal(t, []byte{0x82, 0x86, 0x84}, out[9:])
}

// TestEncodeHeadersFrameRFC7541AppendixC31 is the full HEADERS-frame
// round trip for the RFC 7541 Appendix C.3.1 four-header request list,
// header bytes included: 9-byte frame header (length 0x14, type
// HEADERS, flags END_HEADERS only, stream 1) followed by the same
// compressed block verified in isolation by
// hpack.TestCompressorAppendixC3PlainRequests.
func TestEncodeHeadersFrameRFC7541AppendixC31(t *testing.T) {
	c := hpack.NewCompressor(4096)
	out := EncodeHeaders(HeadersFrame{
		StreamID: 1,
		Headers: []hpack.HeaderField{
			hpack.NewHeaderField(":method", "GET"),
			hpack.NewHeaderField(":scheme", "http"),
			hpack.NewHeaderField(":path", "/"),
			hpack.NewHeaderField(":authority", "www.example.com"),
		},
		EndHeaders: true,
	}, c)

	require.Equal(t, []byte{0x00, 0x00, 0x14, 0x01, 0x04, 0x00, 0x00, 0x00, 0x01}, out[:9])
	require.Equal(t, []byte{
		0x82, 0x86, 0x84, 0x41, 0x0f,
		'w', 'w', 'w', '.', 'e', 'x', 'a', 'm', 'p', 'l', 'e', '.', 'c', 'o', 'm',
	}, out[9:])
}

func TestEncodeConversationSkipsResponseSide(t *testing.T) {
	conv := Conversation{
		Exchanges: []Exchange{
			{
				Request: Sequence{Frames: []Frame{PingFrame{}}},
				Response: Sequence{Frames: []Frame{
					PingFrame{Ack: true},
					PingFrame{Ack: true},
				}},
			},
		},
	}

	out := EncodeConversation(conv)
	require.Len(t, out, 17) // one 9-byte header + 8-byte opaque data PING frame, not three.
}

func TestDataFrameWithPadding(t *testing.T) {
	pad := uint32(2)
	out := EncodeData(DataFrame{StreamID: 3, Data: []byte("hi"), PadLength: &pad, EndStream: true})

	require.Equal(t, frameTypeData, out[3])
	require.Equal(t, flagEndStream|flagPadded, out[4])
	// payload: 1 pad-length byte + 2 data bytes + 2 zero pad bytes = 5
	length := uint32(out[0])<<16 | uint32(out[1])<<8 | uint32(out[2])
	require.EqualValues(t, 5, length)
	require.Equal(t, []byte{2, 'h', 'i', 0, 0}, out[9:])
}
