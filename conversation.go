package h2gen

import "github.com/DanielWood/h2-lpm/hpack"

// Sequence is an ordered list of frames sharing one HPACK encoding
// context. Encode threads a Compressor through every header-bearing
// frame in order, so indexed references within a Sequence resolve
// against the dynamic table state left by earlier frames in it.
type Sequence struct {
	Frames []Frame
}

// Encode appends every frame in s, in order, to dst.
func (s Sequence) Encode(dst []byte, c *hpack.Compressor) []byte {
	for _, f := range s.Frames {
		dst = append(dst, encodeFrame(f, c)...)
	}
	return dst
}

// Exchange is one request/response pair. Response is retained for
// schema completeness and is reachable via Sequence.Encode directly;
// EncodeConversation only walks Request (see EncodeConversation for why).
type Exchange struct {
	Request  Sequence
	Response Sequence
}

// Conversation is an ordered list of Exchanges sharing one connection
// and thus one dynamic table across the whole conversation.
type Conversation struct {
	Exchanges []Exchange
}

// EncodeConversation walks conv and returns the concatenated byte
// stream for its Exchanges' Request sequences, compressed against one
// fresh Compressor for the whole conversation.
//
// Only the request side is emitted: the source pipeline this generator
// reproduces builds two buffers per exchange but encodes the request
// sequence into both and never encodes the response side. That
// duplication is not reproduced; the response side is schema surface
// for a caller that wants it (via Exchange.Response.Encode) rather than
// output EncodeConversation produces itself.
func EncodeConversation(conv Conversation) []byte {
	c := hpack.NewCompressor(4096)

	var out []byte
	for _, ex := range conv.Exchanges {
		out = ex.Request.Encode(out, c)
	}
	return out
}
