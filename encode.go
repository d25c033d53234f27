package h2gen

import (
	"github.com/DanielWood/h2-lpm/hpack"
	"github.com/DanielWood/h2-lpm/internal/wire"
)

// buildFrame assembles the 9-octet frame header in front of payload:
// 3-byte big-endian length, 1-byte type, 1-byte flags, 4-byte stream id
// with the reserved top bit cleared.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
func buildFrame(streamID uint32, kind, flags byte, payload []byte) []byte {
	out := make([]byte, 9, 9+len(payload))
	wire.Uint24ToBytes(out[0:3], uint32(len(payload)))
	out[3] = kind
	out[4] = flags
	wire.Uint32ToBytes(out[5:9], wire.ClampStream(streamID))
	return append(out, payload...)
}

func streamDependencyBytes(dst []byte, d StreamDependency) []byte {
	dep := wire.ClampStream(d.StreamID)
	if d.Exclusive {
		dep |= 0x80000000
	}
	dst = wire.AppendUint32Bytes(dst, dep)
	return append(dst, d.Weight)
}

// EncodeData serializes a DATA frame.
func EncodeData(f DataFrame) []byte {
	payload := f.Data
	flags := byte(0)
	if f.EndStream {
		flags |= flagEndStream
	}
	if f.PadLength != nil {
		flags |= flagPadded
		payload = wire.AppendPadded(payload, *f.PadLength)
	}
	return buildFrame(f.StreamID, frameTypeData, flags, payload)
}

// EncodeHeaders serializes a HEADERS frame, compressing its header list
// with c. The stream-dependency sub-header (if present) and padding (if
// present) wrap the compressed header block per RFC 7540 §6.2.
func EncodeHeaders(f HeadersFrame, c *hpack.Compressor) []byte {
	var payload []byte
	flags := byte(0)

	if f.Priority != nil {
		flags |= flagPriority
		payload = streamDependencyBytes(payload, *f.Priority)
	}
	payload = c.AppendCompress(payload, f.Headers)

	if f.EndStream {
		flags |= flagEndStream
	}
	if f.EndHeaders {
		flags |= flagEndHeaders
	}
	if f.PadLength != nil {
		flags |= flagPadded
		payload = wire.AppendPadded(payload, *f.PadLength)
	}
	return buildFrame(f.StreamID, frameTypeHeaders, flags, payload)
}

// EncodePriority serializes a PRIORITY frame. The frame header's stream
// id is always forced to 0 regardless of f.StreamID, per the
// generator's stream-id policy for this frame type; the payload is the
// dependency sub-header built from f.Dependency (the stream depended
// on, the exclusive bit and the weight).
func EncodePriority(f PriorityFrame) []byte {
	payload := streamDependencyBytes(nil, f.Dependency)
	return buildFrame(0, frameTypePriority, 0, payload)
}

// EncodeRstStream serializes a RST_STREAM frame. The frame header's
// stream id is always 0, per the generator's stream-id policy for this
// frame type.
func EncodeRstStream(f RstStreamFrame) []byte {
	payload := wire.AppendUint32Bytes(nil, f.ErrorCode)
	return buildFrame(0, frameTypeRstStream, 0, payload)
}

// EncodeSettings serializes a SETTINGS frame. An ack carries no
// parameters, per RFC 7540 §6.5.
func EncodeSettings(f SettingsFrame) []byte {
	if f.Ack {
		return buildFrame(0, frameTypeSettings, flagAck, nil)
	}
	payload := make([]byte, 0, len(f.Params)*6)
	for _, p := range f.Params {
		payload = append(payload, byte(p.ID>>8), byte(p.ID))
		payload = wire.AppendUint32Bytes(payload, p.Value)
	}
	return buildFrame(0, frameTypeSettings, 0, payload)
}

// EncodePushPromise serializes a PUSH_PROMISE frame, compressing its
// header list with c.
func EncodePushPromise(f PushPromiseFrame, c *hpack.Compressor) []byte {
	payload := wire.AppendUint32Bytes(nil, wire.ClampStream(f.PromisedStreamID))
	payload = c.AppendCompress(payload, f.Headers)

	flags := byte(0)
	if f.EndHeaders {
		flags |= flagEndHeaders
	}
	if f.PadLength != nil {
		flags |= flagPadded
		payload = wire.AppendPadded(payload, *f.PadLength)
	}
	return buildFrame(f.StreamID, frameTypePushPromise, flags, payload)
}

// EncodePing serializes a PING frame.
func EncodePing(f PingFrame) []byte {
	flags := byte(0)
	if f.Ack {
		flags |= flagAck
	}
	return buildFrame(0, frameTypePing, flags, f.OpaqueData[:])
}

// EncodeGoaway serializes a GOAWAY frame.
func EncodeGoaway(f GoawayFrame) []byte {
	payload := wire.AppendUint32Bytes(nil, wire.ClampStream(f.LastStreamID))
	payload = wire.AppendUint32Bytes(payload, f.ErrorCode)
	payload = append(payload, f.AdditionalDebugData...)
	return buildFrame(0, frameTypeGoaway, 0, payload)
}

// EncodeWindowUpdate serializes a WINDOW_UPDATE frame. The frame
// header's stream id is always forced to 0 regardless of f.StreamID,
// per the generator's stream-id policy for this frame type.
func EncodeWindowUpdate(f WindowUpdateFrame) []byte {
	payload := wire.AppendUint32Bytes(nil, wire.ClampStream(f.Increment))
	return buildFrame(0, frameTypeWindowUpdate, 0, payload)
}

// EncodeContinuation serializes a CONTINUATION frame, compressing its
// header list with c.
func EncodeContinuation(f ContinuationFrame, c *hpack.Compressor) []byte {
	payload := c.AppendCompress(nil, f.Headers)
	flags := byte(0)
	if f.EndHeaders {
		flags |= flagEndHeaders
	}
	return buildFrame(f.StreamID, frameTypeContinuation, flags, payload)
}

// encodeFrame dispatches f to its type-specific encoder. An empty tagged
// union (f == nil) encodes to nothing rather than failing, per the
// generator's no-fail contract.
func encodeFrame(f Frame, c *hpack.Compressor) []byte {
	switch v := f.(type) {
	case DataFrame:
		return EncodeData(v)
	case HeadersFrame:
		return EncodeHeaders(v, c)
	case PriorityFrame:
		return EncodePriority(v)
	case RstStreamFrame:
		return EncodeRstStream(v)
	case SettingsFrame:
		return EncodeSettings(v)
	case PushPromiseFrame:
		return EncodePushPromise(v, c)
	case PingFrame:
		return EncodePing(v)
	case GoawayFrame:
		return EncodeGoaway(v)
	case WindowUpdateFrame:
		return EncodeWindowUpdate(v)
	case ContinuationFrame:
		return EncodeContinuation(v, c)
	default:
		return nil
	}
}
