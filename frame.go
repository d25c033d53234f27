// Package h2gen builds byte-exact HTTP/2 wire traffic from a small,
// structured schema: a Conversation is a tree of Exchanges, each holding
// a Sequence of Frames, each Frame one of the ten RFC 7540 frame types.
//
// https://tools.ietf.org/html/rfc7540
package h2gen

import "github.com/DanielWood/h2-lpm/hpack"

// Frame type octets, RFC 7540 §11.2.
const (
	frameTypeData         byte = 0x0
	frameTypeHeaders      byte = 0x1
	frameTypePriority     byte = 0x2
	frameTypeRstStream    byte = 0x3
	frameTypeSettings     byte = 0x4
	frameTypePushPromise  byte = 0x5
	frameTypePing         byte = 0x6
	frameTypeGoaway       byte = 0x7
	frameTypeWindowUpdate byte = 0x8
	frameTypeContinuation byte = 0x9
)

// Frame flag bits shared across frame types, RFC 7540 §4.1.
const (
	flagAck        byte = 0x1
	flagEndStream  byte = 0x1
	flagEndHeaders byte = 0x4
	flagPadded     byte = 0x8
	flagPriority   byte = 0x20
)

// Frame is the tagged union of the ten frame payload types a Sequence
// can hold. The unexported frame() method closes the set: only the
// types declared in this package can be a Frame, the idiomatic Go
// stand-in for a sum type.
type Frame interface {
	frame()
}

// StreamDependency is the 5-byte priority sub-header carried by HEADERS
// (when the PRIORITY flag is set) and by PRIORITY itself.
//
// https://tools.ietf.org/html/rfc7540#section-5.3.1
type StreamDependency struct {
	Exclusive bool
	StreamID  uint32
	Weight    byte
}

// DataFrame carries a stream's payload body.
//
// https://tools.ietf.org/html/rfc7540#section-6.1
type DataFrame struct {
	StreamID  uint32
	Data      []byte
	PadLength *uint32
	EndStream bool
}

func (DataFrame) frame() {}

// HeadersFrame opens or continues a header block, optionally carrying a
// stream priority and/or padding.
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type HeadersFrame struct {
	StreamID   uint32
	Headers    []hpack.HeaderField
	PadLength  *uint32
	Priority   *StreamDependency
	EndStream  bool
	EndHeaders bool
}

func (HeadersFrame) frame() {}

// PriorityFrame re-prioritizes a stream.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type PriorityFrame struct {
	StreamID   uint32
	Dependency StreamDependency
}

func (PriorityFrame) frame() {}

// RstStreamFrame aborts a stream.
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStreamFrame struct {
	StreamID  uint32
	ErrorCode uint32
}

func (RstStreamFrame) frame() {}

// SettingsParam is one (identifier, value) pair in a SETTINGS frame.
type SettingsParam struct {
	ID    uint16
	Value uint32
}

// SettingsFrame carries connection-level configuration parameters, or
// acknowledges a previously sent one.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type SettingsFrame struct {
	Ack    bool
	Params []SettingsParam
}

func (SettingsFrame) frame() {}

// PushPromiseFrame announces a server-initiated stream.
//
// https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromiseFrame struct {
	StreamID         uint32
	PromisedStreamID uint32
	Headers          []hpack.HeaderField
	PadLength        *uint32
	EndHeaders       bool
}

func (PushPromiseFrame) frame() {}

// PingFrame measures round-trip time or acknowledges a peer's ping.
//
// https://tools.ietf.org/html/rfc7540#section-6.7
type PingFrame struct {
	Ack        bool
	OpaqueData [8]byte
}

func (PingFrame) frame() {}

// GoawayFrame starts connection shutdown.
//
// https://tools.ietf.org/html/rfc7540#section-6.8
type GoawayFrame struct {
	LastStreamID        uint32
	ErrorCode           uint32
	AdditionalDebugData []byte
}

func (GoawayFrame) frame() {}

// WindowUpdateFrame adjusts flow-control window size.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdateFrame struct {
	StreamID  uint32
	Increment uint32
}

func (WindowUpdateFrame) frame() {}

// ContinuationFrame carries the overflow of a header block that didn't
// fit in one HEADERS or PUSH_PROMISE frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.10
type ContinuationFrame struct {
	StreamID   uint32
	Headers    []hpack.HeaderField
	EndHeaders bool
}

func (ContinuationFrame) frame() {}
