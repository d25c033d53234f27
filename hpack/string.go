package hpack

// String is the HPACK string-literal encoding hint: a byte payload plus
// the two field-level encoding hints that let a fuzz input exercise
// specific decoder branches. force_literal is only meaningful on a
// HeaderField.Name (it routes header-field emission straight to the
// literal-with-literal-name branch even when an indexed name exists).
//
// https://tools.ietf.org/html/rfc7541#section-5.2
type String struct {
	Data         []byte
	ForceLiteral bool
	Huffman      bool
}

// NewString builds a plain (non-Huffman) String.
func NewString(s string) String {
	return String{Data: []byte(s)}
}

// EncodeString appends the length-prefixed string literal encoding of s
// to dst: a 7-bit-prefix length with the Huffman flag in the high bit,
// followed by the (optionally Huffman-coded) body.
func EncodeString(dst []byte, s String) []byte {
	var body []byte
	var msbMask byte

	if s.Huffman {
		body = huffmanEncode(nil, s.Data)
		msbMask = 0x80
	} else {
		body = s.Data
	}

	dst = AppendPrefixInt(dst, uint64(len(body)), 7, msbMask)
	return append(dst, body...)
}
