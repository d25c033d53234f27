package hpack

import "testing"

func TestEncodePrefixIntSmall(t *testing.T) {
	// Fits in the prefix: RFC 7541 C.1.1, 10 with a 5-bit prefix.
	got := EncodePrefixInt(10, 5, 0x00)
	want := []byte{0x0a}
	if !bytesEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestEncodePrefixIntLarge(t *testing.T) {
	// RFC 7541 C.1.2: 1337 encoded with a 5-bit prefix.
	got := EncodePrefixInt(1337, 5, 0x00)
	want := []byte{0x1f, 0x9a, 0x0a}
	if !bytesEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestEncodePrefixIntZeroPrefixIsNotClamped(t *testing.T) {
	// min(prefix, 8): a zero-bit prefix has no low bits to hold any
	// value, so it always spills straight into continuation bytes.
	got := EncodePrefixInt(3, 0, 0x00)
	want := []byte{0x00, 0x03}
	if !bytesEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestEncodePrefixIntOversizedPrefixClampsToEight(t *testing.T) {
	got := EncodePrefixInt(5, 20, 0x00)
	want := AppendPrefixInt(nil, 5, 8, 0x00)
	if !bytesEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestPackBE(t *testing.T) {
	got := PackBE(nil, 0x01020304, 4)
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if !bytesEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}

	got = PackBE(nil, 0x000102, 3)
	want = []byte{0x00, 0x01, 0x02}
	if !bytesEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
