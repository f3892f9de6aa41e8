// File: handle/encoding_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import "testing"

func TestEncodeChunk(t *testing.T) {
	cases := []struct {
		chunk any
		enc   string
		want  string
	}{
		{"héllo", "utf8", "héllo"},
		{"héllo", "latin1", "h\xe9llo"},
		{"abc", "UCS2", "a\x00b\x00c\x00"},
		{"68690z", "hex", "hi"},
		{"aGk=", "base64", "hi"},
		{"aGk", "base64url", "hi"},
		{[]byte{1, 2}, "whatever", "\x01\x02"},
	}
	for _, c := range cases {
		got, ok := EncodeChunk(c.chunk, c.enc)
		if !ok || string(got) != c.want {
			t.Errorf("EncodeChunk(%v, %q) = %q, %v; want %q", c.chunk, c.enc, got, ok, c.want)
		}
	}
	if _, ok := EncodeChunk(42, "utf8"); ok {
		t.Error("non string/bytes chunk accepted")
	}
	if _, ok := EncodeChunk("x", "klingon"); ok {
		t.Error("unknown encoding accepted")
	}
}
