// File: handle/encoding.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode/utf16"
)

// EncodeChunk turns a string or byte chunk into bytes using a legacy
// encoding name. Byte slices pass through unchanged whatever the name.
func EncodeChunk(chunk any, encoding string) ([]byte, bool) {
	switch c := chunk.(type) {
	case []byte:
		return c, true
	case string:
		return encodeString(c, encoding)
	default:
		return nil, false
	}
}

func encodeString(s, encoding string) ([]byte, bool) {
	encoding = strings.ToLower(encoding)
	switch encoding {
	case "", "utf8", "utf-8", "buffer":
		return []byte(s), true
	case "latin1", "binary", "ascii":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			b := byte(r)
			if encoding == "ascii" {
				b &= 0x7f
			}
			out = append(out, b)
		}
		return out, true
	case "ucs2", "ucs-2", "utf16le", "utf-16le":
		units := utf16.Encode([]rune(s))
		out := make([]byte, 0, 2*len(units))
		for _, u := range units {
			out = append(out, byte(u), byte(u>>8))
		}
		return out, true
	case "hex":
		// Decoding stops at the first invalid pair, keeping what came before.
		n := len(s) / 2
		out := make([]byte, n)
		for i := 0; i < n; i++ {
			if _, err := hex.Decode(out[i:i+1], []byte(s[2*i:2*i+2])); err != nil {
				return out[:i], true
			}
		}
		return out, true
	case "base64":
		return decodeBase64(base64.StdEncoding, s), true
	case "base64url":
		return decodeBase64(base64.URLEncoding, s), true
	default:
		return nil, false
	}
}

func decodeBase64(enc *base64.Encoding, s string) []byte {
	s = strings.TrimRight(s, "=")
	out, err := enc.WithPadding(base64.NoPadding).DecodeString(s)
	if err != nil {
		return nil
	}
	return out
}
