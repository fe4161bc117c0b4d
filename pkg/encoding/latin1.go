// Package encoding provides text encoding utilities for map files.
//
// Strings stored in maps (titles, string variables, game identifiers) are raw
// 8-bit bytes. They are treated as ISO-8859-1, which maps every byte value to
// a code point, so decode followed by encode is lossless.
package encoding

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Latin1ToUTF8 converts ISO-8859-1 bytes to a UTF-8 string.
// Returns the original bytes as a string if conversion fails.
func Latin1ToUTF8(data []byte) string {
	result, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToLatin1 converts a UTF-8 string to ISO-8859-1 bytes.
// Characters outside Latin-1 make the conversion fail, in which case the
// UTF-8 bytes are returned unchanged.
func UTF8ToLatin1(s string) []byte {
	result, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// FixedStringToUTF8 converts a NUL-terminated fixed-size field to UTF-8.
func FixedStringToUTF8(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return Latin1ToUTF8(data)
}

// UTF8ToFixedString encodes s into a field of the given size. The result is
// truncated so that at least one trailing NUL remains.
func UTF8ToFixedString(s string, size int) []byte {
	result := make([]byte, size)
	if size == 0 {
		return result
	}
	copy(result[:size-1], UTF8ToLatin1(s))
	return result
}
