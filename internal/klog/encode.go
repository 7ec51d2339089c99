package klog

import (
	"strconv"
	"time"
)

// appendField serializes one field as a JSON object member and appends it
// to dst. first controls whether a leading comma is emitted.
//
// The string-escaping table below is the same no-escape fast-path table
// jsonenc.AppendString uses (itself adapted from zerolog's AppendString) --
// ASCII bytes that never need escaping are passed through a byte at a time,
// falling back to a slower path only when one is found.
func appendField(dst []byte, first bool, f Field) []byte {
	if !first {
		dst = append(dst, ',')
	}
	dst = appendJSONString(dst, f.Key)
	dst = append(dst, ':')
	return appendValue(dst, f.Val)
}

func appendValue(dst []byte, v any) []byte {
	switch x := v.(type) {
	case string:
		return appendJSONString(dst, x)
	case int:
		return strconv.AppendInt(dst, int64(x), 10)
	case int32:
		return strconv.AppendInt(dst, int64(x), 10)
	case int64:
		return strconv.AppendInt(dst, x, 10)
	case uint64:
		return strconv.AppendUint(dst, x, 10)
	case uintptr:
		return strconv.AppendUint(dst, uint64(x), 10)
	case bool:
		return strconv.AppendBool(dst, x)
	case time.Duration:
		return appendJSONString(dst, x.String())
	case nil:
		return append(dst, 'n', 'u', 'l', 'l')
	default:
		return appendJSONString(dst, "(unsupported field type)")
	}
}

var noEscapeTable = func() (t [256]bool) {
	for i := 0; i <= 0x7e; i++ {
		t[i] = i >= 0x20 && i != '\\' && i != '"'
	}
	return
}()

const hexDigits = "0123456789abcdef"

func appendJSONString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		if noEscapeTable[s[i]] {
			continue
		}
		if start < i {
			dst = append(dst, s[start:i]...)
		}
		switch s[i] {
		case '"', '\\':
			dst = append(dst, '\\', s[i])
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[s[i]>>4], hexDigits[s[i]&0xf])
		}
		start = i + 1
	}
	if start < len(s) {
		dst = append(dst, s[start:]...)
	}
	return append(dst, '"')
}
