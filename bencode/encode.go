package bencode

import (
	"bytes"
	"strconv"
)

// Encode returns the canonical encoding of v. Dictionary keys are written
// in ascending byte order, so equal values always encode to equal bytes.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.num, 10))
		buf.WriteByte('e')

	case KindString:
		encodeBytes(buf, v.str)

	case KindList:
		buf.WriteByte('l')
		for _, item := range v.list {
			encodeValue(buf, item)
		}
		buf.WriteByte('e')

	case KindDict:
		buf.WriteByte('d')
		v.dict.Range(func(key []byte, val Value) bool {
			encodeBytes(buf, key)
			encodeValue(buf, val)
			return true
		})
		buf.WriteByte('e')
	}
}

func encodeBytes(buf *bytes.Buffer, b []byte) {
	buf.WriteString(strconv.Itoa(len(b)))
	buf.WriteByte(':')
	buf.Write(b)
}
