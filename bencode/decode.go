package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedEncoding is wrapped by every error Decode returns.
var ErrMalformedEncoding = errors.New("malformed bencode")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedEncoding, fmt.Sprintf(format, args...))
}

// Decode parses one value from the front of data and returns it together
// with the bytes that follow it. Callers decoding several values that are
// concatenated without a delimiter feed the remainder back into Decode.
func Decode(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, malformed("unexpected end of input")
	}

	switch c := data[0]; {
	case c >= '0' && c <= '9':
		return decodeString(data)
	case c == 'i':
		return decodeInt(data)
	case c == 'l':
		return decodeList(data)
	case c == 'd':
		return decodeDict(data)
	default:
		return Value{}, nil, malformed("unknown type byte %q", c)
	}
}

// DecodeAll parses data that must hold exactly one value.
func DecodeAll(data []byte) (Value, error) {
	v, rest, err := Decode(data)
	if err != nil {
		return Value{}, err
	}
	if len(rest) > 0 {
		return Value{}, malformed("%d trailing bytes", len(rest))
	}
	return v, nil
}

// <len>:<bytes>
func decodeString(data []byte) (Value, []byte, error) {
	colon := bytes.IndexByte(data, ':')
	if colon < 0 {
		return Value{}, nil, malformed("string length not terminated by ':'")
	}
	for _, c := range data[:colon] {
		if c < '0' || c > '9' {
			return Value{}, nil, malformed("invalid string length %q", data[:colon])
		}
	}
	length, err := strconv.Atoi(string(data[:colon]))
	if err != nil {
		return Value{}, nil, malformed("invalid string length %q", data[:colon])
	}
	rest := data[colon+1:]
	if length > len(rest) {
		return Value{}, nil, malformed("string length %d exceeds %d remaining bytes", length, len(rest))
	}
	return Bytes(rest[:length:length]), rest[length:], nil
}

// i<digits>e
func decodeInt(data []byte) (Value, []byte, error) {
	end := bytes.IndexByte(data, 'e')
	if end < 0 {
		return Value{}, nil, malformed("integer not terminated by 'e'")
	}
	digits := data[1:end]
	if len(digits) == 0 || digits[0] == '+' {
		return Value{}, nil, malformed("invalid integer %q", digits)
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return Value{}, nil, malformed("invalid integer %q", digits)
	}
	return Int(n), data[end+1:], nil
}

// l<item>*e
func decodeList(data []byte) (Value, []byte, error) {
	rest := data[1:]
	items := []Value{}
	for {
		if len(rest) == 0 {
			return Value{}, nil, malformed("list not terminated by 'e'")
		}
		if rest[0] == 'e' {
			return List(items...), rest[1:], nil
		}
		item, next, err := Decode(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items = append(items, item)
		rest = next
	}
}

// d<key><value>*e
func decodeDict(data []byte) (Value, []byte, error) {
	rest := data[1:]
	dict := NewDict()
	for {
		if len(rest) == 0 {
			return Value{}, nil, malformed("dictionary not terminated by 'e'")
		}
		if rest[0] == 'e' {
			return DictValue(dict), rest[1:], nil
		}
		key, next, err := Decode(rest)
		if err != nil {
			return Value{}, nil, err
		}
		k, ok := key.AsBytes()
		if !ok {
			return Value{}, nil, malformed("dictionary key is a %s, not a string", key.Kind())
		}
		val, next, err := Decode(next)
		if err != nil {
			return Value{}, nil, err
		}
		dict.SetBytes(k, val)
		rest = next
	}
}
