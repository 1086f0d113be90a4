package bencode

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return "unknown"
	}
}

// Value is a decoded bencode item: a byte string, an integer, a list or a
// dictionary. The zero Value is the empty byte string.
type Value struct {
	kind Kind
	str  []byte
	num  int64
	list []Value
	dict *Dict
}

func String(s string) Value { return Value{kind: KindString, str: []byte(s)} }

func Bytes(b []byte) Value { return Value{kind: KindString, str: b} }

func Int(n int64) Value { return Value{kind: KindInt, num: n} }

func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

func DictValue(d *Dict) Value {
	if d == nil {
		d = NewDict()
	}
	return Value{kind: KindDict, dict: d}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindString {
		return nil, false
	}
	return v.str, true
}

func (v Value) AsString() (string, bool) {
	b, ok := v.AsBytes()
	return string(b), ok
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsDict() (*Dict, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Get looks up key when v is a dictionary. It reports false for a missing
// key or when v is not a dictionary.
func (v Value) Get(key string) (Value, bool) {
	d, ok := v.AsDict()
	if !ok {
		return Value{}, false
	}
	return d.Get(key)
}

// Equal reports whether v and o hold the same structure and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return bytes.Equal(v.str, o.str)
	case KindInt:
		return v.num == o.num
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.dict.Equal(o.dict)
	}
	return false
}

// String renders v as JSON-like text: byte strings quoted, lists in
// brackets and dictionaries in braces with keys in ascending order.
func (v Value) String() string {
	var sb strings.Builder
	v.writeText(&sb)
	return sb.String()
}

func (v Value) writeText(sb *strings.Builder) {
	switch v.kind {
	case KindString:
		sb.WriteString(strconv.Quote(string(v.str)))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.num, 10))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeText(sb)
		}
		sb.WriteByte(']')
	case KindDict:
		sb.WriteByte('{')
		i := 0
		v.dict.Range(func(key []byte, val Value) bool {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(string(key)))
			sb.WriteByte(':')
			val.writeText(sb)
			i++
			return true
		})
		sb.WriteByte('}')
	}
}

type entry struct {
	key   []byte
	value Value
}

// Dict is a dictionary keyed by raw bytes. Entries are kept sorted in
// ascending unsigned byte order, whatever the insertion order was.
type Dict struct {
	entries []entry
}

func NewDict() *Dict {
	return &Dict{}
}

func (d *Dict) search(key []byte) (int, bool) {
	i := sort.Search(len(d.entries), func(i int) bool {
		return bytes.Compare(d.entries[i].key, key) >= 0
	})
	return i, i < len(d.entries) && bytes.Equal(d.entries[i].key, key)
}

// Set inserts or replaces the value stored under key.
func (d *Dict) Set(key string, v Value) *Dict {
	return d.SetBytes([]byte(key), v)
}

func (d *Dict) SetBytes(key []byte, v Value) *Dict {
	i, found := d.search(key)
	if found {
		d.entries[i].value = v
		return d
	}
	k := make([]byte, len(key))
	copy(k, key)
	d.entries = append(d.entries, entry{})
	copy(d.entries[i+1:], d.entries[i:])
	d.entries[i] = entry{key: k, value: v}
	return d
}

func (d *Dict) Get(key string) (Value, bool) {
	return d.GetBytes([]byte(key))
}

func (d *Dict) GetBytes(key []byte) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	i, found := d.search(key)
	if !found {
		return Value{}, false
	}
	return d.entries[i].value, true
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Keys returns the keys in ascending byte order.
func (d *Dict) Keys() [][]byte {
	keys := make([][]byte, 0, d.Len())
	d.Range(func(key []byte, _ Value) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Range calls fn for every entry in ascending key order until fn returns
// false. The dictionary is left untouched.
func (d *Dict) Range(fn func(key []byte, v Value) bool) {
	if d == nil {
		return
	}
	for _, e := range d.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (d *Dict) Equal(o *Dict) bool {
	if d.Len() != o.Len() {
		return false
	}
	if d.Len() == 0 {
		return true
	}
	for i := range d.entries {
		if !bytes.Equal(d.entries[i].key, o.entries[i].key) ||
			!d.entries[i].value.Equal(o.entries[i].value) {
			return false
		}
	}
	return true
}
