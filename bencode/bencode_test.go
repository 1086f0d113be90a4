package bencode_test

import (
	"bytes"
	"errors"
	"testing"

	jackpal "github.com/jackpal/bencode-go"

	"github.com/vaguilera/MiniTorrent/bencode"
)

func decodeAndAssert(t *testing.T, input string, expected bencode.Value, expectedRest string) {
	t.Helper()
	decoded, rest, err := bencode.Decode([]byte(input))
	if err != nil {
		t.Fatalf("Failed to decode input %q: %v", input, err)
	}
	if !decoded.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, decoded)
	}
	if string(rest) != expectedRest {
		t.Errorf("Expected remaining %q, got %q", expectedRest, rest)
	}
}

func TestDecodeString(t *testing.T) {
	decodeAndAssert(t, "4:spam", bencode.String("spam"), "")
	decodeAndAssert(t, "0:", bencode.String(""), "")
	decodeAndAssert(t, "5:hello5:world", bencode.String("hello"), "5:world")
}

func TestDecodeInteger(t *testing.T) {
	decodeAndAssert(t, "i-52e", bencode.Int(-52), "")
	decodeAndAssert(t, "i0e", bencode.Int(0), "")
	decodeAndAssert(t, "i4294967300e", bencode.Int(4294967300), "")
}

func TestDecodeList(t *testing.T) {
	decodeAndAssert(t, "l4:spam4:eggse",
		bencode.List(bencode.String("spam"), bencode.String("eggs")), "")
	decodeAndAssert(t, "le", bencode.List(), "")
	decodeAndAssert(t, "lli1eel9:test testelee",
		bencode.List(
			bencode.List(bencode.Int(1)),
			bencode.List(bencode.String("test test")),
			bencode.List(),
		), "")
	decodeAndAssert(t, "lleee", bencode.List(bencode.List()), "e")
}

func TestDecodeDictionary(t *testing.T) {
	expected := bencode.NewDict().
		Set("cow", bencode.String("moo")).
		Set("spam", bencode.String("eggs"))
	decodeAndAssert(t, "d3:cow3:moo4:spam4:eggse", bencode.DictValue(expected), "")

	nested := bencode.NewDict().Set("dict", bencode.DictValue(bencode.NewDict().Set("space key", bencode.Int(4))))
	decodeAndAssert(t, "d4:dictd9:space keyi4eeei1e", bencode.DictValue(nested), "i1e")
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"x",
		"4spam",
		"10:short",
		"-1:a",
		"ie",
		"i+3e",
		"i12",
		"iabce",
		"l4:spam",
		"d3:cow3:moo",
		"di1e3:mooe",
		"d3:cow",
	}
	for _, input := range cases {
		_, _, err := bencode.Decode([]byte(input))
		if !errors.Is(err, bencode.ErrMalformedEncoding) {
			t.Errorf("Decode(%q): expected ErrMalformedEncoding, got %v", input, err)
		}
	}
}

func TestDecodeAllTrailing(t *testing.T) {
	if _, err := bencode.DecodeAll([]byte("i1ei2e")); !errors.Is(err, bencode.ErrMalformedEncoding) {
		t.Errorf("Expected ErrMalformedEncoding for trailing bytes, got %v", err)
	}
	v, err := bencode.DecodeAll([]byte("i7e"))
	if err != nil || !v.Equal(bencode.Int(7)) {
		t.Errorf("Expected 7, got %v (%v)", v, err)
	}
}

func TestEncodeCanonicalOrder(t *testing.T) {
	d := bencode.NewDict().
		Set("spam", bencode.String("eggs")).
		Set("cow", bencode.String("moo"))
	got := string(bencode.Encode(bencode.DictValue(d)))
	if got != "d3:cow3:moo4:spam4:eggse" {
		t.Errorf("Expected d3:cow3:moo4:spam4:eggse, got %s", got)
	}
}

func TestEncodeBinaryKeysUnsignedOrder(t *testing.T) {
	d := bencode.NewDict()
	d.SetBytes([]byte{0xff}, bencode.Int(1))
	d.SetBytes([]byte{0x01}, bencode.Int(2))
	d.SetBytes([]byte{0x7f, 0x00}, bencode.Int(3))
	got := bencode.Encode(bencode.DictValue(d))
	expected := []byte("d1:\x01i2e2:\x7f\x00i3e1:\xffi1ee")
	if !bytes.Equal(got, expected) {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestRoundTrip(t *testing.T) {
	info := bencode.NewDict().
		Set("name", bencode.String("sample.txt")).
		Set("piece length", bencode.Int(32768)).
		Set("length", bencode.Int(-1)).
		Set("pieces", bencode.Bytes([]byte{0, 1, 2, 0xfe, 0xff}))
	values := []bencode.Value{
		bencode.String(""),
		bencode.Int(0),
		bencode.Int(-9223372036854775808),
		bencode.List(),
		bencode.DictValue(nil),
		bencode.List(bencode.Int(1), bencode.String("two"), bencode.List(bencode.DictValue(info))),
		bencode.DictValue(bencode.NewDict().Set("info", bencode.DictValue(info)).Set("announce", bencode.String("http://t/a"))),
	}
	for _, v := range values {
		encoded := bencode.Encode(v)
		decoded, rest, err := bencode.Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q): %v", encoded, err)
		}
		if len(rest) != 0 {
			t.Errorf("Expected no remaining bytes for %q, got %q", encoded, rest)
		}
		if !decoded.Equal(v) {
			t.Errorf("Expected %v, got %v", v, decoded)
		}
	}
}

func TestReencodeIsIdentity(t *testing.T) {
	raw := "d8:announce10:http://t/a4:infod6:lengthi3e4:name1:a12:piece lengthi16384e6:pieces0:ee"
	v, err := bencode.DecodeAll([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(bencode.Encode(v)); got != raw {
		t.Errorf("Expected %s, got %s", raw, got)
	}
}

// The canonical form must agree with the encoder used for tracker traffic.
func TestEncodeMatchesJackpal(t *testing.T) {
	ours := bencode.NewDict().
		Set("m", bencode.DictValue(bencode.NewDict().Set("ut_metadata", bencode.Int(2)))).
		Set("msg_type", bencode.Int(0)).
		Set("piece", bencode.Int(0)).
		Set("comment", bencode.String("zeta"))
	theirs := map[string]interface{}{
		"piece":    0,
		"comment":  "zeta",
		"msg_type": 0,
		"m":        map[string]interface{}{"ut_metadata": 2},
	}
	var buf bytes.Buffer
	if err := jackpal.Marshal(&buf, theirs); err != nil {
		t.Fatal(err)
	}
	if got := bencode.Encode(bencode.DictValue(ours)); !bytes.Equal(got, buf.Bytes()) {
		t.Errorf("Expected %s, got %s", buf.Bytes(), got)
	}
}

func TestValueString(t *testing.T) {
	v, _, err := bencode.Decode([]byte("d3:fool3:bari52eee"))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.String(); got != `{"foo":["bar",52]}` {
		t.Errorf(`Expected {"foo":["bar",52]}, got %s`, got)
	}
}
