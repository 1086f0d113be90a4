package bencode

import "testing"

func Test_accessorsOnMismatch(t *testing.T) {
	v := Int(3)
	if _, ok := v.AsBytes(); ok {
		t.Errorf("Expected AsBytes to fail on an integer")
	}
	if _, ok := v.AsList(); ok {
		t.Errorf("Expected AsList to fail on an integer")
	}
	if _, ok := v.AsDict(); ok {
		t.Errorf("Expected AsDict to fail on an integer")
	}
	if _, ok := v.Get("info"); ok {
		t.Errorf("Expected Get to fail on an integer")
	}
	if _, ok := String("x").AsInt(); ok {
		t.Errorf("Expected AsInt to fail on a string")
	}
}

func Test_dictSetKeepsOrder(t *testing.T) {
	d := NewDict()
	for _, k := range []string{"pieces", "name", "length", "piece length", "name"} {
		d.Set(k, String(k))
	}
	expected := []string{"length", "name", "piece length", "pieces"}
	keys := d.Keys()
	if len(keys) != len(expected) {
		t.Fatalf("Expected %d keys, got %d", len(expected), len(keys))
	}
	for i, k := range keys {
		if string(k) != expected[i] {
			t.Errorf("Expected key %s at %d, got %s", expected[i], i, k)
		}
	}

	// iteration does not consume entries
	d.Range(func([]byte, Value) bool { return true })
	if d.Len() != 4 {
		t.Errorf("Expected 4 entries after Range, got %d", d.Len())
	}
}

func Test_dictSetReplaces(t *testing.T) {
	d := NewDict().Set("a", Int(1)).Set("a", Int(2))
	v, ok := d.Get("a")
	if !ok {
		t.Fatal("Expected key a")
	}
	if n, _ := v.AsInt(); n != 2 {
		t.Errorf("Expected 2, got %d", n)
	}
	if d.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", d.Len())
	}
}
