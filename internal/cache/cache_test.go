package cache

import "testing"

func TestMapCache(t *testing.T) {
	c := NewMapCache()

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache returned ok")
	}

	col := []uint16{0x3C00, 0xC000, 0x7C00}
	c.Put("vec", col)

	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}

	got, ok := c.Get("vec")
	if !ok {
		t.Fatal("Get returned !ok for stored column")
	}
	for i, v := range got {
		if v != col[i] {
			t.Errorf("Get(%d) = 0x%04x, want 0x%04x", i, v, col[i])
		}
	}

	// Mutating either side must not leak into the cache.
	col[0] = 0xFFFF
	got[1] = 0xFFFF
	again, _ := c.Get("vec")
	if again[0] != 0x3C00 || again[1] != 0xC000 {
		t.Errorf("cache shares storage with callers: got 0x%04x, 0x%04x", again[0], again[1])
	}
}
