package cache

import (
	"strings"
	"testing"
)

// Fuzz basic Put/GetIfPresent/Invalidate semantics under arbitrary string
// inputs. Guards against panics and ensures core invariants hold.
// NOTE: key/value lengths are capped to keep memory bounded.
func FuzzCache_PutGetInvalidate(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c := NewBuilder[string, string]().MaximumSize(16).MustBuild()
		m := c.AsMap()

		// Put -> GetIfPresent must return the same value.
		c.Put(k, v)
		got, ok := c.GetIfPresent(k)
		if !ok || got != v {
			t.Fatalf("after Put/Get: want %q, got %q ok=%v", v, got, ok)
		}

		// PutIfAbsent on a present key must not overwrite.
		if cur, present := m.PutIfAbsent(k, "other"); !present || cur != v {
			t.Fatalf("PutIfAbsent on present key: cur=%q present=%v", cur, present)
		}
		if got2, ok := c.GetIfPresent(k); !ok || got2 != v {
			t.Fatalf("after PutIfAbsent: want %q, got %q ok=%v", v, got2, ok)
		}

		// Remove must delete and return the value once.
		if old, ok := m.Remove(k); !ok || old != v {
			t.Fatalf("Remove: old=%q ok=%v", old, ok)
		}
		if _, ok := m.Remove(k); ok {
			t.Fatal("second Remove must report absence")
		}
		if _, ok := c.GetIfPresent(k); ok {
			t.Fatal("key must be absent after Remove")
		}

		// After removal, PutIfAbsent stores again.
		if _, present := m.PutIfAbsent(k, v); present {
			t.Fatal("PutIfAbsent after Remove must store")
		}
		c.Invalidate(k)
		if c.Size() != 0 {
			t.Fatalf("Size after Invalidate: %d", c.Size())
		}
	})
}

// Fuzz the spec parser: it must never panic, and whatever it accepts must
// parse again to an equal spec.
func FuzzParseSpec(f *testing.F) {
	f.Add("maximumSize=100")
	f.Add("expireAfterWrite=10m,weakKeys")
	f.Add("softValues,weakValues")
	f.Add("refreshAfterWrite=1d, recordStats")
	f.Add("=,")
	f.Add("expireAfterAccess=9223372036854775807d")

	f.Fuzz(func(t *testing.T, text string) {
		s, err := ParseSpec(text)
		if err != nil {
			return
		}
		again, err := ParseSpec(s.String())
		if err != nil || !again.Equal(s) {
			t.Fatalf("re-parse of %q: %v", text, err)
		}
	})
}
