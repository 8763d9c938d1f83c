package xkeylock

import (
	"context"
	"testing"

	"github.com/omeyang/xlock/pkg/context/xowner"
)

func FuzzAcquireRelease(f *testing.F) {
	f.Add("key1", int64(1))
	f.Add("", int64(0))
	f.Add("very-long-key-name-that-might-cause-issues-with-hashing", int64(-1))
	f.Add("key/with/slashes", int64(42))
	f.Add("key with spaces", int64(1<<40))
	f.Add("中文key", int64(7))

	f.Fuzz(func(t *testing.T, key string, id int64) {
		l, _ := newTestLocker(t)

		outer, err := l.Acquire(context.Background(), key, "outer")
		if err != nil {
			t.Fatalf("Acquire failed for key %q: %v", key, err)
		}
		if outer.Key() != key || !outer.Held() || !outer.Outermost() {
			t.Fatalf("outer lock state mismatch for key %q", key)
		}

		inner, err := l.Acquire(outer.Context(), key, "inner")
		if err != nil {
			t.Fatalf("reentrant Acquire failed for key %q: %v", key, err)
		}
		if inner.Outermost() {
			t.Fatalf("reentrant Acquire for key %q reported outermost", key)
		}

		other, err := l.Acquire(inner.Context(), id, "other")
		if err != nil {
			t.Fatalf("Acquire failed for key %d: %v", id, err)
		}
		if got := xowner.From(other.Context()).Depth(); got != 2 {
			t.Fatalf("hold depth: got %d, want 2", got)
		}
		if l.Len() != 2 {
			t.Fatalf("Len: got %d, want 2", l.Len())
		}

		for _, lk := range []*Lock{other, inner, outer} {
			if err := lk.Release(); err != nil {
				t.Fatalf("Release failed for key %v: %v", lk.Key(), err)
			}
		}
		if l.Len() != 0 {
			t.Fatalf("Len after release: got %d, want 0", l.Len())
		}
		if got := xowner.From(outer.Context()).Depth(); got != 0 {
			t.Fatalf("hold depth after release: got %d, want 0", got)
		}
	})
}
