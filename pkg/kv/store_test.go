package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/haivivi/pitchscope/pkg/kv"
)

// stores lists every Store implementation; each test runs against all.
var stores = []struct {
	name string
	new  func(t *testing.T, opts *kv.Options) kv.Store
}{
	{"memory", func(t *testing.T, opts *kv.Options) kv.Store {
		return kv.NewMemory(opts)
	}},
	{"badger", func(t *testing.T, opts *kv.Options) kv.Store {
		s, err := kv.NewBadger(kv.BadgerOptions{Options: opts, InMemory: true})
		if err != nil {
			t.Fatalf("NewBadger: %v", err)
		}
		return s
	}},
}

func forEachStore(t *testing.T, opts *kv.Options, fn func(t *testing.T, s kv.Store)) {
	for _, impl := range stores {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.new(t, opts)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func listKeys(t *testing.T, s kv.Store, prefix kv.Key) []string {
	t.Helper()
	var got []string
	for e, err := range s.List(context.Background(), prefix) {
		if err != nil {
			t.Fatalf("List %v: %v", prefix, err)
		}
		got = append(got, e.Key.String()+"="+string(e.Value))
	}
	return got
}

func setAll(t *testing.T, s kv.Store, entries []kv.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := s.Set(context.Background(), e.Key, e.Value); err != nil {
			t.Fatalf("Set %v: %v", e.Key, err)
		}
	}
}

func TestGetSetDelete(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		key := kv.Key{"models", "3f2a"}

		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get missing = %v, want ErrNotFound", err)
		}

		for _, v := range []string{"param-v1", "param-v2"} {
			if err := s.Set(ctx, key, []byte(v)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != v {
				t.Fatalf("Get = %q, want %q", got, v)
			}
		}

		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, kv.Key{"no", "such", "key"}); err != nil {
			t.Fatalf("Delete missing: %v", err)
		}
	})
}

func TestList(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		entries := []kv.Entry{
			{Key: kv.Key{"points", "s1", "000000000001"}, Value: []byte("b")},
			{Key: kv.Key{"points", "s1", "000000000000"}, Value: []byte("a")},
			{Key: kv.Key{"points", "s2", "000000000000"}, Value: []byte("c")},
			{Key: kv.Key{"session", "s1"}, Value: []byte("m1")},
			{Key: kv.Key{"sessions", "x"}, Value: []byte("no")},
		}
		setAll(t, s, entries)

		tests := []struct {
			prefix kv.Key
			want   []string
		}{
			{kv.Key{"points", "s1"}, []string{"points:s1:000000000000=a", "points:s1:000000000001=b"}},
			{kv.Key{"points"}, []string{
				"points:s1:000000000000=a",
				"points:s1:000000000001=b",
				"points:s2:000000000000=c",
			}},
			// "session" must not match "sessions".
			{kv.Key{"session"}, []string{"session:s1=m1"}},
		}
		for _, tt := range tests {
			if got := listKeys(t, s, tt.prefix); !slices.Equal(got, tt.want) {
				t.Errorf("List %v = %v, want %v", tt.prefix, got, tt.want)
			}
		}

		if got := listKeys(t, s, nil); len(got) != len(entries) {
			t.Errorf("List all = %d entries, want %d", len(got), len(entries))
		}
	})
}

func TestBatchDelete(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		setAll(t, s, []kv.Entry{
			{Key: kv.Key{"a", "1"}, Value: []byte("v1")},
			{Key: kv.Key{"a", "2"}, Value: []byte("v2")},
			{Key: kv.Key{"a", "3"}, Value: []byte("v3")},
		})
		if err := s.BatchDelete(ctx, []kv.Key{{"a", "1"}, {"a", "2"}}); err != nil {
			t.Fatalf("BatchDelete: %v", err)
		}
		if got, want := listKeys(t, s, kv.Key{"a"}), []string{"a:3=v3"}; !slices.Equal(got, want) {
			t.Fatalf("after BatchDelete = %v, want %v", got, want)
		}
	})
}

func TestCustomSeparator(t *testing.T) {
	forEachStore(t, &kv.Options{Separator: '/'}, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		// ':' is an ordinary byte with a '/' separator.
		key := kv.Key{"models", "s3:bucket"}
		if err := s.Set(ctx, key, []byte("data")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		// Key.String always joins with ':' for display.
		if got, want := listKeys(t, s, kv.Key{"models"}), []string{"models:s3:bucket=data"}; !slices.Equal(got, want) {
			t.Fatalf("List = %v, want %v", got, want)
		}
	})
}

func TestValueIsolation(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		key := kv.Key{"iso", "test"}
		original := []byte("original")
		if err := s.Set(ctx, key, original); err != nil {
			t.Fatalf("Set: %v", err)
		}
		original[0] = 'X'

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got[0] != 'o' {
			t.Fatal("store value was mutated via original slice")
		}
		got[0] = 'Y'
		if again, _ := s.Get(ctx, key); again[0] != 'o' {
			t.Fatal("store value was mutated via returned slice")
		}
	})
}

func TestKeys(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		setAll(t, s, []kv.Entry{
			{Key: kv.Key{"points", "s1", "000000000002"}, Value: []byte("c")},
			{Key: kv.Key{"points", "s1", "000000000000"}, Value: []byte("a")},
			{Key: kv.Key{"points", "s10", "000000000000"}, Value: []byte("x")},
		})
		var got []string
		for k, err := range s.Keys(ctx, kv.Key{"points", "s1"}) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, k.String())
		}
		want := []string{"points:s1:000000000000", "points:s1:000000000002"}
		if !slices.Equal(got, want) {
			t.Fatalf("Keys = %v, want %v", got, want)
		}

		// Stopping early must not yield again.
		n := 0
		for range s.Keys(ctx, kv.Key{"points"}) {
			n++
			break
		}
		if n != 1 {
			t.Fatalf("early break yielded %d keys", n)
		}
	})
}

func TestInvalidKey(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		if err := s.Set(ctx, kv.Key{"bad:seg", "x"}, []byte("v")); !errors.Is(err, kv.ErrInvalidKey) {
			t.Errorf("Set separator segment = %v, want ErrInvalidKey", err)
		}
		if _, err := s.Get(ctx, nil); !errors.Is(err, kv.ErrInvalidKey) {
			t.Errorf("Get empty key = %v, want ErrInvalidKey", err)
		}
		for _, err := range s.List(ctx, kv.Key{"a:b"}) {
			if !errors.Is(err, kv.ErrInvalidKey) {
				t.Errorf("List bad prefix = %v, want ErrInvalidKey", err)
			}
		}
	})
}

func TestBadgerDirRequired(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}

func TestBadgerOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, kv.Key{"session", "abc"}, []byte("meta")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(ctx, kv.Key{"session", "abc"})
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "meta" {
		t.Fatalf("Get = %q, want %q", got, "meta")
	}
}
