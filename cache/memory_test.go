package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_GetSetExpiry(t *testing.T) {
	s := NewMemoryStore(10, 0)
	defer s.Close()

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty store err = %v, want ErrMiss", err)
	}
	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if b, err := s.Get(ctx, "k"); err != nil || string(b) != "v" {
		t.Fatalf("Get = %q, %v", b, err)
	}

	now = now.Add(time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expired Get err = %v, want ErrMiss", err)
	}

	s.sweep()
	if s.Len() != 0 {
		t.Errorf("Len after sweep = %d, want 0", s.Len())
	}
}

func TestMemoryStore_EvictsWhenFull(t *testing.T) {
	s := NewMemoryStore(3, 0)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Hour)
		if s.Len() > 3 {
			t.Fatalf("Len = %d, exceeds max", s.Len())
		}
	}
	if _, err := s.Get(ctx, "k9"); err != nil {
		t.Error("most recent entry should be present")
	}

	// Overwriting an existing key must not evict anything.
	_ = s.Set(ctx, "k9", []byte("v2"), time.Hour)
	if s.Len() != 3 {
		t.Errorf("Len after overwrite = %d, want 3", s.Len())
	}
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	s := NewMemoryStore(1, time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
