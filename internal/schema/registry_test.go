package schema

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Photoroom/dataroom/internal/domain"
)

type fakeSource struct {
	attrs   []domain.AttributeField
	latents []domain.LatentType
	err     error
	loads   int
}

func (f *fakeSource) Attributes(_ context.Context) ([]domain.AttributeField, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.attrs, nil
}

func (f *fakeSource) LatentTypes(_ context.Context) ([]domain.LatentType, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latents, nil
}

func TestRegistry_CachesWithinTTL(t *testing.T) {
	src := &fakeSource{attrs: []domain.AttributeField{
		{Name: "source", FieldType: domain.FieldString, IsEnabled: true, IsIndexed: true},
	}}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(src).WithClock(func() time.Time { return clock })

	if _, err := reg.Current(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock = clock.Add(4 * time.Minute)
	if _, err := reg.Current(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.loads != 1 {
		t.Errorf("loads = %d, want 1 (cached within TTL)", src.loads)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := reg.Current(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.loads != 2 {
		t.Errorf("loads = %d, want 2 (reloaded after TTL)", src.loads)
	}
}

func TestRegistry_InvalidateForcesReload(t *testing.T) {
	src := &fakeSource{}
	reg := NewRegistry(src)

	if _, err := reg.Current(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg.Invalidate()
	if _, err := reg.Current(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.loads != 2 {
		t.Errorf("loads = %d, want 2", src.loads)
	}
}

func TestRegistry_ServesStaleOnLoadFailure(t *testing.T) {
	src := &fakeSource{attrs: []domain.AttributeField{
		{Name: "source", FieldType: domain.FieldString, IsEnabled: true},
	}}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(src).WithClock(func() time.Time { return clock })

	if _, err := reg.Current(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src.err = errors.New("catalog down")
	clock = clock.Add(10 * time.Minute)
	s, err := reg.Current(context.Background())
	if err != nil {
		t.Fatalf("expected stale snapshot, got error: %v", err)
	}
	if _, ok := s.Attribute("source"); !ok {
		t.Error("stale snapshot lost its attributes")
	}
}

func TestRegistry_FirstLoadFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("catalog down")}
	reg := NewRegistry(src)

	if _, err := reg.Current(context.Background()); err == nil {
		t.Fatal("expected error with no cached snapshot")
	}
}
