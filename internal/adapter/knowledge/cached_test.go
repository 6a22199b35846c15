package knowledge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/MedForge/internal/adapter/knowledge"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type countingDrugSafety struct {
	calls int
	err   error
}

func (c *countingDrugSafety) CheckInteractions(_ context.Context, drugs []string) (*enrichment.DrugSafetyReport, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &enrichment.DrugSafetyReport{
		Interactions: []enrichment.Interaction{{DrugA: drugs[0], DrugB: drugs[1], Severity: enrichment.InteractionModerate}},
	}, nil
}

type countingGuidelines struct{ calls int }

func (c *countingGuidelines) Lookup(_ context.Context, conditions []string) ([]enrichment.Guideline, error) {
	c.calls++
	return []enrichment.Guideline{{ID: "g-" + conditions[0]}}, nil
}

func TestCachedDrugSafetyIsOrderIndependent(t *testing.T) {
	next := &countingDrugSafety{}
	c := knowledge.NewCachedDrugSafety(next, newMemCache(), time.Hour)
	ctx := context.Background()

	first, err := c.CheckInteractions(ctx, []string{"Warfarin", "aspirin"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.CheckInteractions(ctx, []string{"aspirin", " warfarin "})
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 1 {
		t.Fatalf("expected one provider call, got %d", next.calls)
	}
	if second.Interactions[0] != first.Interactions[0] {
		t.Fatalf("cached answer differs: %+v vs %+v", second, first)
	}
}

func TestCachedDrugSafetyDoesNotCacheErrors(t *testing.T) {
	next := &countingDrugSafety{err: errors.New("down")}
	c := knowledge.NewCachedDrugSafety(next, newMemCache(), time.Hour)
	ctx := context.Background()

	for range 2 {
		if _, err := c.CheckInteractions(ctx, []string{"a", "b"}); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d calls", next.calls)
	}
}

func TestCachedGuidelines(t *testing.T) {
	next := &countingGuidelines{}
	c := knowledge.NewCachedGuidelines(next, newMemCache(), time.Hour)
	ctx := context.Background()

	for range 3 {
		got, err := c.Lookup(ctx, []string{"sepsis"})
		if err != nil || len(got) != 1 || got[0].ID != "g-sepsis" {
			t.Fatalf("Lookup: %v %+v", err, got)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one provider call, got %d", next.calls)
	}
	if _, err := c.Lookup(ctx, []string{"stroke"}); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Fatalf("expected a miss for a new condition, got %d calls", next.calls)
	}
}
