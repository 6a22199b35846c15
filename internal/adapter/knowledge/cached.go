package knowledge

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/port/cache"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
)

// Lookups against reference data change slowly, so literature, guideline and
// interaction answers are cached by normalized query. Cache errors fall
// through to the provider.

// CachedLiterature decorates a LiteratureSearcher with a cache.
type CachedLiterature struct {
	next  port.LiteratureSearcher
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedLiterature wraps next.
func NewCachedLiterature(next port.LiteratureSearcher, c cache.Cache, ttl time.Duration) *CachedLiterature {
	return &CachedLiterature{next: next, cache: c, ttl: ttl}
}

// Search serves from cache when possible.
func (c *CachedLiterature) Search(ctx context.Context, terms []string, limit int) ([]enrichment.Article, error) {
	key := cache.Key("enrich", "literature", strconv.Itoa(limit), normalize(terms))
	return cached(ctx, c.cache, key, c.ttl, func() ([]enrichment.Article, error) {
		return c.next.Search(ctx, terms, limit)
	})
}

// CachedGuidelines decorates a GuidelineLookup with a cache.
type CachedGuidelines struct {
	next  port.GuidelineLookup
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedGuidelines wraps next.
func NewCachedGuidelines(next port.GuidelineLookup, c cache.Cache, ttl time.Duration) *CachedGuidelines {
	return &CachedGuidelines{next: next, cache: c, ttl: ttl}
}

// Lookup serves from cache when possible.
func (c *CachedGuidelines) Lookup(ctx context.Context, conditions []string) ([]enrichment.Guideline, error) {
	key := cache.Key("enrich", "guidelines", normalize(conditions))
	return cached(ctx, c.cache, key, c.ttl, func() ([]enrichment.Guideline, error) {
		return c.next.Lookup(ctx, conditions)
	})
}

// CachedDrugSafety decorates a DrugSafetyChecker with a cache.
type CachedDrugSafety struct {
	next  port.DrugSafetyChecker
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedDrugSafety wraps next.
func NewCachedDrugSafety(next port.DrugSafetyChecker, c cache.Cache, ttl time.Duration) *CachedDrugSafety {
	return &CachedDrugSafety{next: next, cache: c, ttl: ttl}
}

// CheckInteractions serves from cache when possible. Drug order does not matter.
func (c *CachedDrugSafety) CheckInteractions(ctx context.Context, drugs []string) (*enrichment.DrugSafetyReport, error) {
	key := cache.Key("enrich", "drug_safety", normalize(drugs))
	return cached(ctx, c.cache, key, c.ttl, func() (*enrichment.DrugSafetyReport, error) {
		return c.next.CheckInteractions(ctx, drugs)
	})
}

func cached[T any](ctx context.Context, c cache.Cache, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if v, ok, err := cache.GetJSON[T](ctx, c, key); err != nil {
		slog.WarnContext(ctx, "enrichment cache read failed", "key", key, "error", err)
	} else if ok {
		return v, nil
	}

	v, err := fetch()
	if err != nil {
		return v, err
	}
	if err := cache.SetJSON(ctx, c, key, v, ttl); err != nil {
		slog.WarnContext(ctx, "enrichment cache write failed", "key", key, "error", err)
	}
	return v, nil
}

// normalize builds an order-independent key fragment.
func normalize(items []string) string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return strings.Join(slices.Compact(out), ",")
}
