// Package knowledge implements the enrichment provider ports as HTTP clients
// of external medical knowledge services.
package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Strob0t/MedForge/internal/adapter/restclient"
	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
	"github.com/Strob0t/MedForge/internal/resilience"
)

// Literature searches a biomedical literature index (POST /search).
type Literature struct{ base }

// NewLiterature creates a literature search client.
func NewLiterature(baseURL, apiKey string, timeout time.Duration, b *resilience.Breaker) *Literature {
	return &Literature{base{newRest("literature", baseURL, apiKey, timeout, b)}}
}

type searchRequest struct {
	Terms []string `json:"terms"`
	Limit int      `json:"limit"`
}

type searchResponse struct {
	Articles []enrichment.Article `json:"articles"`
}

// Search returns up to limit articles matching the terms.
func (c *Literature) Search(ctx context.Context, terms []string, limit int) ([]enrichment.Article, error) {
	var resp searchResponse
	if err := c.rest.DoJSON(ctx, http.MethodPost, "/search", searchRequest{Terms: terms, Limit: limit}, &resp); err != nil {
		return nil, fmt.Errorf("literature search: %w", err)
	}
	if limit > 0 && len(resp.Articles) > limit {
		resp.Articles = resp.Articles[:limit]
	}
	return resp.Articles, nil
}

// DrugSafety queries a drug interaction database (POST /interactions).
type DrugSafety struct{ base }

// NewDrugSafety creates a drug interaction client.
func NewDrugSafety(baseURL, apiKey string, timeout time.Duration, b *resilience.Breaker) *DrugSafety {
	return &DrugSafety{base{newRest("drug_safety", baseURL, apiKey, timeout, b)}}
}

// CheckInteractions reports pairwise interactions among drugs.
func (c *DrugSafety) CheckInteractions(ctx context.Context, drugs []string) (*enrichment.DrugSafetyReport, error) {
	var report enrichment.DrugSafetyReport
	if err := c.rest.DoJSON(ctx, http.MethodPost, "/interactions", map[string][]string{"drugs": drugs}, &report); err != nil {
		return nil, fmt.Errorf("drug interactions: %w", err)
	}
	return &report, nil
}

// Guidelines queries a practice guideline registry (POST /guidelines).
type Guidelines struct{ base }

// NewGuidelines creates a guideline lookup client.
func NewGuidelines(baseURL, apiKey string, timeout time.Duration, b *resilience.Breaker) *Guidelines {
	return &Guidelines{base{newRest("guidelines", baseURL, apiKey, timeout, b)}}
}

// Lookup returns guidelines for the given conditions.
func (c *Guidelines) Lookup(ctx context.Context, conditions []string) ([]enrichment.Guideline, error) {
	var resp struct {
		Guidelines []enrichment.Guideline `json:"guidelines"`
	}
	if err := c.rest.DoJSON(ctx, http.MethodPost, "/guidelines", map[string][]string{"conditions": conditions}, &resp); err != nil {
		return nil, fmt.Errorf("guideline lookup: %w", err)
	}
	return resp.Guidelines, nil
}

// Differential queries an expert diagnostic model (POST /differential).
type Differential struct{ base }

// NewDifferential creates a differential model client.
func NewDifferential(baseURL, apiKey string, timeout time.Duration, b *resilience.Breaker) *Differential {
	return &Differential{base{newRest("differential", baseURL, apiKey, timeout, b)}}
}

// Differential returns a ranked differential diagnosis.
func (c *Differential) Differential(ctx context.Context, in port.DifferentialInput) ([]consensus.Diagnosis, error) {
	var resp struct {
		Differential []consensus.Diagnosis `json:"differential"`
	}
	if err := c.rest.DoJSON(ctx, http.MethodPost, "/differential", in, &resp); err != nil {
		return nil, fmt.Errorf("expert differential: %w", err)
	}
	return resp.Differential, nil
}

// Imaging queries an imaging AI service (POST /analyze).
type Imaging struct{ base }

// NewImaging creates an imaging analysis client.
func NewImaging(baseURL, apiKey string, timeout time.Duration, b *resilience.Breaker) *Imaging {
	return &Imaging{base{newRest("imaging", baseURL, apiKey, timeout, b)}}
}

// Analyze runs AI analysis over the studies.
func (c *Imaging) Analyze(ctx context.Context, studies []enrichment.ImagingStudy) (*enrichment.ImagingFindings, error) {
	var findings enrichment.ImagingFindings
	if err := c.rest.DoJSON(ctx, http.MethodPost, "/analyze", map[string]any{"studies": studies}, &findings); err != nil {
		return nil, fmt.Errorf("imaging analysis: %w", err)
	}
	return &findings, nil
}

type base struct{ rest *restclient.Client }

// SetKeySource makes the client read its API key from fn on every call.
func (b base) SetKeySource(fn func() string) { b.rest.SetKeySource(fn) }

func newRest(service, baseURL, apiKey string, timeout time.Duration, b *resilience.Breaker) *restclient.Client {
	c := restclient.New(service, baseURL, apiKey, timeout)
	if b != nil {
		c.SetBreaker(b)
	}
	return c
}

var (
	_ port.LiteratureSearcher = (*Literature)(nil)
	_ port.DrugSafetyChecker  = (*DrugSafety)(nil)
	_ port.GuidelineLookup    = (*Guidelines)(nil)
	_ port.DifferentialModel  = (*Differential)(nil)
	_ port.ImagingAnalyzer    = (*Imaging)(nil)
)
