package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/MedForge/internal/adapter/otel"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
)

const (
	defaultEnrichmentTimeout = 8 * time.Second
	defaultMaxArticles       = 10
)

// EnrichmentService gathers evidence from the knowledge providers before a
// consultation is delegated. Every branch runs concurrently and fails alone.
type EnrichmentService struct {
	providers   port.Providers
	timeout     time.Duration
	maxArticles int
	metrics     *cfotel.Metrics
}

// NewEnrichmentService creates an EnrichmentService. timeout bounds each branch.
func NewEnrichmentService(p port.Providers, timeout time.Duration, maxArticles int) *EnrichmentService {
	if timeout <= 0 {
		timeout = defaultEnrichmentTimeout
	}
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticles
	}
	return &EnrichmentService{providers: p, timeout: timeout, maxArticles: maxArticles}
}

// SetMetrics sets the metrics recorder for branch failures.
func (s *EnrichmentService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// branchFunc performs one provider call and stores its answer into ec.
// It is only invoked when the branch's preconditions hold.
type branchFunc func(ctx context.Context, ec *enrichment.Context) error

// Enrich runs the applicable branches and returns when all of them settle.
// It never fails; a failed branch leaves its field nil and its reason in Failures.
func (s *EnrichmentService) Enrich(ctx context.Context, req *consultation.Request) *enrichment.Context {
	ec := &enrichment.Context{}
	branches := s.plan(req)
	if len(branches) == 0 {
		return ec
	}

	var (
		mu       sync.Mutex
		failures = make(map[enrichment.Branch]string)
		results  = make(map[enrichment.Branch]*enrichment.Context, len(branches))
	)

	var g errgroup.Group
	for _, b := range enrichment.Branches {
		fn, ok := branches[b]
		if !ok {
			continue
		}
		g.Go(func() error {
			out, err := s.runBranch(ctx, b, fn)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.WarnContext(ctx, "enrichment branch failed", "branch", b, "error", err)
				s.metrics.RecordEnrichmentFailure(ctx, string(b))
				failures[b] = err.Error()
				return nil
			}
			results[b] = out
			return nil
		})
	}
	_ = g.Wait() // branches never return an error

	for b, out := range results {
		merge(ec, out, b)
	}
	if len(failures) > 0 {
		ec.Failures = failures
	}
	slog.DebugContext(ctx, "enrichment settled",
		"contributed", len(ec.Summarize().Contributed), "failed", len(failures))
	return ec
}

// runBranch calls fn under the branch deadline. fn writes into a private
// context so a provider that ignores cancellation cannot race with the caller.
func (s *EnrichmentService) runBranch(ctx context.Context, b enrichment.Branch, fn branchFunc) (_ *enrichment.Context, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := cfotel.StartEnrichmentSpan(ctx, string(b))
	defer func() { cfotel.EndSpan(span, err) }()

	done := make(chan error, 1)
	out := &enrichment.Context{}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx, out)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s", s.timeout)
		}
		return nil, ctx.Err()
	}
}

// plan returns the branches whose provider is configured and whose inputs are present.
func (s *EnrichmentService) plan(req *consultation.Request) map[enrichment.Branch]branchFunc {
	p := s.providers
	out := make(map[enrichment.Branch]branchFunc)
	symptoms := req.SymptomNames()

	if p.Literature != nil && len(symptoms) > 0 {
		terms := append(append([]string(nil), symptoms...), req.SuspectedConditions...)
		out[enrichment.BranchLiterature] = func(ctx context.Context, ec *enrichment.Context) error {
			articles, err := p.Literature.Search(ctx, terms, s.maxArticles)
			if err != nil {
				return err
			}
			if len(articles) > s.maxArticles {
				articles = articles[:s.maxArticles]
			}
			ec.Literature = articles
			return nil
		}
	}

	if p.DrugSafety != nil && len(req.Patient.Medications) > 0 {
		meds := append([]string(nil), req.Patient.Medications...)
		out[enrichment.BranchDrugSafety] = func(ctx context.Context, ec *enrichment.Context) error {
			report, err := p.DrugSafety.CheckInteractions(ctx, meds)
			if err != nil {
				return err
			}
			ec.DrugSafety = report
			return nil
		}
	}

	conditions := req.SuspectedConditions
	if len(conditions) == 0 {
		conditions = symptoms
	}
	if p.Guidelines != nil && len(conditions) > 0 {
		conditions = append([]string(nil), conditions...)
		out[enrichment.BranchGuidelines] = func(ctx context.Context, ec *enrichment.Context) error {
			guidelines, err := p.Guidelines.Lookup(ctx, conditions)
			if err != nil {
				return err
			}
			ec.Guidelines = guidelines
			return nil
		}
	}

	if p.Risk != nil && req.Vitals != nil {
		in := riskInput(req)
		out[enrichment.BranchRisk] = func(ctx context.Context, ec *enrichment.Context) error {
			risk, err := p.Risk.Score(ctx, in)
			if err != nil {
				return err
			}
			ec.Risk = risk
			return nil
		}
	}

	if p.Differential != nil && len(symptoms) > 0 {
		in := port.DifferentialInput{
			Symptoms:   append([]string(nil), symptoms...),
			Age:        req.Patient.Age,
			Sex:        req.Patient.Sex,
			Conditions: append([]string(nil), req.Patient.Conditions...),
		}
		out[enrichment.BranchDifferential] = func(ctx context.Context, ec *enrichment.Context) error {
			diff, err := p.Differential.Differential(ctx, in)
			if err != nil {
				return err
			}
			ec.ExpertDifferential = diff
			return nil
		}
	}

	if p.Imaging != nil && len(req.Imaging) > 0 {
		studies := append([]enrichment.ImagingStudy(nil), req.Imaging...)
		out[enrichment.BranchImaging] = func(ctx context.Context, ec *enrichment.Context) error {
			findings, err := p.Imaging.Analyze(ctx, studies)
			if err != nil {
				return err
			}
			ec.Imaging = findings
			return nil
		}
	}
	return out
}

func riskInput(req *consultation.Request) port.RiskInput {
	v := req.Vitals
	return port.RiskInput{
		Age:                req.Patient.Age,
		HeartRate:          v.HeartRate,
		SystolicBP:         v.SystolicBP,
		RespiratoryRate:    v.RespiratoryRate,
		TemperatureC:       v.TemperatureC,
		OxygenSaturation:   v.OxygenSaturation,
		SupplementalOxygen: v.SupplementalOxygen,
		Consciousness:      v.Consciousness,
	}
}

// merge copies branch b's field from src into dst.
func merge(dst, src *enrichment.Context, b enrichment.Branch) {
	switch b {
	case enrichment.BranchLiterature:
		dst.Literature = src.Literature
	case enrichment.BranchDrugSafety:
		dst.DrugSafety = src.DrugSafety
	case enrichment.BranchGuidelines:
		dst.Guidelines = src.Guidelines
	case enrichment.BranchRisk:
		dst.Risk = src.Risk
	case enrichment.BranchDifferential:
		dst.ExpertDifferential = src.ExpertDifferential
	case enrichment.BranchImaging:
		dst.Imaging = src.Imaging
	}
}
