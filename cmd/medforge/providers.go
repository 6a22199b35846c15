package main

import (
	"errors"
	"log/slog"
	"strconv"

	_ "github.com/Strob0t/MedForge/internal/adapter/discord" // notifier registration
	"github.com/Strob0t/MedForge/internal/adapter/earlywarning"
	_ "github.com/Strob0t/MedForge/internal/adapter/email" // notifier registration
	"github.com/Strob0t/MedForge/internal/adapter/knowledge"
	_ "github.com/Strob0t/MedForge/internal/adapter/slack" // notifier registration
	"github.com/Strob0t/MedForge/internal/config"
	"github.com/Strob0t/MedForge/internal/port/cache"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
	"github.com/Strob0t/MedForge/internal/port/notifier"
	"github.com/Strob0t/MedForge/internal/resilience"
	"github.com/Strob0t/MedForge/internal/secrets"
)

// Secret names read from the environment and reloaded on SIGHUP.
const (
	secretDelegateKey   = "MEDFORGE_DELEGATE_API_KEY"
	secretEnrichmentKey = "MEDFORGE_ENRICHMENT_API_KEY"
)

// buildProviders wires the knowledge clients whose URL is configured. Each
// provider gets its own breaker. Lookups go through the cache when one is
// given and CacheTTL is positive.
func buildProviders(cfg *config.Config, c cache.Cache, vault *secrets.Vault) port.Providers {
	ec := cfg.Enrichment
	key := vault.Source(secretEnrichmentKey, ec.APIKey)
	breaker := func(name string) *resilience.Breaker {
		return resilience.NewNamedBreaker(name, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	}
	cached := c != nil && ec.CacheTTL > 0

	p := port.Providers{Risk: earlywarning.NewScorer()}
	if ec.LiteratureURL != "" {
		lit := knowledge.NewLiterature(ec.LiteratureURL, ec.APIKey, ec.Timeout, breaker("literature"))
		lit.SetKeySource(key)
		p.Literature = lit
		if cached {
			p.Literature = knowledge.NewCachedLiterature(lit, c, ec.CacheTTL)
		}
	}
	if ec.DrugSafetyURL != "" {
		drugs := knowledge.NewDrugSafety(ec.DrugSafetyURL, ec.APIKey, ec.Timeout, breaker("drug_safety"))
		drugs.SetKeySource(key)
		p.DrugSafety = drugs
		if cached {
			p.DrugSafety = knowledge.NewCachedDrugSafety(drugs, c, ec.CacheTTL)
		}
	}
	if ec.GuidelineURL != "" {
		gl := knowledge.NewGuidelines(ec.GuidelineURL, ec.APIKey, ec.Timeout, breaker("guidelines"))
		gl.SetKeySource(key)
		p.Guidelines = gl
		if cached {
			p.Guidelines = knowledge.NewCachedGuidelines(gl, c, ec.CacheTTL)
		}
	}
	if ec.DifferentialURL != "" {
		diff := knowledge.NewDifferential(ec.DifferentialURL, ec.APIKey, ec.Timeout, breaker("differential"))
		diff.SetKeySource(key)
		p.Differential = diff
	}
	if ec.ImagingURL != "" {
		img := knowledge.NewImaging(ec.ImagingURL, ec.APIKey, ec.Timeout, breaker("imaging"))
		img.SetKeySource(key)
		p.Imaging = img
	}

	slog.Info("enrichment providers configured",
		"literature", p.Literature != nil,
		"drug_safety", p.DrugSafety != nil,
		"guidelines", p.Guidelines != nil,
		"differential", p.Differential != nil,
		"imaging", p.Imaging != nil,
		"cached", cached,
	)
	return p
}

// buildNotifiers creates a review alert channel for every configured notifier.
func buildNotifiers(nc config.Notify) ([]notifier.Notifier, error) {
	settings := map[string]map[string]string{
		"slack":   {"webhook_url": nc.SlackWebhookURL},
		"discord": {"webhook_url": nc.DiscordWebhookURL},
		"email": {
			"host":     nc.SMTPHost,
			"port":     strconv.Itoa(nc.SMTPPort),
			"from":     nc.SMTPFrom,
			"to":       nc.SMTPTo,
			"password": nc.SMTPPassword,
		},
	}

	var out []notifier.Notifier
	for _, name := range notifier.Available() {
		s, ok := settings[name]
		if !ok {
			continue
		}
		n, err := notifier.New(name, s)
		if errors.Is(err, notifier.ErrNotConfigured) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
