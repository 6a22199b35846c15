// Package agentselect defines the port that turns a complexity score into a
// concrete agent panel and delegate task payload.
package agentselect

import (
	"context"

	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/port/delegate"
)

// Selector picks diagnostic agents for a consultation.
type Selector interface {
	// SelectAgents returns exactly score.AgentCount specs.
	SelectAgents(ctx context.Context, score complexity.Score, req *consultation.Request, ec *enrichment.Context) ([]consultation.AgentSpec, error)

	// BuildTask assembles the delegate payload for the chosen panel.
	BuildTask(id string, specs []consultation.AgentSpec, score complexity.Score, req *consultation.Request, ec *enrichment.Context) delegate.Task
}
