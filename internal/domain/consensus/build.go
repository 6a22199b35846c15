package consensus

import (
	"math"
	"slices"
)

// Build aggregates agent opinions. It is pure and deterministic for a given input order.
//
// Agreement is the share of all agents backing the winning condition, while overall
// confidence averages every agent, so a confident minority still moves the panel score.
// Evidence strength and quality grade the same combined score on the same thresholds.
func Build(results []AgentResult) Result {
	if len(results) == 0 {
		return Undetermined()
	}

	total := len(results)
	out := Result{
		AgentCount:        total,
		OverallConfidence: meanConfidence(results),
		Differentials:     mergeDifferentials(results),
		Recommendations:   dedupeRecommendations(results),
		Findings:          mergeStrings(results, func(r AgentResult) []string { return r.Findings }),
		Concerns:          mergeStrings(results, func(r AgentResult) []string { return r.Concerns }),
	}

	winner, ok := winningGroup(results)
	if !ok {
		out.Primary = Primary{Condition: UnableToDetermine}
	} else {
		out.Primary = winner.primary(total)
		out.Dissent = dissenters(results, winner.condition)
	}

	combined := (out.Primary.AgreementScore + out.OverallConfidence) / 2
	out.Primary.EvidenceStrength = strengthFor(combined)
	out.Quality = qualityFor(combined)
	return out
}

type group struct {
	condition string
	code      string
	agents    []string
	confSum   float64
}

func (g *group) primary(total int) Primary {
	n := len(g.agents)
	return Primary{
		Condition:        g.condition,
		Code:             g.code,
		Confidence:       g.confSum / float64(n),
		AgreementScore:   float64(n) / float64(total),
		SupportingAgents: g.agents,
	}
}

// winningGroup groups by exact condition string and picks the largest group.
// Ties go to the condition seen first.
func winningGroup(results []AgentResult) (*group, bool) {
	var order []*group
	byCondition := make(map[string]*group)
	for _, r := range results {
		d := r.PrimaryDiagnosis
		if d == nil || d.Condition == "" {
			continue
		}
		g, ok := byCondition[d.Condition]
		if !ok {
			g = &group{condition: d.Condition}
			byCondition[d.Condition] = g
			order = append(order, g)
		}
		if g.code == "" {
			g.code = d.Code
		}
		g.agents = append(g.agents, r.AgentID)
		g.confSum += clamp01(d.Confidence)
	}
	if len(order) == 0 {
		return nil, false
	}
	best := order[0]
	for _, g := range order[1:] {
		if len(g.agents) > len(best.agents) {
			best = g
		}
	}
	return best, true
}

func dissenters(results []AgentResult, condition string) []Dissent {
	var out []Dissent
	for _, r := range results {
		d := r.PrimaryDiagnosis
		if d == nil || d.Condition == "" || d.Condition == condition {
			continue
		}
		out = append(out, Dissent{
			AgentID:    r.AgentID,
			Specialty:  r.Specialty,
			Condition:  d.Condition,
			Confidence: d.Confidence,
		})
	}
	return out
}

func meanConfidence(results []AgentResult) float64 {
	var sum float64
	for _, r := range results {
		sum += clamp01(r.Confidence)
	}
	return sum / float64(len(results))
}

// mergeDifferentials keeps the highest confidence per condition and sorts descending.
// Equal confidences keep first-seen order.
func mergeDifferentials(results []AgentResult) []Diagnosis {
	out := []Diagnosis{}
	index := make(map[string]int)
	for _, r := range results {
		for _, d := range r.Differentials {
			if d.Condition == "" {
				continue
			}
			d.Confidence = clamp01(d.Confidence)
			i, ok := index[d.Condition]
			if !ok {
				index[d.Condition] = len(out)
				out = append(out, d)
				continue
			}
			if d.Confidence > out[i].Confidence {
				if d.Code == "" {
					d.Code = out[i].Code
				}
				out[i] = d
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Diagnosis) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
	return out
}

type recKey struct {
	typ  RecommendationType
	text string
}

// dedupeRecommendations keeps the first occurrence of each (type, text) pair.
func dedupeRecommendations(results []AgentResult) []Recommendation {
	out := []Recommendation{}
	seen := make(map[recKey]bool)
	for _, r := range results {
		for _, rec := range r.Recommendations {
			k := recKey{typ: rec.Type, text: rec.Text}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, rec)
		}
	}
	return out
}

func mergeStrings(results []AgentResult, field func(AgentResult) []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range results {
		for _, s := range field(r) {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func strengthFor(combined float64) EvidenceStrength {
	switch {
	case combined > 0.8:
		return EvidenceVeryStrong
	case combined > 0.6:
		return EvidenceStrong
	case combined > 0.4:
		return EvidenceModerate
	default:
		return EvidenceWeak
	}
}

func qualityFor(combined float64) Quality {
	switch {
	case combined > 0.8:
		return QualityExcellent
	case combined > 0.6:
		return QualityGood
	case combined > 0.4:
		return QualityFair
	default:
		return QualityPoor
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
