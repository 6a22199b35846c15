package complexity

// Triage is the coarse classification returned by QuickCheck.
type Triage struct {
	Level      Level `json:"level"`
	AgentCount int   `json:"agent_count"`
	Points     int   `json:"points"`
}

// QuickCheck triages a case from three signals when full factors are unavailable.
// It is a separate points heuristic and may disagree with Analyze; callers that
// have full factors should prefer Analyze.
func (a *Analyzer) QuickCheck(symptomCount int, urgency Urgency, comorbidityCount int) Triage {
	points := min(max(symptomCount, 0), 10) + min(2*max(comorbidityCount, 0), 10)
	switch urgency {
	case UrgencyEmergent:
		points += 10
	case UrgencyUrgent:
		points += 5
	}

	var t Triage
	switch {
	case points < 6:
		t = Triage{Level: LevelLow, AgentCount: 2}
	case points < 12:
		t = Triage{Level: LevelMedium, AgentCount: 4}
	case points < 18:
		t = Triage{Level: LevelHigh, AgentCount: 6}
	default:
		t = Triage{Level: LevelCritical, AgentCount: 8}
	}
	if urgency == UrgencyEmergent && (t.Level == LevelLow || t.Level == LevelMedium) {
		t = Triage{Level: LevelHigh, AgentCount: 6}
	}
	t.Points = points
	t.AgentCount = min(t.AgentCount, a.maxAgents)
	return t
}
