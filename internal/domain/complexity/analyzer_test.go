package complexity

import (
	"math"
	"testing"
)

func fullFactors() Factors {
	return Factors{
		SymptomCount:              8,
		SymptomSeverity:           10,
		SymptomDurationDays:       45,
		VitalsAbnormality:         1,
		LabsAbnormality:           1,
		ImagingRequired:           true,
		PatientAge:                100,
		ComorbidityCount:          4,
		MedicationCount:           12,
		AllergyCount:              6,
		PreviousTreatmentFailures: 3,
		Urgency:                   UrgencyEmergent,
		SpecialtiesRequired:       []string{"cardiology", "nephrology", "neurology", "rheumatology"},
		DifferentialBreadth:       10,
		RareDiseaseSuspicion:      1,
		MultiSystem:               true,
		Progression:               ProgressionWorsening,
	}
}

func TestAnalyzeHighComplexityCase(t *testing.T) {
	a := NewAnalyzer(12, DefaultWeights())
	s := a.Analyze(fullFactors())

	if s.Normalized < 0.8 {
		t.Fatalf("expected top band, got normalized %.3f", s.Normalized)
	}
	if s.AgentCount < 8 || s.AgentCount > 12 {
		t.Fatalf("expected 8..12 agents, got %d", s.AgentCount)
	}
	if s.Level() != LevelCritical {
		t.Errorf("expected critical level, got %s", s.Level())
	}
}

func TestAnalyzeMinimalCase(t *testing.T) {
	a := NewAnalyzer(12, DefaultWeights())
	s := a.Analyze(Factors{PatientAge: 30, Urgency: UrgencyRoutine, Progression: ProgressionImproving})

	if s.Normalized >= 0.2 {
		t.Fatalf("expected lowest band, got %.3f", s.Normalized)
	}
	if s.AgentCount != 1 {
		t.Fatalf("expected 1 agent, got %d", s.AgentCount)
	}
	// 1 * 15 * (1+s) * (0.7 + 0.3/12)
	want := int(math.Ceil(15 * (1 + s.Normalized) * (0.7 + 0.3/12)))
	if s.EstimatedProcessingTime != want {
		t.Errorf("expected %ds, got %ds", want, s.EstimatedProcessingTime)
	}
}

func TestAnalyzeSubScores(t *testing.T) {
	a := NewAnalyzer(12, DefaultWeights())
	s := a.Analyze(Factors{
		SymptomCount:        5,
		SymptomSeverity:     5,
		SymptomDurationDays: 15,
		VitalsAbnormality:   0.5,
		ImagingRequired:     true,
		PatientAge:          18,
		ComorbidityCount:    5,
		Urgency:             UrgencyUrgent,
		Progression:         ProgressionStable,
		DifferentialBreadth: 5,
		MultiSystem:         true,
	})

	checks := []struct {
		name      string
		got, want float64
	}{
		{"symptom", s.Symptom, 0.4*0.5 + 0.35*0.5 + 0.25*0.5},
		{"clinical", s.ClinicalData, 0.35*0.5 + 0.30},
		{"patient", s.Patient, 0.30*0.3 + 0.25},
		{"diagnostic", s.Diagnostic, 0.30*0.5 + 0.15},
		{"urgency", s.Urgency, 0.7*0.6 + 0.3*0.5},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s: got %.6f, want %.6f", c.name, c.got, c.want)
		}
	}

	w := DefaultWeights()
	overall := s.Symptom*w.Symptoms + s.Urgency*w.Urgency + s.Patient*w.History +
		s.ClinicalData*w.DataVolume + s.Diagnostic*(w.Specialties+w.RareDisease)
	if math.Abs(s.Overall-overall) > 1e-9 {
		t.Errorf("overall: got %.6f, want %.6f", s.Overall, overall)
	}
}

func TestAnalyzeClampsOutOfRange(t *testing.T) {
	a := NewAnalyzer(12, DefaultWeights())
	s := a.Analyze(Factors{
		SymptomCount:         -4,
		SymptomSeverity:      50,
		VitalsAbnormality:    -1,
		LabsAbnormality:      7,
		PatientAge:           -3,
		RareDiseaseSuspicion: math.NaN(),
		Urgency:              "unheard-of",
		Progression:          "sideways",
	})
	for name, v := range map[string]float64{
		"symptom": s.Symptom, "clinical": s.ClinicalData, "patient": s.Patient,
		"diagnostic": s.Diagnostic, "urgency": s.Urgency, "normalized": s.Normalized,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Errorf("%s out of range: %v", name, v)
		}
	}
}

func TestAnalyzeNormalizedCappedWithHeavyWeights(t *testing.T) {
	w := Weights{Symptoms: 1, Urgency: 1, History: 1, DataVolume: 1, Specialties: 1, RareDisease: 1}
	a := NewAnalyzer(10, w)
	s := a.Analyze(fullFactors())
	if s.Overall <= 1 {
		t.Fatalf("expected overall above 1 with heavy weights, got %.3f", s.Overall)
	}
	if s.Normalized != 1 {
		t.Fatalf("expected normalized 1, got %.3f", s.Normalized)
	}
	if s.AgentCount != 10 {
		t.Fatalf("expected max agents, got %d", s.AgentCount)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewAnalyzer(12, DefaultWeights())
	f := fullFactors()
	f.SymptomCount = 3
	f.Urgency = UrgencyUrgent
	first := a.Analyze(f)
	for range 50 {
		if got := a.Analyze(f); got != first {
			t.Fatalf("non-deterministic result: %+v vs %+v", got, first)
		}
	}
}

func TestAgentCountMonotonicAndBounded(t *testing.T) {
	for _, maxAgents := range []int{1, 4, 8, 12, 20} {
		a := NewAnalyzer(maxAgents, DefaultWeights())
		prev := 0
		for i := 0; i <= 1000; i++ {
			s := float64(i) / 1000
			n := a.agentCount(s)
			if n < 1 || n > maxAgents {
				t.Fatalf("max=%d s=%.3f: count %d out of [1,%d]", maxAgents, s, n, maxAgents)
			}
			if n < prev {
				t.Fatalf("max=%d s=%.3f: count %d decreased from %d", maxAgents, s, n, prev)
			}
			prev = n
		}
	}
}

func TestAgentCountBandBoundaries(t *testing.T) {
	a := NewAnalyzer(12, DefaultWeights())
	tests := []struct {
		score float64
		want  int
	}{
		{0, 1},
		{0.199, 1},
		{0.2, 2},
		{0.399, 3},
		{0.4, 3},
		{0.599, 5},
		{0.6, 5},
		{0.799, 8},
		{0.8, 8},
		{1.0, 12},
	}
	for _, tt := range tests {
		if got := a.agentCount(tt.score); got != tt.want {
			t.Errorf("agentCount(%.3f) = %d, want %d", tt.score, got, tt.want)
		}
	}
	for _, boundary := range []float64{0.2, 0.4, 0.6, 0.8} {
		below := a.agentCount(boundary - 1e-6)
		above := a.agentCount(boundary + 1e-6)
		if below > above {
			t.Errorf("boundary %.1f: below %d > above %d", boundary, below, above)
		}
	}
}

func TestAgeFactorCurve(t *testing.T) {
	tests := []struct {
		age  int
		want float64
	}{
		{0, 0.8},
		{9, 0.65},
		{18, 0.3},
		{65, 0.5},
		{100, 0.9},
		{130, 0.9},
		{-5, 0.8},
	}
	for _, tt := range tests {
		if got := AgeFactor(tt.age); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("AgeFactor(%d) = %.4f, want %.4f", tt.age, got, tt.want)
		}
	}
}

func TestUrgencyFactor(t *testing.T) {
	if UrgencyFactor(UrgencyRoutine) != 0.3 || UrgencyFactor(UrgencyUrgent) != 0.6 || UrgencyFactor(UrgencyEmergent) != 1.0 {
		t.Fatal("unexpected urgency lookup")
	}
	if UrgencyFactor("") != 0.3 {
		t.Fatal("unknown urgency should score as routine")
	}
}

func TestNewAnalyzerDefaultsMaxAgents(t *testing.T) {
	if got := NewAnalyzer(0, DefaultWeights()).MaxAgents(); got != DefaultMaxAgents {
		t.Fatalf("expected default max agents, got %d", got)
	}
}
