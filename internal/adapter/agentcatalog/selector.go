// Package agentcatalog implements the agent selection port with a static
// specialty catalog and keyword routing rules.
package agentcatalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/port/agentselect"
	"github.com/Strob0t/MedForge/internal/port/delegate"
)

// Specialties known to the catalog.
const (
	InternalMedicine    = "internal_medicine"
	EmergencyMedicine   = "emergency_medicine"
	Cardiology          = "cardiology"
	Pulmonology         = "pulmonology"
	Neurology           = "neurology"
	Gastroenterology    = "gastroenterology"
	InfectiousDisease   = "infectious_disease"
	Dermatology         = "dermatology"
	Nephrology          = "nephrology"
	Endocrinology       = "endocrinology"
	Rheumatology        = "rheumatology"
	Hematology          = "hematology"
	Oncology            = "oncology"
	Psychiatry          = "psychiatry"
	Radiology           = "radiology"
	ClinicalPharmacy    = "clinical_pharmacology"
	MedicalGenetics     = "medical_genetics"
	DiagnosticReasoning = "diagnostic_reasoning"
)

// focus describes what each specialist agent concentrates on.
var focus = map[string]string{
	InternalMedicine:    "broad differential and comorbidity interplay",
	EmergencyMedicine:   "immediate threats to life and stabilisation",
	Cardiology:          "cardiovascular causes",
	Pulmonology:         "respiratory causes",
	Neurology:           "neurological causes",
	Gastroenterology:    "gastrointestinal and hepatic causes",
	InfectiousDisease:   "infectious causes and antimicrobial choice",
	Dermatology:         "cutaneous findings",
	Nephrology:          "renal function and electrolytes",
	Endocrinology:       "endocrine and metabolic causes",
	Rheumatology:        "autoimmune and inflammatory causes",
	Hematology:          "haematological causes",
	Oncology:            "malignancy",
	Psychiatry:          "psychiatric and functional causes",
	Radiology:           "imaging interpretation",
	ClinicalPharmacy:    "drug interactions, dosing and adverse effects",
	MedicalGenetics:     "rare and inherited disease",
	DiagnosticReasoning: "independent second opinion and bias checks",
}

// keywordRoutes maps symptom keywords to specialties. Checked in order.
var keywordRoutes = []struct {
	keywords  []string
	specialty string
}{
	{[]string{"chest pain", "palpitation", "syncope", "edema", "oedema"}, Cardiology},
	{[]string{"cough", "dyspnea", "dyspnoea", "shortness of breath", "wheez", "hemoptysis"}, Pulmonology},
	{[]string{"headache", "seizure", "weakness", "numbness", "confusion", "dizz", "vision"}, Neurology},
	{[]string{"abdominal", "nausea", "vomit", "diarrh", "jaundice", "melena"}, Gastroenterology},
	{[]string{"fever", "chills", "sepsis", "infection"}, InfectiousDisease},
	{[]string{"rash", "itch", "lesion", "skin"}, Dermatology},
	{[]string{"urine", "urinary", "flank", "hematuria"}, Nephrology},
	{[]string{"thirst", "polyuria", "weight loss", "weight gain", "fatigue"}, Endocrinology},
	{[]string{"joint", "arthr", "stiffness"}, Rheumatology},
	{[]string{"bleeding", "bruis", "anemia", "anaemia", "pallor"}, Hematology},
	{[]string{"mass", "lump", "night sweats"}, Oncology},
	{[]string{"anxiety", "depress", "hallucinat", "insomnia"}, Psychiatry},
}

// Selector picks a specialist panel with deterministic priority rules.
type Selector struct{}

var _ agentselect.Selector = Selector{}

// NewSelector returns a catalog-backed selector.
func NewSelector() Selector { return Selector{} }

// SelectAgents returns exactly score.AgentCount specs. The generalist always
// comes first; when the panel is larger than the distinct specialties found,
// the remaining seats go to independent second opinions.
func (Selector) SelectAgents(_ context.Context, score complexity.Score, req *consultation.Request, ec *enrichment.Context) ([]consultation.AgentSpec, error) {
	n := score.AgentCount
	if n < 1 {
		return nil, fmt.Errorf("agent count must be >= 1, got %d", n)
	}

	candidates := Candidates(req, ec)
	specs := make([]consultation.AgentSpec, 0, n)
	seen := make(map[string]int)
	add := func(specialty string) {
		seen[specialty]++
		specs = append(specs, consultation.AgentSpec{
			Specialty: specialty,
			Name:      fmt.Sprintf("%s-%d", specialty, seen[specialty]),
			Focus:     focus[specialty],
		})
	}

	for _, s := range candidates {
		if len(specs) == n {
			break
		}
		add(s)
	}
	fillers := []string{DiagnosticReasoning, InternalMedicine}
	for i := 0; len(specs) < n; i++ {
		add(fillers[i%len(fillers)])
	}
	return specs, nil
}

// Candidates lists distinct specialties relevant to the case in priority order.
func Candidates(req *consultation.Request, ec *enrichment.Context) []string {
	var out []string
	seen := make(map[string]bool)
	push := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	push(InternalMedicine)
	if req.Urgency == complexity.UrgencyEmergent {
		push(EmergencyMedicine)
	}
	for _, s := range req.Specialties {
		push(s)
	}

	text := strings.ToLower(req.ChiefComplaint + " " + strings.Join(req.SymptomNames(), " "))
	for _, r := range keywordRoutes {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				push(r.specialty)
				break
			}
		}
	}

	if len(req.Patient.Medications) >= 5 || (ec != nil && ec.DrugSafety != nil && len(ec.DrugSafety.Interactions) > 0) {
		push(ClinicalPharmacy)
	}
	if len(req.Imaging) > 0 || req.ImagingRequired {
		push(Radiology)
	}
	if req.RareDiseaseSuspicion >= 0.5 {
		push(MedicalGenetics)
	}
	return out
}

// BuildTask assembles the delegate payload. Only de-identified clinical data
// is forwarded; the patient identifier stays in this service.
func (Selector) BuildTask(id string, specs []consultation.AgentSpec, score complexity.Score, req *consultation.Request, ec *enrichment.Context) delegate.Task {
	clinical := map[string]any{
		"chief_complaint":      req.ChiefComplaint,
		"symptoms":             req.Symptoms,
		"age":                  req.Patient.Age,
		"sex":                  req.Patient.Sex,
		"pregnant":             req.Patient.Pregnant,
		"conditions":           req.Patient.Conditions,
		"medications":          req.Patient.Medications,
		"allergies":            req.Patient.Allergies,
		"vitals":               req.Vitals,
		"labs":                 req.Labs,
		"imaging":              req.Imaging,
		"suspected_conditions": req.SuspectedConditions,
		"progression":          req.Progression,
	}
	payload := map[string]any{
		"clinical":   clinical,
		"complexity": score,
	}
	if ec != nil {
		payload["enrichment"] = ec
	}
	return delegate.Task{
		ConsultationID:  id,
		Agents:          specs,
		Priority:        Priority(req.Urgency, score),
		Complexity:      score.Normalized,
		DeadlineSeconds: max(2*score.EstimatedProcessingTime, 60),
		Context:         payload,
	}
}

// Priority maps urgency and complexity onto the delegate's queue priority.
func Priority(u complexity.Urgency, score complexity.Score) string {
	switch {
	case u == complexity.UrgencyEmergent:
		return "critical"
	case u == complexity.UrgencyUrgent || score.Level() == complexity.LevelCritical:
		return "high"
	case score.Level() == complexity.LevelHigh:
		return "medium"
	default:
		return "normal"
	}
}
