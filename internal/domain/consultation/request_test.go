package consultation

import (
	"errors"
	"math"
	"testing"

	"github.com/Strob0t/MedForge/internal/domain"
	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
)

func validRequest() Request {
	return Request{
		Patient: Patient{
			ID:          "P-1",
			Age:         72,
			Conditions:  []string{"COPD", "type 2 diabetes"},
			Medications: []string{"metformin", "salbutamol", "lisinopril"},
			Allergies:   []string{"penicillin"},
		},
		Symptoms: []Symptom{
			{Name: "cough", Severity: 6, DurationDays: 5},
			{Name: "fever", Severity: 7, DurationDays: 3},
			{Name: "dyspnea", Severity: 8, DurationDays: 2},
		},
		Vitals: &Vitals{
			HeartRate:        112,
			SystolicBP:       118,
			RespiratoryRate:  26,
			TemperatureC:     38.9,
			OxygenSaturation: 91,
		},
		Labs: []LabResult{
			{Name: "WBC", Value: 15.2, Abnormal: true},
			{Name: "CRP", Value: 120, Abnormal: true},
			{Name: "Sodium", Value: 139},
			{Name: "Creatinine", Value: 1.0},
		},
		Imaging:             []enrichment.ImagingStudy{{Modality: "xray", BodyPart: "chest"}},
		Urgency:             complexity.UrgencyUrgent,
		Progression:         complexity.ProgressionWorsening,
		Specialties:         []string{"pulmonology", "infectious_disease"},
		SuspectedConditions: []string{"pneumonia", "COPD exacerbation"},
		Consent:             true,
		Purpose:             "treatment",
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Request)
	}{
		{"missing patient id", func(r *Request) { r.Patient.ID = " " }},
		{"negative age", func(r *Request) { r.Patient.Age = -1 }},
		{"no symptoms or complaint", func(r *Request) { r.Symptoms = nil }},
		{"unnamed symptom", func(r *Request) { r.Symptoms[0].Name = "" }},
		{"bad urgency", func(r *Request) { r.Urgency = "whenever" }},
		{"bad progression", func(r *Request) { r.Progression = "sideways" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.modify(&r)
			if err := r.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	r := validRequest()
	if err := r.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	r.Symptoms = nil
	r.ChiefComplaint = "chest pain"
	if err := r.Validate(); err != nil {
		t.Fatalf("chief complaint alone should be valid: %v", err)
	}
}

func TestRequestFactors(t *testing.T) {
	r := validRequest()
	f := r.Factors()

	if f.SymptomCount != 3 || f.SymptomSeverity != 8 || f.SymptomDurationDays != 5 {
		t.Errorf("symptom factors wrong: %+v", f)
	}
	// HR, RR, temp and SpO2 abnormal out of 5 measured
	if math.Abs(f.VitalsAbnormality-0.8) > 1e-9 {
		t.Errorf("vitals abnormality = %v, want 0.8", f.VitalsAbnormality)
	}
	if f.LabsAbnormality != 0.5 {
		t.Errorf("labs abnormality = %v, want 0.5", f.LabsAbnormality)
	}
	if !f.ImagingRequired {
		t.Error("attached imaging implies imaging required")
	}
	if f.ComorbidityCount != 2 || f.MedicationCount != 3 || f.AllergyCount != 1 {
		t.Errorf("history counts wrong: %+v", f)
	}
	if f.DifferentialBreadth != 2 || len(f.SpecialtiesRequired) != 2 {
		t.Errorf("diagnostic factors wrong: %+v", f)
	}

	// Factors owns its slices.
	f.SpecialtiesRequired[0] = "changed"
	if r.Specialties[0] != "pulmonology" {
		t.Error("Factors shares specialties with request")
	}
}

func TestRequestFactorsDefaults(t *testing.T) {
	r := Request{Patient: Patient{ID: "P-2", Age: 40}, ChiefComplaint: "headache"}
	f := r.Factors()
	if f.SymptomCount != 1 {
		t.Errorf("chief complaint counts as one symptom, got %d", f.SymptomCount)
	}
	if f.Urgency != complexity.UrgencyRoutine || f.Progression != complexity.ProgressionStable {
		t.Errorf("expected routine/stable defaults, got %s/%s", f.Urgency, f.Progression)
	}
	if f.VitalsAbnormality != 0 || f.LabsAbnormality != 0 {
		t.Errorf("missing vitals/labs should score 0")
	}
}

func TestRequestPatientContext(t *testing.T) {
	r := validRequest()
	r.Patient.Pregnant = true
	pc := r.PatientContext()
	if !pc.Pregnant || pc.Age != 72 || len(pc.Allergies) != 1 || len(pc.Medications) != 3 {
		t.Fatalf("unexpected patient context %+v", pc)
	}
	pc.Allergies[0] = "none"
	if r.Patient.Allergies[0] != "penicillin" {
		t.Error("patient context shares allergies with request")
	}
}
