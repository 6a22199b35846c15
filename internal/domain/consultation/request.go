// Package consultation models a multi-agent medical consultation: the inbound
// request, its orchestration task lifecycle and the released result.
package consultation

import (
	"fmt"
	"strings"

	"github.com/Strob0t/MedForge/internal/domain"
	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/domain/safety"
)

// Patient is the demographic and history part of a request.
type Patient struct {
	ID                        string   `json:"id"`
	Age                       int      `json:"age"`
	Sex                       string   `json:"sex,omitempty"`
	WeightKg                  float64  `json:"weight_kg,omitempty"`
	Pregnant                  bool     `json:"pregnant,omitempty"`
	Conditions                []string `json:"conditions,omitempty"`
	Medications               []string `json:"medications,omitempty"`
	Allergies                 []string `json:"allergies,omitempty"`
	PreviousTreatmentFailures int      `json:"previous_treatment_failures,omitempty"`
}

// Symptom is one presenting complaint.
type Symptom struct {
	Name         string  `json:"name"`
	Severity     float64 `json:"severity"` // 0-10
	DurationDays int     `json:"duration_days,omitempty"`
}

// Vitals holds the latest observations. Zero means not measured.
type Vitals struct {
	HeartRate          float64 `json:"heart_rate,omitempty"`
	SystolicBP         float64 `json:"systolic_bp,omitempty"`
	DiastolicBP        float64 `json:"diastolic_bp,omitempty"`
	RespiratoryRate    float64 `json:"respiratory_rate,omitempty"`
	TemperatureC       float64 `json:"temperature_c,omitempty"`
	OxygenSaturation   float64 `json:"oxygen_saturation,omitempty"`
	SupplementalOxygen bool    `json:"supplemental_oxygen,omitempty"`
	Consciousness      string  `json:"consciousness,omitempty"` // alert, voice, pain, unresponsive, confused
}

// LabResult is one laboratory value.
type LabResult struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
	Abnormal bool    `json:"abnormal"`
}

// Request is an inbound consultation.
type Request struct {
	Patient              Patient                   `json:"patient"`
	ChiefComplaint       string                    `json:"chief_complaint,omitempty"`
	Symptoms             []Symptom                 `json:"symptoms,omitempty"`
	Vitals               *Vitals                   `json:"vitals,omitempty"`
	Labs                 []LabResult               `json:"labs,omitempty"`
	Imaging              []enrichment.ImagingStudy `json:"imaging,omitempty"`
	ImagingRequired      bool                      `json:"imaging_required,omitempty"`
	Urgency              complexity.Urgency        `json:"urgency,omitempty"`
	Progression          complexity.Progression    `json:"progression,omitempty"`
	Specialties          []string                  `json:"specialties,omitempty"`
	SuspectedConditions  []string                  `json:"suspected_conditions,omitempty"`
	RareDiseaseSuspicion float64                   `json:"rare_disease_suspicion,omitempty"`
	MultiSystem          bool                      `json:"multi_system,omitempty"`
	Consent              bool                      `json:"consent"`
	Purpose              string                    `json:"purpose,omitempty"`
	RequestedBy          string                    `json:"requested_by,omitempty"`
}

// Validate checks structural requirements. Numeric ranges are clamped by the
// analyzer rather than rejected here.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Patient.ID) == "" {
		return fmt.Errorf("%w: patient.id is required", domain.ErrValidation)
	}
	if r.Patient.Age < 0 {
		return fmt.Errorf("%w: patient.age must be non-negative", domain.ErrValidation)
	}
	if len(r.Symptoms) == 0 && strings.TrimSpace(r.ChiefComplaint) == "" {
		return fmt.Errorf("%w: symptoms or chief_complaint is required", domain.ErrValidation)
	}
	for i, s := range r.Symptoms {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: symptoms[%d].name is required", domain.ErrValidation, i)
		}
	}
	if !complexity.ValidUrgency(r.Urgency) {
		return fmt.Errorf("%w: invalid urgency %q", domain.ErrValidation, r.Urgency)
	}
	if !complexity.ValidProgression(r.Progression) {
		return fmt.Errorf("%w: invalid progression %q", domain.ErrValidation, r.Progression)
	}
	return nil
}

// SymptomNames returns the symptom names, falling back to the chief complaint.
func (r *Request) SymptomNames() []string {
	names := make([]string, 0, len(r.Symptoms))
	for _, s := range r.Symptoms {
		names = append(names, s.Name)
	}
	if len(names) == 0 && r.ChiefComplaint != "" {
		names = append(names, r.ChiefComplaint)
	}
	return names
}

// Factors derives the complexity snapshot of the request.
func (r *Request) Factors() complexity.Factors {
	f := complexity.Factors{
		SymptomCount:              len(r.Symptoms),
		VitalsAbnormality:         r.Vitals.AbnormalFraction(),
		LabsAbnormality:           labsAbnormalFraction(r.Labs),
		ImagingRequired:           r.ImagingRequired || len(r.Imaging) > 0,
		PatientAge:                r.Patient.Age,
		ComorbidityCount:          len(r.Patient.Conditions),
		MedicationCount:           len(r.Patient.Medications),
		AllergyCount:              len(r.Patient.Allergies),
		PreviousTreatmentFailures: r.Patient.PreviousTreatmentFailures,
		Urgency:                   r.Urgency,
		SpecialtiesRequired:       append([]string(nil), r.Specialties...),
		DifferentialBreadth:       len(r.SuspectedConditions),
		RareDiseaseSuspicion:      r.RareDiseaseSuspicion,
		MultiSystem:               r.MultiSystem,
		Progression:               r.Progression,
	}
	if f.Urgency == "" {
		f.Urgency = complexity.UrgencyRoutine
	}
	if f.Progression == "" {
		f.Progression = complexity.ProgressionStable
	}
	if f.SymptomCount == 0 && r.ChiefComplaint != "" {
		f.SymptomCount = 1
	}
	for _, s := range r.Symptoms {
		f.SymptomSeverity = max(f.SymptomSeverity, s.Severity)
		f.SymptomDurationDays = max(f.SymptomDurationDays, s.DurationDays)
	}
	return f
}

// PatientContext is the part of the request the safety gate checks against.
func (r *Request) PatientContext() safety.PatientContext {
	return safety.PatientContext{
		Medications: append([]string(nil), r.Patient.Medications...),
		Allergies:   append([]string(nil), r.Patient.Allergies...),
		Conditions:  append([]string(nil), r.Patient.Conditions...),
		Pregnant:    r.Patient.Pregnant,
		Age:         r.Patient.Age,
		WeightKg:    r.Patient.WeightKg,
	}
}

func labsAbnormalFraction(labs []LabResult) float64 {
	if len(labs) == 0 {
		return 0
	}
	n := 0
	for _, l := range labs {
		if l.Abnormal {
			n++
		}
	}
	return float64(n) / float64(len(labs))
}

// vitalRange is an adult reference interval. A zero bound is open.
type vitalRange struct {
	lo, hi float64
}

func (v vitalRange) abnormal(x float64) bool {
	return (v.lo > 0 && x < v.lo) || (v.hi > 0 && x > v.hi)
}

var (
	heartRateRange   = vitalRange{lo: 60, hi: 100}
	systolicRange    = vitalRange{lo: 90, hi: 140}
	diastolicRange   = vitalRange{lo: 60, hi: 90}
	respiratoryRange = vitalRange{lo: 12, hi: 20}
	temperatureRange = vitalRange{lo: 36.1, hi: 37.8}
	spo2Range        = vitalRange{lo: 95}
)

// AbnormalFraction is the share of measured vitals outside their reference range.
func (v *Vitals) AbnormalFraction() float64 {
	if v == nil {
		return 0
	}
	checks := []struct {
		value float64
		rng   vitalRange
	}{
		{v.HeartRate, heartRateRange},
		{v.SystolicBP, systolicRange},
		{v.DiastolicBP, diastolicRange},
		{v.RespiratoryRate, respiratoryRange},
		{v.TemperatureC, temperatureRange},
		{v.OxygenSaturation, spo2Range},
	}
	measured, abnormal := 0, 0
	for _, c := range checks {
		if c.value == 0 {
			continue
		}
		measured++
		if c.rng.abnormal(c.value) {
			abnormal++
		}
	}
	if measured == 0 {
		return 0
	}
	return float64(abnormal) / float64(measured)
}
