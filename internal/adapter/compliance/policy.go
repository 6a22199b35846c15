// Package compliance implements the compliance ports locally: a policy checker
// for data-protection rules and audit loggers.
package compliance

import (
	"context"
	"slices"
	"strings"

	"github.com/Strob0t/MedForge/internal/domain/compliance"
	port "github.com/Strob0t/MedForge/internal/port/compliance"
)

// Purposes accepted for processing patient data.
var allowedPurposes = []string{"treatment", "diagnosis", "second_opinion", "care_coordination"}

// sensitiveCategories raise the risk level of any operation touching them.
var sensitiveCategories = []string{"genetic", "mental_health", "sexual_health", "substance_use"}

// PolicyChecker validates operations against consent and purpose-limitation rules.
type PolicyChecker struct {
	requireRequester bool
}

var _ port.Checker = (*PolicyChecker)(nil)

// NewPolicyChecker creates a checker. With requireRequester set, anonymous
// requests are violations rather than warnings.
func NewPolicyChecker(requireRequester bool) *PolicyChecker {
	return &PolicyChecker{requireRequester: requireRequester}
}

// Validate never returns an error; the verdict is in the report.
func (p *PolicyChecker) Validate(_ context.Context, op compliance.Operation) (*compliance.Report, error) {
	r := &compliance.Report{}

	if strings.TrimSpace(op.PatientID) == "" {
		r.Violations = append(r.Violations, "patient identifier is required for the audit trail")
	}

	switch op.Action {
	case compliance.ActionStartConsultation:
		if !op.Consent {
			r.Violations = append(r.Violations, "patient consent is required before sharing data with diagnostic agents")
		}
		purpose := strings.ToLower(strings.TrimSpace(op.Purpose))
		switch {
		case purpose == "":
			r.Warnings = append(r.Warnings, "processing purpose not stated; assuming diagnosis")
		case !slices.Contains(allowedPurposes, purpose):
			r.Violations = append(r.Violations, "processing purpose "+purpose+" is not permitted")
		}
	case compliance.ActionReleaseResult:
		if !op.Consent {
			r.Warnings = append(r.Warnings, "result released for a consultation without recorded consent")
		}
	default:
		r.Violations = append(r.Violations, "unknown action "+string(op.Action))
	}

	if strings.TrimSpace(op.RequestedBy) == "" {
		msg := "requester not identified"
		if p.requireRequester {
			r.Violations = append(r.Violations, msg)
		} else {
			r.Warnings = append(r.Warnings, msg)
		}
	}

	sensitive := false
	for _, c := range op.DataCategories {
		if slices.Contains(sensitiveCategories, strings.ToLower(c)) {
			sensitive = true
			r.Warnings = append(r.Warnings, "special category data included: "+c)
		}
	}

	r.Compliant = len(r.Violations) == 0
	switch {
	case !r.Compliant:
		r.RiskLevel = compliance.RiskHigh
	case sensitive || len(r.Warnings) > 0:
		r.RiskLevel = compliance.RiskMedium
	default:
		r.RiskLevel = compliance.RiskLow
	}
	return r, nil
}
