// Package enrichment defines the evidence gathered from external knowledge
// providers before a consultation is delegated.
package enrichment

import "github.com/Strob0t/MedForge/internal/domain/consensus"

// Branch names one provider call of the fan-out.
type Branch string

const (
	BranchLiterature   Branch = "literature"
	BranchDrugSafety   Branch = "drug_safety"
	BranchGuidelines   Branch = "guidelines"
	BranchRisk         Branch = "risk"
	BranchDifferential Branch = "differential"
	BranchImaging      Branch = "imaging"
)

// Branches lists every fan-out branch in a fixed order.
var Branches = []Branch{
	BranchLiterature,
	BranchDrugSafety,
	BranchGuidelines,
	BranchRisk,
	BranchDifferential,
	BranchImaging,
}

// Article is a literature search hit.
type Article struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Journal   string   `json:"journal,omitempty"`
	Year      int      `json:"year,omitempty"`
	Abstract  string   `json:"abstract,omitempty"`
	Relevance float64  `json:"relevance"`
	MeSHTerms []string `json:"mesh_terms,omitempty"`
}

// InteractionSeverity grades a drug-drug interaction.
type InteractionSeverity string

const (
	InteractionMinor           InteractionSeverity = "minor"
	InteractionModerate        InteractionSeverity = "moderate"
	InteractionMajor           InteractionSeverity = "major"
	InteractionContraindicated InteractionSeverity = "contraindicated"
)

// Interaction is a pairwise drug conflict.
type Interaction struct {
	DrugA       string              `json:"drug_a"`
	DrugB       string              `json:"drug_b"`
	Severity    InteractionSeverity `json:"severity"`
	Description string              `json:"description,omitempty"`
}

// DrugSafetyReport is the drug-safety provider's answer for a medication list.
type DrugSafetyReport struct {
	Interactions []Interaction `json:"interactions"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Guideline is a clinical practice guideline reference.
type Guideline struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Organization   string `json:"organization,omitempty"`
	Year           int    `json:"year,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	EvidenceLevel  string `json:"evidence_level,omitempty"`
	URL            string `json:"url,omitempty"`
}

// RiskAssessment is an early-warning score over the patient's vitals.
type RiskAssessment struct {
	Score      int      `json:"score"`
	Level      string   `json:"level"` // low, low_medium, medium, high
	Model      string   `json:"model"`
	Triggers   []string `json:"triggers,omitempty"`
	Escalation string   `json:"escalation,omitempty"`
}

// ImagingStudy is one study submitted with the case.
type ImagingStudy struct {
	Modality    string `json:"modality"` // xray, ct, mri, ultrasound
	BodyPart    string `json:"body_part"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// ImagingFinding is a single AI-detected finding.
type ImagingFinding struct {
	StudyIndex  int     `json:"study_index"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Location    string  `json:"location,omitempty"`
	Significant bool    `json:"significant"`
}

// ImagingFindings is the imaging provider's answer.
type ImagingFindings struct {
	Findings   []ImagingFinding `json:"findings"`
	Impression string           `json:"impression,omitempty"`
}

// Context is the per-consultation evidence bundle. A nil or empty field means the
// provider failed or was not applicable; the reason for failures is in Failures.
type Context struct {
	Literature         []Article             `json:"literature,omitempty"`
	DrugSafety         *DrugSafetyReport     `json:"drug_safety,omitempty"`
	Guidelines         []Guideline           `json:"guidelines,omitempty"`
	Risk               *RiskAssessment       `json:"risk,omitempty"`
	ExpertDifferential []consensus.Diagnosis `json:"expert_differential,omitempty"`
	Imaging            *ImagingFindings      `json:"imaging,omitempty"`
	Failures           map[Branch]string     `json:"failures,omitempty"`
}

// Summary reports which branches contributed and which failed.
type Summary struct {
	Contributed []Branch          `json:"contributed"`
	Failed      map[Branch]string `json:"failed,omitempty"`
}

// Has reports whether branch b produced data.
func (c *Context) Has(b Branch) bool {
	if c == nil {
		return false
	}
	switch b {
	case BranchLiterature:
		return len(c.Literature) > 0
	case BranchDrugSafety:
		return c.DrugSafety != nil
	case BranchGuidelines:
		return len(c.Guidelines) > 0
	case BranchRisk:
		return c.Risk != nil
	case BranchDifferential:
		return len(c.ExpertDifferential) > 0
	case BranchImaging:
		return c.Imaging != nil
	}
	return false
}

// Summarize lists contributing branches in fixed order.
func (c *Context) Summarize() Summary {
	s := Summary{Contributed: []Branch{}}
	if c == nil {
		return s
	}
	for _, b := range Branches {
		if c.Has(b) {
			s.Contributed = append(s.Contributed, b)
		}
	}
	if len(c.Failures) > 0 {
		s.Failed = make(map[Branch]string, len(c.Failures))
		for k, v := range c.Failures {
			s.Failed[k] = v
		}
	}
	return s
}
