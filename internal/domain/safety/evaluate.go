package safety

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
)

// Input is everything one gate evaluation looks at.
type Input struct {
	Consensus           *consensus.Result
	Patient             PatientContext
	Interactions        []enrichment.Interaction
	InteractionCheckErr error // non-nil when the interaction lookup failed
	ConfidenceThreshold float64
}

// Evaluator applies a rule set. It is immutable and safe for concurrent use.
type Evaluator struct {
	rules *Rules
	known map[string]bool
}

// NewEvaluator returns an Evaluator over rules. A nil rule set uses DefaultRules.
func NewEvaluator(rules *Rules) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Evaluator{rules: rules, known: rules.knownDrugs()}
}

// ImpliedDrugs returns the distinct drugs the recommendations would start, in
// first-seen order. Structured orders name the drug; otherwise the text is
// scanned for drugs the rule set knows.
func (e *Evaluator) ImpliedDrugs(recs []consensus.Recommendation) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, r := range recs {
		if r.Type != consensus.RecMedication {
			continue
		}
		if d := e.orderedDrug(r.Drug); d != "" {
			add(d)
			continue
		}
		for _, word := range drugWords(r.Text) {
			if e.known[word] {
				add(word)
			}
		}
	}
	return out
}

// orderedDrug resolves a structured drug field such as "Amoxicillin 500mg" or
// "amoxicillin-clavulanate" to the first component the rule set knows. Unknown
// drugs are returned whole.
func (e *Evaluator) orderedDrug(drug string) string {
	for _, word := range drugWords(drug) {
		if e.known[word] {
			return word
		}
	}
	return normalizeDrug(drug)
}

// drugWords lowercases s and splits it on anything that is not a letter, so
// strengths and combination hyphens separate the drug names.
func drugWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// report accumulates findings and the running score.
type report struct {
	res          Result
	absolute     bool
	highWarning  bool
	reviewReason []string
}

func (r *report) critical(a Alert) {
	a.Severity = SeverityCritical
	r.res.CriticalAlerts = append(r.res.CriticalAlerts, a)
	r.res.SafetyScore -= PenaltyCriticalAlert
}

func (r *report) violation(a Alert) {
	switch a.Kind {
	case ViolationAbsoluteContraindication:
		r.absolute = true
		r.res.SafetyScore -= PenaltyAbsoluteContraindication
	case ViolationOverdose:
		r.res.SafetyScore -= PenaltyOverdose
	case ViolationCriticalInteraction:
		r.res.SafetyScore -= PenaltyCriticalInteraction
	}
	r.res.Violations = append(r.res.Violations, a)
}

func (r *report) warning(a Alert) {
	switch a.Severity {
	case SeverityHigh:
		r.highWarning = true
		r.res.SafetyScore -= PenaltyHighWarning
	case SeverityMedium:
		r.res.SafetyScore -= PenaltyMediumWarning
	}
	r.res.Warnings = append(r.res.Warnings, a)
}

func (r *report) review(reason string) {
	r.reviewReason = append(r.reviewReason, reason)
}

// Evaluate runs every check in order. No check short-circuits another.
func (e *Evaluator) Evaluate(in Input) Result {
	r := &report{res: Result{
		CriticalAlerts: []Alert{},
		Warnings:       []Alert{},
		Violations:     []Alert{},
		SafetyScore:    100,
	}}

	var recs []consensus.Recommendation
	if in.Consensus != nil {
		recs = in.Consensus.Recommendations
	}
	drugs := e.ImpliedDrugs(recs)

	e.checkDoses(r, recs)
	e.checkAllergies(r, recs, in.Patient.Allergies)
	e.checkContraindications(r, drugs, in.Patient.Conditions)
	e.checkPregnancy(r, drugs, in.Patient.Pregnant)
	checkInteractions(r, in.Interactions, in.InteractionCheckErr)
	checkConfidence(r, in.Consensus, threshold(in.ConfidenceThreshold))

	return r.finish(in.Consensus)
}

func threshold(t float64) float64 {
	if t <= 0 {
		return DefaultConfidenceThreshold
	}
	return t
}

func (e *Evaluator) checkDoses(r *report, recs []consensus.Recommendation) {
	for _, rec := range recs {
		if rec.Type != consensus.RecMedication || rec.DoseMg <= 0 {
			continue
		}
		drug := e.orderedDrug(rec.Drug)
		rng, ok := e.rules.Doses[drug]
		if !ok {
			continue
		}
		switch {
		case rec.DoseMg > 2*rng.MaxSingleMg:
			r.critical(Alert{
				Category: CategoryDose,
				Drug:     drug,
				Message:  fmt.Sprintf("%s %.0fmg is more than twice the maximum single dose of %.0fmg", drug, rec.DoseMg, rng.MaxSingleMg),
			})
			continue
		case rec.DoseMg > rng.MaxSingleMg:
			r.violation(Alert{
				Category: CategoryDose,
				Severity: SeverityHigh,
				Kind:     ViolationOverdose,
				Drug:     drug,
				Message:  fmt.Sprintf("%s %.0fmg exceeds the maximum single dose of %.0fmg", drug, rec.DoseMg, rng.MaxSingleMg),
			})
			continue
		}
		if rec.FrequencyPerDay > 0 {
			daily := rec.DoseMg * float64(rec.FrequencyPerDay)
			if daily > rng.MaxDailyMg {
				r.violation(Alert{
					Category: CategoryDose,
					Severity: SeverityHigh,
					Kind:     ViolationOverdose,
					Drug:     drug,
					Message:  fmt.Sprintf("%s %.0fmg/day exceeds the maximum daily dose of %.0fmg", drug, daily, rng.MaxDailyMg),
				})
			}
		}
	}
}

// checkAllergies matches every allergy, and every drug sharing a class with it,
// as a whole word against the drug and text of each medication order.
func (e *Evaluator) checkAllergies(r *report, recs []consensus.Recommendation, allergies []string) {
	seen := make(map[string]bool)
	for _, allergy := range allergies {
		a := strings.Join(drugWords(allergy), " ")
		if a == "" {
			continue
		}
		candidates := e.crossReactive(a)
		for _, rec := range recs {
			if rec.Type != consensus.RecMedication {
				continue
			}
			words := " " + strings.Join(drugWords(rec.Drug+" "+rec.Text), " ") + " "
			for _, drug := range candidates {
				if !strings.Contains(words, " "+drug+" ") {
					continue
				}
				if key := a + "|" + drug; !seen[key] {
					seen[key] = true
					r.critical(Alert{
						Category: CategoryAllergy,
						Drug:     drug,
						Message:  fmt.Sprintf("%s conflicts with documented %s allergy", drug, allergy),
					})
				}
				break
			}
		}
	}
}

// crossReactive returns the allergen itself followed by every drug in a class
// that is named by or contains it.
func (e *Evaluator) crossReactive(allergy string) []string {
	out := []string{allergy}
	classes := make([]string, 0, len(e.rules.AllergyClasses))
	for class := range e.rules.AllergyClasses {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		members := e.rules.AllergyClasses[class]
		if class != allergy && !slices.Contains(members, allergy) {
			continue
		}
		for _, m := range members {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out
}

func (e *Evaluator) checkContraindications(r *report, drugs, conditions []string) {
	for _, drug := range drugs {
		for _, c := range e.rules.Contraindications {
			if c.Drug != drug {
				continue
			}
			cond, ok := matchCondition(conditions, c.Condition)
			if !ok {
				continue
			}
			if c.Level == ContraindicationAbsolute {
				r.violation(Alert{
					Category: CategoryContraindication,
					Severity: SeverityCritical,
					Kind:     ViolationAbsoluteContraindication,
					Drug:     drug,
					Message:  fmt.Sprintf("%s is absolutely contraindicated with %s", drug, cond),
				})
				continue
			}
			r.warning(Alert{
				Category: CategoryContraindication,
				Severity: SeverityHigh,
				Drug:     drug,
				Message:  fmt.Sprintf("%s is relatively contraindicated with %s", drug, cond),
			})
		}
	}
}

func matchCondition(conditions []string, needle string) (string, bool) {
	for _, c := range conditions {
		if strings.Contains(strings.ToLower(c), needle) {
			return c, true
		}
	}
	return "", false
}

func (e *Evaluator) checkPregnancy(r *report, drugs []string, pregnant bool) {
	if !pregnant {
		return
	}
	for _, drug := range drugs {
		cat, ok := e.rules.Pregnancy[drug]
		if !ok {
			continue
		}
		msg := fmt.Sprintf("%s is pregnancy category %s", drug, cat)
		switch cat {
		case PregnancyX:
			r.critical(Alert{Category: CategoryPregnancy, Drug: drug, Message: msg})
		case PregnancyD:
			r.warning(Alert{Category: CategoryPregnancy, Severity: SeverityHigh, Drug: drug, Message: msg})
		case PregnancyC:
			r.warning(Alert{Category: CategoryPregnancy, Severity: SeverityMedium, Drug: drug, Message: msg})
		}
	}
}

func checkInteractions(r *report, interactions []enrichment.Interaction, lookupErr error) {
	if lookupErr != nil {
		r.warning(Alert{
			Category: CategoryInteraction,
			Severity: SeverityMedium,
			Message:  "drug interaction check unavailable: " + lookupErr.Error(),
		})
		r.review("drug interaction check unavailable")
	}
	for _, ix := range interactions {
		pair := fmt.Sprintf("%s + %s", normalizeDrug(ix.DrugA), normalizeDrug(ix.DrugB))
		msg := pair
		if ix.Description != "" {
			msg += ": " + ix.Description
		}
		switch ix.Severity {
		case enrichment.InteractionContraindicated:
			r.critical(Alert{Category: CategoryInteraction, Drug: pair, Message: "contraindicated combination " + msg})
		case enrichment.InteractionMajor:
			r.violation(Alert{
				Category: CategoryInteraction,
				Severity: SeverityHigh,
				Kind:     ViolationCriticalInteraction,
				Drug:     pair,
				Message:  "major interaction " + msg,
			})
		case enrichment.InteractionModerate:
			r.warning(Alert{Category: CategoryInteraction, Severity: SeverityMedium, Drug: pair, Message: "moderate interaction " + msg})
		}
	}
}

// checkConfidence flags critical recommendations whose confidence, or the panel's
// when the recommendation has none, is under the threshold.
func checkConfidence(r *report, c *consensus.Result, minConf float64) {
	if c == nil {
		return
	}
	flagged := false
	for _, rec := range c.Recommendations {
		if !rec.Critical() {
			continue
		}
		conf := c.OverallConfidence
		if rec.Confidence != nil {
			conf = *rec.Confidence
		}
		if conf >= minConf {
			continue
		}
		r.warning(Alert{
			Category: CategoryConfidence,
			Severity: SeverityMedium,
			Drug:     normalizeDrug(rec.Drug),
			Message:  fmt.Sprintf("%s recommendation %q has confidence %.2f below %.2f", rec.Type, rec.Text, conf, minConf),
		})
		flagged = true
	}
	if flagged {
		r.review("low-confidence critical recommendation")
	}
}

func (r *report) finish(c *consensus.Result) Result {
	res := r.res
	res.Safe = len(res.CriticalAlerts) == 0 && !r.absolute
	res.SafetyScore = max(res.SafetyScore, 0)

	reasons := r.reviewReason
	if !res.Safe {
		reasons = append(reasons, "unsafe recommendation")
	}
	if len(res.Violations) > 0 {
		reasons = append(reasons, "safety violations present")
	}
	if r.highWarning {
		reasons = append(reasons, "high-severity warning")
	}
	if c != nil && c.Quality == consensus.QualityPoor {
		reasons = append(reasons, "poor consensus quality")
	}
	sort.Strings(reasons)
	res.ReviewReasons = reasons
	res.RequiresHumanReview = len(reasons) > 0

	switch {
	case len(res.CriticalAlerts) > 0 || r.absolute:
		res.OverallRisk = RiskCritical
	case len(res.Violations) > 0 || r.highWarning:
		res.OverallRisk = RiskHigh
	case len(res.Warnings) > 0:
		res.OverallRisk = RiskMedium
	default:
		res.OverallRisk = RiskLow
	}
	return res
}
