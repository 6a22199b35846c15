package safety

// DoseRange is the adult dosing ceiling of a drug, in milligrams.
type DoseRange struct {
	MaxSingleMg float64
	MaxDailyMg  float64
}

// ContraindicationLevel grades a drug-condition conflict.
type ContraindicationLevel string

const (
	ContraindicationAbsolute ContraindicationLevel = "absolute"
	ContraindicationRelative ContraindicationLevel = "relative"
)

// Contraindication is a drug that must not, or should only cautiously, be given
// with a condition. Condition matches as a case-insensitive substring.
type Contraindication struct {
	Drug      string
	Condition string
	Level     ContraindicationLevel
}

// PregnancyCategory is the FDA letter category.
type PregnancyCategory string

const (
	PregnancyA PregnancyCategory = "A"
	PregnancyB PregnancyCategory = "B"
	PregnancyC PregnancyCategory = "C"
	PregnancyD PregnancyCategory = "D"
	PregnancyX PregnancyCategory = "X"
)

// Rules is the rule set the evaluator applies. Keys are lowercase drug names.
type Rules struct {
	Doses             map[string]DoseRange
	AllergyClasses    map[string][]string // allergy class -> member drugs
	Contraindications []Contraindication
	Pregnancy         map[string]PregnancyCategory
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	return &Rules{
		Doses: map[string]DoseRange{
			"acetaminophen": {MaxSingleMg: 1000, MaxDailyMg: 4000},
			"ibuprofen":     {MaxSingleMg: 800, MaxDailyMg: 3200},
			"amoxicillin":   {MaxSingleMg: 1000, MaxDailyMg: 3000},
			"metformin":     {MaxSingleMg: 1000, MaxDailyMg: 2550},
			"warfarin":      {MaxSingleMg: 10, MaxDailyMg: 10},
			"aspirin":       {MaxSingleMg: 1000, MaxDailyMg: 4000},
			"lisinopril":    {MaxSingleMg: 40, MaxDailyMg: 80},
			"azithromycin":  {MaxSingleMg: 500, MaxDailyMg: 500},
			"prednisone":    {MaxSingleMg: 80, MaxDailyMg: 80},
			"morphine":      {MaxSingleMg: 30, MaxDailyMg: 180},
		},
		AllergyClasses: map[string][]string{
			"penicillin": {"penicillin", "amoxicillin", "ampicillin"},
			"sulfa":      {"sulfamethoxazole"},
			"nsaid":      {"ibuprofen", "naproxen", "aspirin"},
		},
		Contraindications: []Contraindication{
			{Drug: "ibuprofen", Condition: "gi bleed", Level: ContraindicationAbsolute},
			{Drug: "ibuprofen", Condition: "kidney disease", Level: ContraindicationRelative},
			{Drug: "metformin", Condition: "renal failure", Level: ContraindicationAbsolute},
			{Drug: "warfarin", Condition: "active bleeding", Level: ContraindicationAbsolute},
			{Drug: "aspirin", Condition: "peptic ulcer", Level: ContraindicationRelative},
			{Drug: "lisinopril", Condition: "angioedema", Level: ContraindicationAbsolute},
		},
		Pregnancy: map[string]PregnancyCategory{
			"warfarin":      PregnancyX,
			"isotretinoin":  PregnancyX,
			"methotrexate":  PregnancyX,
			"lisinopril":    PregnancyD,
			"ibuprofen":     PregnancyC,
			"amoxicillin":   PregnancyB,
			"acetaminophen": PregnancyB,
		},
	}
}

// knownDrugs returns every drug name the rule set mentions.
func (r *Rules) knownDrugs() map[string]bool {
	known := make(map[string]bool)
	for d := range r.Doses {
		known[d] = true
	}
	for _, members := range r.AllergyClasses {
		for _, d := range members {
			known[d] = true
		}
	}
	for _, c := range r.Contraindications {
		known[c.Drug] = true
	}
	for d := range r.Pregnancy {
		known[d] = true
	}
	return known
}
