package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectConsultationStarted:
		var p ConsultationStartedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ConsultationID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingID)
		}
	case SubjectConsultationCompleted, SubjectConsultationFailed,
		SubjectConsultationCancelled, SubjectConsultationReviewRequired:
		var p ConsultationFinishedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ConsultationID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingID)
		}
	}
	return nil
}

var errMissingID = errors.New("consultation_id is required")
