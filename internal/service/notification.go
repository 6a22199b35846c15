package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/MedForge/internal/port/messagequeue"
	"github.com/Strob0t/MedForge/internal/port/notifier"
)

// NotificationService alerts every configured channel about consultations that
// were flagged for human review.
type NotificationService struct {
	notifiers  []notifier.Notifier
	linkPrefix string
}

// NewNotificationService creates a NotificationService. linkPrefix is joined
// with the consultation ID to form the result link; empty omits the link.
func NewNotificationService(notifiers []notifier.Notifier, linkPrefix string) *NotificationService {
	return &NotificationService{notifiers: notifiers, linkPrefix: linkPrefix}
}

// Notify sends n to every notifier. A failing channel does not stop delivery to
// the others; the error is returned only when no channel accepted it.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) error {
	var errs []error
	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.WarnContext(ctx, "notification send failed",
				"provider", provider.Name(),
				"consultation_id", n.ConsultationID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "consultation_id", n.ConsultationID)
	}
	if len(errs) > 0 && len(errs) == len(s.notifiers) {
		return errors.Join(errs...)
	}
	return nil
}

// ReviewRequired alerts about a flagged consultation. Unsafe results are critical.
func (s *NotificationService) ReviewRequired(ctx context.Context, p messagequeue.ConsultationFinishedPayload) error {
	level := notifier.LevelWarning
	if !p.Safe {
		level = notifier.LevelCritical
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "Primary diagnosis: %s (agreement %.2f, confidence %.2f).\n",
		p.PrimaryDiagnosis, p.AgreementScore, p.OverallConfidence)
	fmt.Fprintf(&msg, "Safety score %d/100", p.SafetyScore)
	if !p.Safe {
		msg.WriteString(", recommendations blocked as unsafe")
	}
	msg.WriteString(". Do not act on this result before a clinician has reviewed it.")

	n := notifier.Notification{
		Title:          "Consultation requires human review",
		Message:        msg.String(),
		Level:          level,
		Source:         messagequeue.SubjectConsultationReviewRequired,
		ConsultationID: p.ConsultationID,
	}
	if s.linkPrefix != "" {
		n.Link = s.linkPrefix + p.ConsultationID
	}
	return s.Notify(ctx, n)
}

// NotifierCount returns the number of configured notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}
