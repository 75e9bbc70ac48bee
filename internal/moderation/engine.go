// Package moderation turns a reported violation into one durable record and
// one user-facing action (warning or ban), then notifies downstream services
// through the event publisher.
package moderation

import (
	"context"
	"fmt"

	"github.com/socialstack/moderation-service/internal/broker"
	"github.com/socialstack/moderation-service/internal/model"
	"github.com/socialstack/moderation-service/internal/repo"
	"go.uber.org/zap"
)

// BanThreshold is the all-time violation count at which the decision switches
// from warning to ban. The comparison is >=, so the third violation bans.
const BanThreshold = 3

const (
	ActionWarning = "warning"
	ActionBan     = "ban"

	RecordStatusRecorded = "recorded"
	RecordStatusError    = "error"

	EventUserWarning = "user_warning"
	EventUserBanned  = "user_banned"
)

const (
	warningTitle = "Community Guidelines Warning"
	warningBody  = "You have committed a violation. Please adhere to community guidelines."
	banTitle     = "Account Banned"
	banBody      = "Your account has been banned for exceeding the maximum number of violations."
)

// EventPublisher is the slice of the broker publisher the engine uses.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload map[string]any) broker.Result
}

// Report carries one violation, content included, so the engine never reaches
// into ambient request state.
type Report struct {
	UserID       string
	Description  string
	TextContent  string
	ImageContent string
}

// Outcome is the composite result of one report: whether the record was
// persisted, which action was decided, and whether the notification made it
// to the broker. Action is empty when no decision was computed.
type Outcome struct {
	RecordStatus string `json:"record_status"`
	Action       string `json:"action,omitempty"`
	Detail       string `json:"detail"`
	Count        int64  `json:"count,omitempty"`
	Notified     bool   `json:"notified"`
	NotifyDetail string `json:"notify_detail,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
}

// Engine is stateless between calls: every report re-reads the authoritative
// count so concurrent reports for the same user see committed inserts. Two
// borderline concurrent reports may both warn; that can delay a ban by one
// violation but never advance it.
type Engine struct {
	repo repo.RepositoryInterface
	pub  EventPublisher
	log  *zap.SugaredLogger
}

// NewEngine returns Engine.
func NewEngine(r repo.RepositoryInterface, pub EventPublisher, logger *zap.SugaredLogger) *Engine {
	return &Engine{repo: r, pub: pub, log: logger}
}

// ReportViolation persists the record, recounts the user's violations,
// decides warning vs ban and publishes the notification. It never returns an
// error: every failure resolves into the Outcome.
func (e *Engine) ReportViolation(ctx context.Context, rep Report) Outcome {
	if rep.UserID == "" {
		return Outcome{RecordStatus: RecordStatusError, Detail: "user id is required"}
	}
	if rep.Description == "" {
		return Outcome{RecordStatus: RecordStatusError, Detail: "description is required"}
	}

	rec := &model.ViolationRecord{
		UserID:       rep.UserID,
		Description:  rep.Description,
		TextContent:  optional(rep.TextContent),
		ImageContent: optional(rep.ImageContent),
	}
	if err := e.repo.CreateViolation(ctx, rec); err != nil {
		e.log.Errorw("violation insert failed", "user_id", rep.UserID, "error", err)
		return Outcome{RecordStatus: RecordStatusError, Detail: fmt.Sprintf("persist violation: %v", err)}
	}

	count, err := e.repo.CountViolations(ctx, rep.UserID)
	if err != nil {
		// Defaulting to zero here would let a faulty count silently downgrade
		// a ban to a warning, so the caller gets an error outcome instead.
		e.log.Errorw("violation count failed", "user_id", rep.UserID, "error", err)
		return Outcome{RecordStatus: RecordStatusRecorded, Detail: fmt.Sprintf("count violations: %v", err)}
	}

	action, eventType, title, body := decide(count)
	if action == ActionBan {
		if err := e.repo.MarkBanned(ctx, rep.UserID); err != nil {
			e.log.Warnw("banned-set update failed", "user_id", rep.UserID, "error", err)
		}
	}
	e.log.Infow("violation escalation decided", "user_id", rep.UserID, "count", count, "action", action)

	res := e.pub.Publish(ctx, broker.RoutingKeyViolations, map[string]any{
		"event_type":     eventType,
		"user_id":        rep.UserID,
		"title_template": title,
		"body_template":  body,
	})
	if !res.Delivered {
		e.log.Warnw("violation notification undelivered",
			"user_id", rep.UserID, "message_id", res.MessageID, "detail", res.Detail)
	}

	return Outcome{
		RecordStatus: RecordStatusRecorded,
		Action:       action,
		Detail:       body,
		Count:        count,
		Notified:     res.Delivered,
		NotifyDetail: res.Detail,
		MessageID:    res.MessageID,
	}
}

func decide(count int64) (action, eventType, title, body string) {
	if count >= BanThreshold {
		return ActionBan, EventUserBanned, banTitle, banBody
	}
	return ActionWarning, EventUserWarning, warningTitle, warningBody
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
