package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/fxapi/domain"
	"go.pilab.hu/fxapi/internal/metrics"
	"go.pilab.hu/fxapi/services"
)

// Policy decides what happens when an event cannot be persisted.
type Policy int

const (
	// PolicyBestEffort logs the failure and lets the triggering flow succeed.
	PolicyBestEffort Policy = iota
	// PolicyStrict returns the failure to the caller.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "best_effort"
}

// ParsePolicy parses "best_effort" (or empty) and "strict".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best_effort", "best-effort":
		return PolicyBestEffort, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyBestEffort, fmt.Errorf("unknown audit policy %q", s)
	}
}

// Recorder persists audit events and mirrors each one on the audit log channel.
type Recorder struct {
	repo   domain.AuditEventRepository
	policy Policy
	out    zerolog.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithOutput sends the audit log channel to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Recorder) { r.out = zerolog.New(w).With().Timestamp().Logger() }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder that applies policy to every call.
func NewRecorder(repo domain.AuditEventRepository, policy Policy, opts ...Option) *Recorder {
	r := &Recorder{
		repo:   repo,
		policy: policy,
		out:    zerolog.New(os.Stdout).With().Timestamp().Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the failure policy of the recorder.
func (r *Recorder) Policy() Policy {
	return r.policy
}

// Log records an audit event.
func (r *Recorder) Log(ctx context.Context, kind domain.EventKind, accountID string, metadata map[string]any) (*domain.AuditEvent, error) {
	return r.LogEntity(ctx, kind, accountID, "", metadata)
}

// LogEntity records an audit event that refers to another entity.
func (r *Recorder) LogEntity(ctx context.Context, kind domain.EventKind, accountID, entityID string, metadata map[string]any) (*domain.AuditEvent, error) {
	event := &domain.AuditEvent{
		AccountID: accountID,
		Kind:      kind,
		EntityID:  entityID,
		Metadata:  withRequestMeta(ctx, metadata),
		Timestamp: r.now().UTC(),
	}

	var err error
	if !kind.Valid() {
		err = fmt.Errorf("unknown audit event kind %q", kind)
	} else {
		err = r.repo.Append(ctx, event)
	}

	r.mirror(event, err)
	if err == nil {
		metrics.AuditEventsTotal.WithLabelValues(string(kind)).Inc()
		return event, nil
	}

	metrics.AuditFailuresTotal.Inc()
	log.Error().Err(err).
		Str("kind", string(kind)).
		Str("account_id", accountID).
		Str("policy", r.policy.String()).
		Msg("Failed to persist audit event")
	if r.policy == PolicyStrict {
		return nil, fmt.Errorf("record %s: %w", kind, err)
	}
	return event, nil
}

func (r *Recorder) mirror(event *domain.AuditEvent, persistErr error) {
	entry, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit event to JSON")
		r.out.Log().
			Str("kind", string(event.Kind)).
			Str("account_id", event.AccountID).
			Bool("persisted", persistErr == nil).
			Msg("Audit Log (fallback)")
		return
	}
	r.out.Log().RawJSON("audit_event", entry).Bool("persisted", persistErr == nil).Msg("")
}

// withRequestMeta copies metadata and adds the client address and agent
// from ctx, never overriding keys the caller set.
func withRequestMeta(ctx context.Context, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	if m, ok := domain.RequestMetaFromContext(ctx); ok {
		if _, set := out["ipAddress"]; !set && m.IPAddress != "" {
			out["ipAddress"] = m.IPAddress
		}
		if _, set := out["userAgent"]; !set && m.UserAgent != "" {
			out["userAgent"] = m.UserAgent
		}
	}
	return out
}

var _ services.AuditRecorder = (*Recorder)(nil)
