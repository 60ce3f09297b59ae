package domain

import "time"

// EventKind is the closed set of audited actions.
type EventKind string

const (
	EventUserRegistered    EventKind = "USER_REGISTERED"
	EventUserLogin         EventKind = "USER_LOGIN"
	EventUserLogout        EventKind = "USER_LOGOUT"
	EventUserLogoutAll     EventKind = "USER_LOGOUT_ALL"
	EventFailedLogin       EventKind = "FAILED_LOGIN"
	EventProfileUpdated    EventKind = "PROFILE_UPDATED"
	EventPasswordChanged   EventKind = "PASSWORD_CHANGED"
	EventTokenRefreshed    EventKind = "TOKEN_REFRESHED"
	EventConversionCreated EventKind = "CONVERSION_CREATED"
	EventConversionDeleted EventKind = "CONVERSION_DELETED"
	EventRateFetched       EventKind = "RATE_FETCHED"
	EventDashboardViewed   EventKind = "DASHBOARD_VIEWED"
)

var eventKinds = map[EventKind]struct{}{
	EventUserRegistered:    {},
	EventUserLogin:         {},
	EventUserLogout:        {},
	EventUserLogoutAll:     {},
	EventFailedLogin:       {},
	EventProfileUpdated:    {},
	EventPasswordChanged:   {},
	EventTokenRefreshed:    {},
	EventConversionCreated: {},
	EventConversionDeleted: {},
	EventRateFetched:       {},
	EventDashboardViewed:   {},
}

// Valid reports whether k belongs to the closed set.
func (k EventKind) Valid() bool {
	_, ok := eventKinds[k]
	return ok
}

// EventRetention is how long audit events are kept before the store expires them.
const EventRetention = 90 * 24 * time.Hour

// AuditEvent is an immutable record of a security or business relevant action.
// AccountID is empty for pre-authentication failures.
type AuditEvent struct {
	ID        string         `bson:"_id,omitempty" json:"id"`
	AccountID string         `bson:"account_id,omitempty" json:"userId,omitempty"`
	Kind      EventKind      `bson:"kind" json:"eventType"`
	EntityID  string         `bson:"entity_id,omitempty" json:"entityId,omitempty"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
}

// EventFilter narrows an event listing.
type EventFilter struct {
	Kind EventKind
	From *time.Time
	To   *time.Time
}

// EventStat aggregates the events of one kind.
type EventStat struct {
	Kind           EventKind `bson:"_id" json:"eventType"`
	Count          int64     `bson:"count" json:"count"`
	LastOccurrence time.Time `bson:"last_occurrence" json:"lastOccurrence"`
}
