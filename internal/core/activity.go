package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityType names what happened, e.g. "user.logged_in" or "budget.created".
type ActivityType string

const (
	ActivityLoggedIn       ActivityType = "user.logged_in"
	ActivityRegistered     ActivityType = "user.registered"
	ActivityLoggedOut      ActivityType = "user.logged_out"
	ActivitySessionExpired ActivityType = "user.session_expired"
)

// Mutation actions recorded for resources.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ResourceActivity builds "<resource>.<action>".
func ResourceActivity(resource, action string) ActivityType {
	return ActivityType(resource + "." + action)
}

// ActivityEvent is an audit record of a session or mutation event.
type ActivityEvent struct {
	ID         string       `json:"id"`
	Type       ActivityType `json:"type"`
	SessionID  string       `json:"session_id"`
	User       string       `json:"user,omitempty"`
	Resource   string       `json:"resource,omitempty"`
	ResourceID int64        `json:"resource_id,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

func NewActivityEvent(typ ActivityType, sessionID, user string) ActivityEvent {
	return ActivityEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		User:      user,
		Timestamp: time.Now().UTC(),
	}
}

// WithResource returns a copy of the event tagged with a resource and its id.
func (e ActivityEvent) WithResource(resource string, id int64) ActivityEvent {
	e.Resource = resource
	e.ResourceID = id
	return e
}

// ActivityPublisher ships activity events. Publishing is best effort: callers
// log failures and carry on.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, event ActivityEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishActivity(context.Context, ActivityEvent) error { return nil }
