package events

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueSubmitted EventType = "issue_submitted"
	EventIssueApproved  EventType = "issue_approved"
	EventIssueRejected  EventType = "issue_rejected"
	EventVoteCast       EventType = "vote_cast"
)

// AllEventTypes lists every event the services publish.
var AllEventTypes = []EventType{
	EventIssueSubmitted,
	EventIssueApproved,
	EventIssueRejected,
	EventVoteCast,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.SubjectType `json:"type,omitempty"`
	UserID *string            `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services after a change commits.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issue_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IssueSubmittedPayload payload.
type IssueSubmittedPayload struct {
	Category string `json:"category"`
	Location string `json:"location"`
	HasImage bool   `json:"has_image"`
}

// IssueModeratedPayload payload for approvals and rejections.
type IssueModeratedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// VoteCastPayload payload.
type VoteCastPayload struct {
	VoteType  domain.VoteType `json:"vote_type"`
	Upvotes   int             `json:"upvotes"`
	Downvotes int             `json:"downvotes"`
}
