package domain

import (
	"strings"
	"time"
)

// IssueStatus enumerates moderation states for issues.
type IssueStatus string

const (
	IssueStatusPending  IssueStatus = "pending"
	IssueStatusApproved IssueStatus = "approved"
	IssueStatusRejected IssueStatus = "rejected"
)

// ModerationDecision is the moderator's verdict on a pending issue.
type ModerationDecision string

const (
	DecisionApprove ModerationDecision = "approve"
	DecisionReject  ModerationDecision = "reject"
)

// ParseModerationDecision accepts both verb and status spellings ("approve", "approved").
func ParseModerationDecision(raw string) (ModerationDecision, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return DecisionApprove, true
	case "reject", "rejected":
		return DecisionReject, true
	default:
		return "", false
	}
}

// TargetStatus returns the status a pending issue ends in after the decision.
func (d ModerationDecision) TargetStatus() IssueStatus {
	if d == DecisionApprove {
		return IssueStatusApproved
	}
	return IssueStatusRejected
}

// VoteType distinguishes up and down votes.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// ParseVoteType validates a raw vote type.
func ParseVoteType(raw string) (VoteType, bool) {
	switch VoteType(strings.ToLower(strings.TrimSpace(raw))) {
	case VoteUp:
		return VoteUp, true
	case VoteDown:
		return VoteDown, true
	default:
		return "", false
	}
}

// Issue is a civic problem report moving through moderation.
type Issue struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	Category    string      `json:"category"`
	ReporterID  *string     `json:"reporterId,omitempty"`
	ImageRef    *string     `json:"imageRef,omitempty"`
	Status      IssueStatus `json:"status"`
	Upvotes     int         `json:"upvotes"`
	Downvotes   int         `json:"downvotes"`
	VotedBy     []string    `json:"votedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	ModeratedAt *time.Time  `json:"moderatedAt,omitempty"`
}

var allowedTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusPending:  {IssueStatusApproved, IssueStatusRejected},
	IssueStatusApproved: {},
	IssueStatusRejected: {},
}

// CanTransition reports whether an issue may move from current to next.
func CanTransition(current, next IssueStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsVotable reports whether votes may be cast on the issue.
func (i *Issue) IsVotable() bool {
	return i.Status == IssueStatusApproved
}

// HasVoted reports whether userID already voted on the issue.
func (i *Issue) HasVoted(userID string) bool {
	for _, voter := range i.VotedBy {
		if voter == userID {
			return true
		}
	}
	return false
}

// ApplyModeration sets the post-moderation status. Callers check CanTransition first.
func (i *Issue) ApplyModeration(decision ModerationDecision, now time.Time) {
	i.Status = decision.TargetStatus()
	i.ModeratedAt = &now
	i.UpdatedAt = now
}

// RecordVote increments one tally and remembers the voter. Callers check HasVoted first.
func (i *Issue) RecordVote(userID string, vote VoteType, now time.Time) {
	switch vote {
	case VoteUp:
		i.Upvotes++
	case VoteDown:
		i.Downvotes++
	}
	i.VotedBy = append(i.VotedBy, userID)
	i.UpdatedAt = now
}

// Clone returns a deep copy so stored records never alias caller memory.
func (i Issue) Clone() Issue {
	out := i
	if i.ReporterID != nil {
		v := *i.ReporterID
		out.ReporterID = &v
	}
	if i.ImageRef != nil {
		v := *i.ImageRef
		out.ImageRef = &v
	}
	if i.ModeratedAt != nil {
		v := *i.ModeratedAt
		out.ModeratedAt = &v
	}
	out.VotedBy = append([]string{}, i.VotedBy...)
	return out
}
