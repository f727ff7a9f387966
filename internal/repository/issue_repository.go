package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// Collection names a logical issue collection.
type Collection string

const (
	CollectionPending  Collection = "pending"
	CollectionApproved Collection = "approved"
)

// CollectionFor maps a status to the collection that holds it. Rejected issues
// are purged, so they have no collection.
func CollectionFor(status domain.IssueStatus) (Collection, bool) {
	switch status {
	case domain.IssueStatusPending:
		return CollectionPending, true
	case domain.IssueStatusApproved:
		return CollectionApproved, true
	default:
		return "", false
	}
}

// MutateFunc validates and edits an issue inside a repository critical section.
// Returning an error aborts the operation and leaves storage untouched.
type MutateFunc func(issue *domain.Issue) error

// IssueRepository encapsulates issue persistence.
//
// Update, Move and Delete hold the issue's lock (mutex or row lock) across
// the callback and the write, so validate-then-mutate is atomic per issue.
type IssueRepository interface {
	// Create stores a new issue in the collection for its status, assigning an id when empty.
	Create(ctx context.Context, issue *domain.Issue) error
	// Get looks the issue up in every collection.
	Get(ctx context.Context, id string) (*domain.Issue, error)
	// ListByStatus returns issues in insertion order.
	ListByStatus(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error)
	// Update rewrites an issue in place. mutate must not change the status.
	Update(ctx context.Context, id string, mutate MutateFunc) (*domain.Issue, error)
	// Move relocates an issue between collections after mutate succeeds.
	Move(ctx context.Context, id string, from, to Collection, mutate MutateFunc) (*domain.Issue, error)
	// Delete removes an issue from a collection after check succeeds and returns the removed record.
	Delete(ctx context.Context, id string, from Collection, check MutateFunc) (*domain.Issue, error)
}

// newIssueID returns a time-ordered, collision-resistant identifier.
func newIssueID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
