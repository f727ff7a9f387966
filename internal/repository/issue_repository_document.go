package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

const (
	pendingDocument  = "issues.json"
	approvedDocument = "approved.json"
)

// issueCollection keeps records in insertion order.
type issueCollection struct {
	name  Collection
	order []string
	items map[string]domain.Issue
	file  *documentFile
}

func newIssueCollection(name Collection) *issueCollection {
	return &issueCollection{name: name, items: make(map[string]domain.Issue)}
}

func (c *issueCollection) insertAt(idx int, issue domain.Issue) {
	if idx < 0 || idx > len(c.order) {
		idx = len(c.order)
	}
	c.order = append(c.order, "")
	copy(c.order[idx+1:], c.order[idx:])
	c.order[idx] = issue.ID
	c.items[issue.ID] = issue
}

func (c *issueCollection) remove(id string) int {
	delete(c.items, id)
	for i, candidate := range c.order {
		if candidate == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return i
		}
	}
	return -1
}

func (c *issueCollection) snapshot() []domain.Issue {
	out := make([]domain.Issue, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].Clone())
	}
	return out
}

// DocumentIssueRepository stores each collection as an ordered in-memory map,
// optionally mirrored to one JSON document per collection.
//
// Lock order: per-issue lock first, then mu. Structural changes and
// write-backs hold mu exclusively so listings never observe a half-moved issue.
type DocumentIssueRepository struct {
	mu       sync.RWMutex
	locks    *keyedMutex
	pending  *issueCollection
	approved *issueCollection
	logger   *zap.Logger
}

// NewMemoryIssueRepository returns a non-durable repository.
func NewMemoryIssueRepository() *DocumentIssueRepository {
	return &DocumentIssueRepository{
		locks:    newKeyedMutex(),
		pending:  newIssueCollection(CollectionPending),
		approved: newIssueCollection(CollectionApproved),
		logger:   zap.NewNop(),
	}
}

// NewFileIssueRepository loads (or initializes) the collections under dir.
// An issue found in both documents is kept only as approved: approval writes
// the approved document before rewriting the pending one.
func NewFileIssueRepository(dir string, logger *zap.Logger) (*DocumentIssueRepository, error) {
	repo := NewMemoryIssueRepository()
	if logger != nil {
		repo.logger = logger
	}

	pendingFile, err := newDocumentFile(dir, pendingDocument)
	if err != nil {
		return nil, err
	}
	approvedFile, err := newDocumentFile(dir, approvedDocument)
	if err != nil {
		return nil, err
	}
	repo.pending.file = pendingFile
	repo.approved.file = approvedFile

	var approved, pending []domain.Issue
	if err := approvedFile.read(&approved); err != nil {
		return nil, err
	}
	if err := pendingFile.read(&pending); err != nil {
		return nil, err
	}

	for _, issue := range approved {
		if _, dup := repo.approved.items[issue.ID]; dup || issue.ID == "" {
			continue
		}
		repo.approved.insertAt(-1, issue)
	}
	for _, issue := range pending {
		if _, moved := repo.approved.items[issue.ID]; moved || issue.ID == "" {
			continue
		}
		if _, dup := repo.pending.items[issue.ID]; dup {
			continue
		}
		repo.pending.insertAt(-1, issue)
	}
	return repo, nil
}

func (r *DocumentIssueRepository) collection(name Collection) (*issueCollection, error) {
	switch name {
	case CollectionPending:
		return r.pending, nil
	case CollectionApproved:
		return r.approved, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", name)
	}
}

// persist writes the collection document. Callers hold mu exclusively.
func (r *DocumentIssueRepository) persist(ctx context.Context, c *issueCollection) error {
	if c.file == nil {
		return nil
	}
	snapshot := c.snapshot()
	return withRetry(ctx, func() error {
		return c.file.write(snapshot)
	})
}

// locate finds an issue in any collection. Callers hold mu (read or write).
func (r *DocumentIssueRepository) locate(id string) (*issueCollection, domain.Issue, bool) {
	if issue, ok := r.approved.items[id]; ok {
		return r.approved, issue.Clone(), true
	}
	if issue, ok := r.pending.items[id]; ok {
		return r.pending, issue.Clone(), true
	}
	return nil, domain.Issue{}, false
}

func (r *DocumentIssueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	name, ok := CollectionFor(issue.Status)
	if !ok {
		return fmt.Errorf("cannot store issue with status %q", issue.Status)
	}
	target, err := r.collection(name)
	if err != nil {
		return err
	}
	if issue.ID == "" {
		issue.ID = newIssueID()
	}
	if issue.VotedBy == nil {
		issue.VotedBy = []string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, _, exists := r.locate(issue.ID); exists {
		return ErrConflict
	}
	target.insertAt(-1, issue.Clone())
	if err := r.persist(ctx, target); err != nil {
		target.remove(issue.ID)
		return err
	}
	return nil
}

func (r *DocumentIssueRepository) Get(_ context.Context, id string) (*domain.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, issue, ok := r.locate(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &issue, nil
}

func (r *DocumentIssueRepository) ListByStatus(_ context.Context, status domain.IssueStatus) ([]domain.Issue, error) {
	name, ok := CollectionFor(status)
	if !ok {
		return []domain.Issue{}, nil
	}
	c, err := r.collection(name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.snapshot(), nil
}

func (r *DocumentIssueRepository) Update(ctx context.Context, id string, mutate MutateFunc) (*domain.Issue, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.RLock()
	c, working, ok := r.locate(id)
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	previous := working.Clone()
	if err := mutate(&working); err != nil {
		return nil, err
	}
	if working.ID != id || working.Status != previous.Status {
		return nil, errors.New("update may not change issue id or status")
	}

	// Keyed by the stored record's id; the caller's id may alias a request buffer.
	r.mu.Lock()
	defer r.mu.Unlock()
	c.items[previous.ID] = working.Clone()
	if err := r.persist(ctx, c); err != nil {
		c.items[previous.ID] = previous
		return nil, err
	}
	return &working, nil
}

func (r *DocumentIssueRepository) Move(ctx context.Context, id string, from, to Collection, mutate MutateFunc) (*domain.Issue, error) {
	source, err := r.collection(from)
	if err != nil {
		return nil, err
	}
	target, err := r.collection(to)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.RLock()
	located, working, ok := r.locate(id)
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if err := mutate(&working); err != nil {
		return nil, err
	}
	if located != source {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Target first: a failure between the two writes duplicates the issue
	// on disk (resolved on load) instead of losing it.
	target.insertAt(-1, working.Clone())
	if err := r.persist(ctx, target); err != nil {
		target.remove(id)
		return nil, err
	}
	source.remove(id)
	// The move is durable once the target is written; a failed source
	// rewrite leaves a stale copy that the next source write or reload drops.
	if err := r.persist(ctx, source); err != nil {
		r.logger.Warn("stale issue left in source document",
			zap.String("issue_id", working.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
	return &working, nil
}

func (r *DocumentIssueRepository) Delete(ctx context.Context, id string, from Collection, check MutateFunc) (*domain.Issue, error) {
	source, err := r.collection(from)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.RLock()
	located, working, ok := r.locate(id)
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if check != nil {
		if err := check(&working); err != nil {
			return nil, err
		}
	}
	if located != source {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	original := source.items[id]
	idx := source.remove(id)
	if err := r.persist(ctx, source); err != nil {
		source.insertAt(idx, original)
		return nil, err
	}
	return &working, nil
}

var _ IssueRepository = (*DocumentIssueRepository)(nil)
