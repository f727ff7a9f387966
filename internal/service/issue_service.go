package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// AnonymousHandle is displayed when a reporter cannot be resolved.
const AnonymousHandle = "anonymous"

const defaultEnrichConcurrency = 8

//go:generate mockgen -source=issue_service.go -destination=mocks/mocks.go -package=mocks HandleResolver

// HandleResolver resolves a user id to a display handle.
type HandleResolver interface {
	HandleFor(ctx context.Context, userID string) (string, error)
}

// IssueService owns the issue lifecycle: submission, moderation and listing.
type IssueService struct {
	issues            repository.IssueRepository
	users             repository.UserRepository
	handles           HandleResolver
	events            publisher
	logger            *zap.Logger
	now               func() time.Time
	enrichConcurrency int
}

// IssueDependencies bundles collaborators for IssueService.
type IssueDependencies struct {
	IssueRepo         repository.IssueRepository
	UserRepo          repository.UserRepository
	Handles           HandleResolver
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	Clock             func() time.Time
	EnrichConcurrency int
}

// SubmitIssueInput describes a new report.
type SubmitIssueInput struct {
	Description string
	Location    string
	Category    string
	ReporterID  *string
	ImageRef    *string
}

// EnrichedIssue is an approved issue with its reporter's display handle.
type EnrichedIssue struct {
	domain.Issue
	ReporterHandle string
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	now := deps.Clock
	if now == nil {
		now = utcNow
	}
	logger := nopIfNil(deps.Logger)
	concurrency := deps.EnrichConcurrency
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	return &IssueService{
		issues:            deps.IssueRepo,
		users:             deps.UserRepo,
		handles:           deps.Handles,
		events:            publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:            logger,
		now:               now,
		enrichConcurrency: concurrency,
	}
}

// Submit validates and stores a new pending issue.
func (s *IssueService) Submit(ctx context.Context, input SubmitIssueInput) (issue *domain.Issue, err error) {
	ctx, span := tracer.Start(ctx, "IssueService.Submit")
	defer func() { endSpan(span, err) }()

	description := strings.TrimSpace(input.Description)
	location := strings.TrimSpace(input.Location)
	category := strings.ToLower(strings.TrimSpace(input.Category))

	var missing []string
	if description == "" {
		missing = append(missing, "description")
	}
	if location == "" {
		missing = append(missing, "location")
	}
	if category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return nil, errorutil.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	reporterID := trimmedOrNil(input.ReporterID)
	if reporterID != nil {
		if _, err := s.users.GetByID(ctx, *reporterID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, errorutil.NewValidationError("reporter does not exist", map[string]any{"reporter_id": *reporterID})
			}
			return nil, translateRepoError(err, "user", nil)
		}
	}

	now := s.now()
	issue = &domain.Issue{
		Description: description,
		Location:    location,
		Category:    category,
		ReporterID:  reporterID,
		ImageRef:    trimmedOrNil(input.ImageRef),
		Status:      domain.IssueStatusPending,
		VotedBy:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, translateRepoError(err, "issue", nil)
	}
	span.SetAttributes(attribute.String("issue.id", issue.ID))

	actor := events.Actor{}
	if reporterID != nil {
		actor = citizenActor(*reporterID)
	}
	s.events.publish(ctx, events.Event{
		Type:    events.EventIssueSubmitted,
		IssueID: issue.ID,
		Actor:   actor,
		Payload: events.IssueSubmittedPayload{
			Category: issue.Category,
			Location: issue.Location,
			HasImage: issue.ImageRef != nil,
		},
	})
	return issue, nil
}

// Moderate approves or rejects a pending issue. Approval moves it to the
// approved collection; rejection deletes it. Issues that are no longer
// pending fail with INVALID_TRANSITION.
func (s *IssueService) Moderate(ctx context.Context, issueID string, decision domain.ModerationDecision) (issue *domain.Issue, err error) {
	ctx, span := tracer.Start(ctx, "IssueService.Moderate")
	span.SetAttributes(attribute.String("issue.id", issueID), attribute.String("decision", string(decision)))
	defer func() { endSpan(span, err) }()

	if decision != domain.DecisionApprove && decision != domain.DecisionReject {
		return nil, errorutil.NewValidationError("decision must be approve or reject", map[string]any{"decision": decision})
	}

	details := map[string]any{"issue_id": issueID}
	target := decision.TargetStatus()
	var previous domain.IssueStatus
	transition := func(current *domain.Issue) error {
		if !domain.CanTransition(current.Status, target) {
			return errorutil.NewInvalidTransition(
				fmt.Sprintf("issue is %s and cannot become %s", current.Status, target),
				map[string]any{"issue_id": issueID, "status": current.Status},
			)
		}
		previous = current.Status
		current.ApplyModeration(decision, s.now())
		return nil
	}

	eventType := events.EventIssueApproved
	if decision == domain.DecisionApprove {
		issue, err = s.issues.Move(ctx, issueID, repository.CollectionPending, repository.CollectionApproved, transition)
	} else {
		eventType = events.EventIssueRejected
		issue, err = s.issues.Delete(ctx, issueID, repository.CollectionPending, transition)
	}
	if err != nil {
		return nil, translateRepoError(err, "issue", details)
	}

	s.logger.Info("issue moderated",
		zap.String("issue_id", issueID),
		zap.String("status", string(issue.Status)))
	s.events.publish(ctx, events.Event{
		Type:    eventType,
		IssueID: issueID,
		Actor:   moderatorActor(),
		Payload: events.IssueModeratedPayload{
			OldStatus: previous,
			NewStatus: issue.Status,
		},
	})
	return issue, nil
}

// Get returns an active issue from any collection.
func (s *IssueService) Get(ctx context.Context, issueID string) (*domain.Issue, error) {
	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return nil, translateRepoError(err, "issue", map[string]any{"issue_id": issueID})
	}
	return issue, nil
}

// ListPending returns pending issues in submission order.
func (s *IssueService) ListPending(ctx context.Context) ([]domain.Issue, error) {
	issues, err := s.issues.ListByStatus(ctx, domain.IssueStatusPending)
	if err != nil {
		return nil, translateRepoError(err, "issue", nil)
	}
	return issues, nil
}

// ListApproved returns approved issues in approval order, each with the
// reporter's handle. Unresolvable reporters display as AnonymousHandle.
func (s *IssueService) ListApproved(ctx context.Context) (out []EnrichedIssue, err error) {
	ctx, span := tracer.Start(ctx, "IssueService.ListApproved")
	defer func() { endSpan(span, err) }()

	issues, err := s.issues.ListByStatus(ctx, domain.IssueStatusApproved)
	if err != nil {
		return nil, translateRepoError(err, "issue", nil)
	}

	handles := s.resolveHandles(ctx, issues)
	out = make([]EnrichedIssue, 0, len(issues))
	for _, issue := range issues {
		handle := AnonymousHandle
		if issue.ReporterID != nil {
			if resolved, ok := handles[*issue.ReporterID]; ok {
				handle = resolved
			}
		}
		out = append(out, EnrichedIssue{Issue: issue, ReporterHandle: handle})
	}
	span.SetAttributes(attribute.Int("issues.count", len(out)))
	return out, nil
}

// resolveHandles looks each distinct reporter up once, with bounded parallelism.
// Failed lookups are left out of the result.
func (s *IssueService) resolveHandles(ctx context.Context, issues []domain.Issue) map[string]string {
	var reporters []string
	seen := map[string]bool{}
	for _, issue := range issues {
		if issue.ReporterID == nil || seen[*issue.ReporterID] {
			continue
		}
		seen[*issue.ReporterID] = true
		reporters = append(reporters, *issue.ReporterID)
	}
	if len(reporters) == 0 || s.handles == nil {
		return nil
	}

	resolved := make([]string, len(reporters))
	var g errgroup.Group
	g.SetLimit(s.enrichConcurrency)
	for i, reporterID := range reporters {
		g.Go(func() error {
			handle, err := s.handles.HandleFor(ctx, reporterID)
			if err != nil || strings.TrimSpace(handle) == "" {
				s.logger.Warn("reporter handle unresolved",
					zap.String("reporter_id", reporterID),
					zap.Error(err))
				return nil
			}
			resolved[i] = handle
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(reporters))
	for i, reporterID := range reporters {
		if resolved[i] != "" {
			out[reporterID] = resolved[i]
		}
	}
	return out
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
