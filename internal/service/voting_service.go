package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// VotingService accepts at most one vote per user per approved issue.
type VotingService struct {
	issues repository.IssueRepository
	users  repository.UserRepository
	events publisher
	logger *zap.Logger
	now    func() time.Time
}

// VotingDependencies bundles collaborators for VotingService.
type VotingDependencies struct {
	IssueRepo  repository.IssueRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewVotingService constructs the service.
func NewVotingService(deps VotingDependencies) *VotingService {
	now := deps.Clock
	if now == nil {
		now = utcNow
	}
	logger := nopIfNil(deps.Logger)
	return &VotingService{
		issues: deps.IssueRepo,
		users:  deps.UserRepo,
		events: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger: logger,
		now:    now,
	}
}

// Vote records userID's vote on issueID. The approval check, the duplicate
// check and the tally increment run under the issue's lock.
func (s *VotingService) Vote(ctx context.Context, issueID, userID string, vote domain.VoteType) (issue *domain.Issue, err error) {
	ctx, span := tracer.Start(ctx, "VotingService.Vote")
	span.SetAttributes(attribute.String("issue.id", issueID), attribute.String("vote.type", string(vote)))
	defer func() { endSpan(span, err) }()

	if vote != domain.VoteUp && vote != domain.VoteDown {
		return nil, errorutil.NewValidationError("vote_type must be up or down", map[string]any{"vote_type": vote})
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, translateRepoError(err, "user", map[string]any{"user_id": userID})
	}

	details := map[string]any{"issue_id": issueID}
	issue, err = s.issues.Update(ctx, issueID, func(current *domain.Issue) error {
		if !current.IsVotable() {
			return errorutil.NewInvalidState("votes are only accepted on approved issues",
				map[string]any{"issue_id": issueID, "status": current.Status})
		}
		if current.HasVoted(userID) {
			return errorutil.NewDuplicateVote(map[string]any{"issue_id": issueID, "user_id": userID})
		}
		current.RecordVote(userID, vote, s.now())
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err, "issue", details)
	}

	s.events.publish(ctx, events.Event{
		Type:    events.EventVoteCast,
		IssueID: issueID,
		Actor:   citizenActor(userID),
		Payload: events.VoteCastPayload{
			VoteType:  vote,
			Upvotes:   issue.Upvotes,
			Downvotes: issue.Downvotes,
		},
	})
	return issue, nil
}
