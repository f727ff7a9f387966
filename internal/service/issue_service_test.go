package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/internal/service/mocks"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type IssueLifecycleSuite struct {
	suite.Suite
	ctx      context.Context
	issues   *repository.DocumentIssueRepository
	users    *repository.DocumentUserRepository
	identity *service.IdentityService
	svc      *service.IssueService
	votes    *service.VotingService
	recorded *recordedEvents
}

func TestIssueLifecycleSuite(t *testing.T) {
	suite.Run(t, new(IssueLifecycleSuite))
}

func (s *IssueLifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.issues = repository.NewMemoryIssueRepository()
	s.users = repository.NewMemoryUserRepository()
	s.recorded = &recordedEvents{}

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, s.recorded.handle)
	}

	s.identity = service.NewIdentityService(service.IdentityDependencies{UserRepo: s.users})
	s.svc = service.NewIssueService(service.IssueDependencies{
		IssueRepo:  s.issues,
		UserRepo:   s.users,
		Handles:    s.identity,
		Dispatcher: dispatcher,
	})
	s.votes = service.NewVotingService(service.VotingDependencies{
		IssueRepo:  s.issues,
		UserRepo:   s.users,
		Dispatcher: dispatcher,
	})
}

func (s *IssueLifecycleSuite) submitPothole() *domain.Issue {
	issue, err := s.svc.Submit(s.ctx, service.SubmitIssueInput{
		Description: "pothole",
		Location:    "Main St",
		Category:    "road",
	})
	s.Require().NoError(err)
	return issue
}

func (s *IssueLifecycleSuite) register(handle string) *domain.User {
	user, err := s.identity.Register(s.ctx, handle)
	s.Require().NoError(err)
	return user
}

func (s *IssueLifecycleSuite) TestSubmitCreatesPendingIssue() {
	issue := s.submitPothole()

	s.NotEmpty(issue.ID)
	s.Equal(domain.IssueStatusPending, issue.Status)
	s.Zero(issue.Upvotes)
	s.Zero(issue.Downvotes)
	s.Empty(issue.VotedBy)
	s.False(issue.CreatedAt.IsZero())

	pending, err := s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(issue.ID, pending[0].ID)
	s.Equal([]events.EventType{events.EventIssueSubmitted}, s.recorded.types())
}

func (s *IssueLifecycleSuite) TestSubmitNormalizesInput() {
	user := s.register("dana")
	image := " uploads/abc.png "
	issue, err := s.svc.Submit(s.ctx, service.SubmitIssueInput{
		Description: "  broken light ",
		Location:    " 5th Ave ",
		Category:    " Lighting ",
		ReporterID:  &user.ID,
		ImageRef:    &image,
	})
	s.Require().NoError(err)
	s.Equal("broken light", issue.Description)
	s.Equal("5th Ave", issue.Location)
	s.Equal("lighting", issue.Category)
	s.Require().NotNil(issue.ImageRef)
	s.Equal("uploads/abc.png", *issue.ImageRef)
	s.Require().NotNil(issue.ReporterID)
	s.Equal(user.ID, *issue.ReporterID)
}

func (s *IssueLifecycleSuite) TestSubmitValidation() {
	cases := map[string]service.SubmitIssueInput{
		"missing description": {Location: "Main St", Category: "road"},
		"missing location":    {Description: "pothole", Category: "road"},
		"blank category":      {Description: "pothole", Location: "Main St", Category: "   "},
	}
	for name, input := range cases {
		s.Run(name, func() {
			_, err := s.svc.Submit(s.ctx, input)
			s.Require().Error(err)
			s.True(errorutil.HasCode(err, errorutil.CodeValidation))
		})
	}

	s.Run("unknown reporter", func() {
		ghost := "ghost"
		_, err := s.svc.Submit(s.ctx, service.SubmitIssueInput{
			Description: "pothole", Location: "Main St", Category: "road", ReporterID: &ghost,
		})
		s.True(errorutil.HasCode(err, errorutil.CodeValidation))
	})

	pending, err := s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *IssueLifecycleSuite) TestApproveAndVoteScenario() {
	issue := s.submitPothole()

	approved, err := s.svc.Moderate(s.ctx, issue.ID, domain.DecisionApprove)
	s.Require().NoError(err)
	s.Equal(domain.IssueStatusApproved, approved.Status)
	s.NotNil(approved.ModeratedAt)

	listed, err := s.svc.ListApproved(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(issue.ID, listed[0].ID)
	s.Zero(listed[0].Upvotes)

	pending, err := s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	alice, bob := s.register("alice"), s.register("bob")
	_, err = s.votes.Vote(s.ctx, issue.ID, alice.ID, domain.VoteUp)
	s.Require().NoError(err)
	voted, err := s.votes.Vote(s.ctx, issue.ID, bob.ID, domain.VoteUp)
	s.Require().NoError(err)
	s.Equal(2, voted.Upvotes)

	_, err = s.votes.Vote(s.ctx, issue.ID, alice.ID, domain.VoteDown)
	s.True(errorutil.HasCode(err, errorutil.CodeDuplicateVote))

	stored, err := s.svc.Get(s.ctx, issue.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.Upvotes)
	s.Zero(stored.Downvotes)
	s.ElementsMatch([]string{alice.ID, bob.ID}, stored.VotedBy)

	s.Equal([]events.EventType{
		events.EventIssueSubmitted,
		events.EventIssueApproved,
		events.EventVoteCast,
		events.EventVoteCast,
	}, s.recorded.types())
}

func (s *IssueLifecycleSuite) TestRejectPurgesIssue() {
	issue := s.submitPothole()

	rejected, err := s.svc.Moderate(s.ctx, issue.ID, domain.DecisionReject)
	s.Require().NoError(err)
	s.Equal(domain.IssueStatusRejected, rejected.Status)

	_, err = s.svc.Get(s.ctx, issue.ID)
	s.True(errorutil.HasCode(err, errorutil.CodeNotFound))

	pending, err := s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
	approved, err := s.svc.ListApproved(s.ctx)
	s.Require().NoError(err)
	s.Empty(approved)

	_, err = s.svc.Moderate(s.ctx, issue.ID, domain.DecisionApprove)
	s.True(errorutil.HasCode(err, errorutil.CodeNotFound))
}

func (s *IssueLifecycleSuite) TestRemoderationIsInvalidTransition() {
	issue := s.submitPothole()
	_, err := s.svc.Moderate(s.ctx, issue.ID, domain.DecisionApprove)
	s.Require().NoError(err)

	for _, decision := range []domain.ModerationDecision{domain.DecisionApprove, domain.DecisionReject} {
		_, err := s.svc.Moderate(s.ctx, issue.ID, decision)
		s.True(errorutil.HasCode(err, errorutil.CodeInvalidTransition), "decision %s", decision)
	}

	approved, err := s.svc.ListApproved(s.ctx)
	s.Require().NoError(err)
	s.Len(approved, 1, "approved listing holds the issue exactly once")
}

func (s *IssueLifecycleSuite) TestModerateErrors() {
	_, err := s.svc.Moderate(s.ctx, "missing", domain.DecisionApprove)
	s.True(errorutil.HasCode(err, errorutil.CodeNotFound))

	issue := s.submitPothole()
	_, err = s.svc.Moderate(s.ctx, issue.ID, domain.ModerationDecision("escalate"))
	s.True(errorutil.HasCode(err, errorutil.CodeValidation))
}

func (s *IssueLifecycleSuite) TestVoteErrors() {
	issue := s.submitPothole()
	user := s.register("voter")

	s.Run("pending issue", func() {
		_, err := s.votes.Vote(s.ctx, issue.ID, user.ID, domain.VoteUp)
		s.True(errorutil.HasCode(err, errorutil.CodeInvalidState))
	})

	_, err := s.svc.Moderate(s.ctx, issue.ID, domain.DecisionApprove)
	s.Require().NoError(err)

	s.Run("unknown issue", func() {
		_, err := s.votes.Vote(s.ctx, "missing", user.ID, domain.VoteUp)
		s.True(errorutil.HasCode(err, errorutil.CodeNotFound))
	})
	s.Run("unknown user", func() {
		_, err := s.votes.Vote(s.ctx, issue.ID, "ghost", domain.VoteUp)
		s.True(errorutil.HasCode(err, errorutil.CodeNotFound))
	})
	s.Run("bad vote type", func() {
		_, err := s.votes.Vote(s.ctx, issue.ID, user.ID, domain.VoteType("sideways"))
		s.True(errorutil.HasCode(err, errorutil.CodeValidation))
	})

	stored, err := s.svc.Get(s.ctx, issue.ID)
	s.Require().NoError(err)
	s.Zero(stored.Upvotes + stored.Downvotes)
}

func (s *IssueLifecycleSuite) TestConcurrentVotesFromDistinctUsers() {
	issue := s.submitPothole()
	_, err := s.svc.Moderate(s.ctx, issue.ID, domain.DecisionApprove)
	s.Require().NoError(err)

	const voters = 50
	users := make([]*domain.User, voters)
	for i := range users {
		users[i] = s.register(fmt.Sprintf("voter-%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i, user := range users {
		vote := domain.VoteUp
		if i%2 == 1 {
			vote = domain.VoteDown
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.votes.Vote(s.ctx, issue.ID, user.ID, vote); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	stored, err := s.svc.Get(s.ctx, issue.ID)
	s.Require().NoError(err)
	s.Equal(voters, stored.Upvotes+stored.Downvotes)
	s.Len(stored.VotedBy, voters)
}

func (s *IssueLifecycleSuite) TestConcurrentVotesFromSameUser() {
	issue := s.submitPothole()
	_, err := s.svc.Moderate(s.ctx, issue.ID, domain.DecisionApprove)
	s.Require().NoError(err)
	user := s.register("eager")

	const attempts = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, duplicates := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.votes.Vote(s.ctx, issue.ID, user.ID, domain.VoteUp)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errorutil.HasCode(err, errorutil.CodeDuplicateVote):
				duplicates++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, accepted)
	s.Equal(attempts-1, duplicates)
	stored, err := s.svc.Get(s.ctx, issue.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.Upvotes)
	s.Equal([]string{user.ID}, stored.VotedBy)
}

func (s *IssueLifecycleSuite) TestConcurrentModerationOfOneIssue() {
	issue := s.submitPothole()

	const moderators = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < moderators; i++ {
		decision := domain.DecisionApprove
		if i%2 == 1 {
			decision = domain.DecisionReject
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.svc.Moderate(s.ctx, issue.ID, decision); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, succeeded, "exactly one moderation decision wins")
}

func (s *IssueLifecycleSuite) TestListApprovedUsesReporterHandle() {
	reporter := s.register("Reporter")
	issue, err := s.svc.Submit(s.ctx, service.SubmitIssueInput{
		Description: "graffiti", Location: "Park", Category: "vandalism", ReporterID: &reporter.ID,
	})
	s.Require().NoError(err)
	anonymous := s.submitPothole()

	for _, id := range []string{issue.ID, anonymous.ID} {
		_, err := s.svc.Moderate(s.ctx, id, domain.DecisionApprove)
		s.Require().NoError(err)
	}

	listed, err := s.svc.ListApproved(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("Reporter", listed[0].ReporterHandle)
	s.Equal(service.AnonymousHandle, listed[1].ReporterHandle)
}

func TestListApprovedDegradesWhenResolverFails(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockHandleResolver(ctrl)

	issues := repository.NewMemoryIssueRepository()
	known, unknown := "user-known", "user-unknown"
	for _, reporter := range []*string{&known, &unknown, &known, nil} {
		issue := &domain.Issue{
			Description: "d", Location: "l", Category: "c",
			ReporterID: reporter,
			Status:     domain.IssueStatusApproved,
			VotedBy:    []string{},
		}
		require.NoError(t, issues.Create(ctx, issue))
	}

	resolver.EXPECT().HandleFor(gomock.Any(), known).Return("kim", nil).Times(1)
	resolver.EXPECT().HandleFor(gomock.Any(), unknown).Return("", errors.New("identity store down")).Times(1)

	svc := service.NewIssueService(service.IssueDependencies{
		IssueRepo: issues,
		UserRepo:  repository.NewMemoryUserRepository(),
		Handles:   resolver,
	})

	listed, err := svc.ListApproved(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, "kim", listed[0].ReporterHandle)
	assert.Equal(t, service.AnonymousHandle, listed[1].ReporterHandle)
	assert.Equal(t, "kim", listed[2].ReporterHandle)
	assert.Equal(t, service.AnonymousHandle, listed[3].ReporterHandle)
}

type failingIssueRepository struct {
	repository.IssueRepository
}

func (failingIssueRepository) ListByStatus(context.Context, domain.IssueStatus) ([]domain.Issue, error) {
	return nil, fmt.Errorf("read approved.json: %w", repository.ErrStorage)
}

func (failingIssueRepository) Get(context.Context, string) (*domain.Issue, error) {
	return nil, repository.ErrStorage
}

func TestStorageFailuresSurfaceAsStorageErrors(t *testing.T) {
	ctx := context.Background()
	svc := service.NewIssueService(service.IssueDependencies{
		IssueRepo: failingIssueRepository{},
		UserRepo:  repository.NewMemoryUserRepository(),
	})

	_, err := svc.ListApproved(ctx)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeStorage))
	_, err = svc.ListPending(ctx)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeStorage))
	_, err = svc.Get(ctx, "any")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeStorage))
	assert.ErrorIs(t, err, repository.ErrStorage)
}
