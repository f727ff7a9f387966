package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(IssueStatusPending, IssueStatusApproved))
	assert.True(t, CanTransition(IssueStatusPending, IssueStatusRejected))
	assert.False(t, CanTransition(IssueStatusApproved, IssueStatusPending))
	assert.False(t, CanTransition(IssueStatusApproved, IssueStatusRejected))
	assert.False(t, CanTransition(IssueStatusRejected, IssueStatusApproved))
	assert.False(t, CanTransition(IssueStatusPending, IssueStatusPending))
}

func TestParseModerationDecision(t *testing.T) {
	for raw, want := range map[string]ModerationDecision{
		"approve": DecisionApprove, " Approved ": DecisionApprove,
		"reject": DecisionReject, "REJECTED": DecisionReject,
	} {
		got, ok := ParseModerationDecision(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseModerationDecision("pending")
	assert.False(t, ok)
}

func TestParseVoteType(t *testing.T) {
	vote, ok := ParseVoteType(" UP ")
	assert.True(t, ok)
	assert.Equal(t, VoteUp, vote)
	_, ok = ParseVoteType("1")
	assert.False(t, ok)
}

func TestRecordVoteAndClone(t *testing.T) {
	now := time.Now()
	reporter := "r-1"
	issue := Issue{Status: IssueStatusApproved, ReporterID: &reporter, VotedBy: []string{}}

	assert.True(t, issue.IsVotable())
	issue.RecordVote("u-1", VoteUp, now)
	issue.RecordVote("u-2", VoteDown, now)
	assert.Equal(t, 1, issue.Upvotes)
	assert.Equal(t, 1, issue.Downvotes)
	assert.True(t, issue.HasVoted("u-1"))
	assert.False(t, issue.HasVoted("u-3"))

	clone := issue.Clone()
	clone.VotedBy[0] = "changed"
	*clone.ReporterID = "changed"
	assert.Equal(t, "u-1", issue.VotedBy[0])
	assert.Equal(t, "r-1", *issue.ReporterID)
}

func TestApplyModeration(t *testing.T) {
	now := time.Now()
	issue := Issue{Status: IssueStatusPending}
	issue.ApplyModeration(DecisionReject, now)
	assert.Equal(t, IssueStatusRejected, issue.Status)
	assert.Equal(t, now, *issue.ModeratedAt)
	assert.False(t, issue.IsVotable())
}
