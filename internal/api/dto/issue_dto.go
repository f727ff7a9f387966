package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
)

// SubmitIssueRequest is the JSON or multipart form body of POST /api/report.
type SubmitIssueRequest struct {
	Description string `json:"description" form:"description"`
	Location    string `json:"location" form:"location"`
	Category    string `json:"category" form:"category"`
	ReporterID  string `json:"reporter_id" form:"reporter_id"`
}

// ModerateRequest carries a moderation decision.
type ModerateRequest struct {
	Status string `json:"status" form:"status"`
}

// VoteRequest carries a vote direction.
type VoteRequest struct {
	VoteType string `json:"vote_type" form:"vote_type"`
}

// IssueResponse is the wire form of an issue.
type IssueResponse struct {
	ID             string             `json:"id"`
	Description    string             `json:"description"`
	Location       string             `json:"location"`
	Category       string             `json:"category"`
	ReporterID     *string            `json:"reporter_id,omitempty"`
	ReporterHandle string             `json:"reporter_handle,omitempty"`
	Image          *string            `json:"image"`
	Status         domain.IssueStatus `json:"status"`
	Upvotes        int                `json:"upvotes"`
	Downvotes      int                `json:"downvotes"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	ModeratedAt    *time.Time         `json:"moderated_at,omitempty"`
}

// NewIssueResponse maps a domain issue. Voter ids are not exposed.
func NewIssueResponse(issue *domain.Issue) IssueResponse {
	return IssueResponse{
		ID:          issue.ID,
		Description: issue.Description,
		Location:    issue.Location,
		Category:    issue.Category,
		ReporterID:  issue.ReporterID,
		Image:       issue.ImageRef,
		Status:      issue.Status,
		Upvotes:     issue.Upvotes,
		Downvotes:   issue.Downvotes,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
		ModeratedAt: issue.ModeratedAt,
	}
}

// NewIssueResponses maps a listing.
func NewIssueResponses(issues []domain.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		out = append(out, NewIssueResponse(&issues[i]))
	}
	return out
}

// NewEnrichedIssueResponses maps the public approved listing.
func NewEnrichedIssueResponses(issues []service.EnrichedIssue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		resp := NewIssueResponse(&issues[i].Issue)
		resp.ReporterHandle = issues[i].ReporterHandle
		out = append(out, resp)
	}
	return out
}
