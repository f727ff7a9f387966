package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/blob"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

const imageField = "image"

// IssuesHandler exposes submission, listing, moderation and voting endpoints.
type IssuesHandler struct {
	issues *service.IssueService
	votes  *service.VotingService
	blobs  blob.Store
	logger *zap.Logger
}

// NewIssuesHandler constructs handler. blobs may be nil to disable image uploads.
func NewIssuesHandler(issues *service.IssueService, votes *service.VotingService, blobs blob.Store, logger *zap.Logger) *IssuesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssuesHandler{issues: issues, votes: votes, blobs: blobs, logger: logger}
}

// Submit handles POST /api/report. Accepts JSON or a multipart form with an
// optional "image" file. A citizen token, when present, names the reporter.
func (h *IssuesHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	input := service.SubmitIssueInput{
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
	}
	if reporter := strings.TrimSpace(req.ReporterID); reporter != "" {
		input.ReporterID = &reporter
	}
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.User != nil {
		input.ReporterID = &principal.User.ID
	}

	imageRef, err := h.storeImage(c)
	if err != nil {
		return err
	}
	input.ImageRef = imageRef

	issue, err := h.issues.Submit(c.UserContext(), input)
	if err != nil {
		if imageRef != nil {
			if rmErr := h.blobs.Remove(*imageRef); rmErr != nil {
				h.logger.Warn("orphaned upload", zap.String("ref", *imageRef), zap.Error(rmErr))
			}
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": dto.NewIssueResponse(issue),
	})
}

func (h *IssuesHandler) storeImage(c *fiber.Ctx) (*string, error) {
	if h.blobs == nil || !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errorutil.NewValidationError("invalid multipart form", nil)
	}
	files := form.File[imageField]
	if len(files) == 0 {
		return nil, nil
	}

	file, err := files[0].Open()
	if err != nil {
		return nil, errorutil.NewValidationError("unreadable image", nil)
	}
	defer file.Close()

	ref, err := h.blobs.Put(c.UserContext(), files[0].Filename, file)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListPending handles GET /api/issues.
func (h *IssuesHandler) ListPending(c *fiber.Ctx) error {
	issues, err := h.issues.ListPending(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponses(issues)})
}

// ListApproved handles GET /api/approved-issues.
func (h *IssuesHandler) ListApproved(c *fiber.Ctx) error {
	issues, err := h.issues.ListApproved(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEnrichedIssueResponses(issues)})
}

// Get handles GET /api/issues/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	issue, err := h.issues.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// Moderate handles POST /api/moderator/:id.
func (h *IssuesHandler) Moderate(c *fiber.Ctx) error {
	var req dto.ModerateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	decision, ok := domain.ParseModerationDecision(req.Status)
	if !ok {
		return errorutil.NewValidationError("status must be approved or rejected", map[string]any{"status": req.Status})
	}

	issue, err := h.issues.Moderate(c.UserContext(), c.Params("id"), decision)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"message": "Issue " + string(issue.Status),
			"issue":   dto.NewIssueResponse(issue),
		},
	})
}

// Vote handles POST /api/issues/:id/vote for the authenticated citizen.
func (h *IssuesHandler) Vote(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return errorutil.NewUnauthorized("citizen token required")
	}

	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	vote, ok := domain.ParseVoteType(req.VoteType)
	if !ok {
		return errorutil.NewValidationError("vote_type must be up or down", map[string]any{"vote_type": req.VoteType})
	}

	issue, err := h.votes.Vote(c.UserContext(), c.Params("id"), principal.User.ID, vote)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}
