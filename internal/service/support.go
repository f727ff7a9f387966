package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

var tracer = otel.Tracer("github.com/spec-kit/civic-issue-service/internal/service")

// translateRepoError maps repository sentinels onto the client-facing taxonomy.
// Domain errors raised inside a repository callback pass through unchanged.
func translateRepoError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *errorutil.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrNotFound):
		return errorutil.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrConflict):
		return errorutil.NewConflict(resource+" already exists", details)
	default:
		return errorutil.NewStorageError(err)
	}
}

// endSpan records err on span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publisher stamps and publishes events. Handler failures are logged, never returned.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func (p publisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID),
			zap.Error(err))
	}
}

func citizenActor(userID string) events.Actor {
	return events.Actor{
		Type:   domain.SubjectTypeCitizen,
		UserID: &userID,
	}
}

func moderatorActor() events.Actor {
	return events.Actor{Type: domain.SubjectTypeModerator}
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func utcNow() time.Time {
	return time.Now().UTC()
}
