package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/events"
)

// IssueEventRecorder counts domain events.
type IssueEventRecorder interface {
	RecordIssueEvent(eventType string)
}

// NotificationService logs domain events and feeds them to metrics.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	recorder   IssueEventRecorder
}

// NewNotificationService creates the service. recorder may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, recorder IssueEventRecorder) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     nopIfNil(logger),
		recorder:   recorder,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueSubmitted, n.handleIssueSubmitted)
	n.dispatcher.Subscribe(events.EventIssueApproved, n.handleIssueModerated)
	n.dispatcher.Subscribe(events.EventIssueRejected, n.handleIssueModerated)
	n.dispatcher.Subscribe(events.EventVoteCast, n.handleVoteCast)
}

func (n *NotificationService) handleIssueSubmitted(_ context.Context, event events.Event) error {
	n.logger.Info("IssueSubmitted", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.record(event)
	return nil
}

func (n *NotificationService) handleIssueModerated(_ context.Context, event events.Event) error {
	n.logger.Info("IssueModerated",
		zap.String("issue_id", event.IssueID),
		zap.String("event_type", string(event.Type)),
		zap.Any("payload", event.Payload))
	n.record(event)
	return nil
}

func (n *NotificationService) handleVoteCast(_ context.Context, event events.Event) error {
	n.logger.Debug("VoteCast", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.record(event)
	return nil
}

func (n *NotificationService) record(event events.Event) {
	if n.recorder == nil {
		return
	}
	n.recorder.RecordIssueEvent(string(event.Type))
}
