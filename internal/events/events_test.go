package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

func TestDispatcherInvokesAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventIssueApproved, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventIssueApproved, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventVoteCast, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventIssueApproved})
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	p.mu.Unlock()
	promise(r, p.err)
}

func TestKafkaForwarderProducesKeyedRecords(t *testing.T) {
	producer := &fakeProducer{}
	forwarder := NewKafkaForwarder(producer, "civic.issue-events", nil)
	d := NewInMemoryDispatcher()
	forwarder.Register(d)

	event := Event{
		ID:      "evt-1",
		Type:    EventVoteCast,
		IssueID: "issue-1",
		Payload: VoteCastPayload{VoteType: domain.VoteUp, Upvotes: 1},
	}
	require.NoError(t, d.Publish(context.Background(), event))

	require.Len(t, producer.records, 1)
	record := producer.records[0]
	assert.Equal(t, "civic.issue-events", record.Topic)
	assert.Equal(t, []byte("issue-1"), record.Key)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, "vote_cast", decoded["type"])
}

func TestKafkaForwarderSwallowsDeliveryFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	forwarder := NewKafkaForwarder(producer, "topic", nil)

	err := forwarder.Handle(context.Background(), Event{ID: "e", Type: EventIssueSubmitted, IssueID: "i"})
	require.NoError(t, err)
	assert.Len(t, producer.records, 1)
}

func TestNewKafkaClientRequiresBrokers(t *testing.T) {
	_, err := NewKafkaClient(nil, "topic")
	require.Error(t, err)
}

func TestDispatcherSurvivesPanickingHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false
	d.Subscribe(EventIssueSubmitted, func(context.Context, Event) error { panic("boom") })
	d.Subscribe(EventIssueSubmitted, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventIssueSubmitted})
	require.ErrorContains(t, err, "panicked")
	assert.True(t, reached)
}
