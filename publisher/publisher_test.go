package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/evermart/eventflow/event"
	"github.com/evermart/eventflow/eventlog"
	"github.com/evermart/eventflow/infra/postgres"
	"github.com/evermart/eventflow/publisher"
	"github.com/evermart/eventflow/testutil"
)

// MockBus records publish attempts in order and can be told to fail for
// specific event ids.
type MockBus struct {
	Published []uuid.UUID
	FailFor   map[uuid.UUID]error
}

func NewMockBus() *MockBus {
	return &MockBus{FailFor: make(map[uuid.UUID]error)}
}

func (m *MockBus) PublishSerialized(ctx context.Context, eventName string, payload []byte) error {
	var evt testutil.StockConfirmed
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if err, ok := m.FailFor[evt.EventID()]; ok {
		return err
	}
	m.Published = append(m.Published, evt.EventID())
	return nil
}

type PublisherIntegrationSuite struct {
	testutil.DBIntegrationSuite
	db    *postgres.DB
	store *postgres.EventLogStore
}

func TestPublisherIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PublisherIntegrationSuite))
}

func (s *PublisherIntegrationSuite) SetupTest() {
	s.db = &postgres.DB{Pool: s.Pool}
	s.store = postgres.NewEventLogStore(s.db)
	s.TruncateTables("event_log")
}

// captureEvents appends count events for one transaction, in order, and
// returns them.
func (s *PublisherIntegrationSuite) captureEvents(
	pub *publisher.Publisher,
	transactionID uuid.UUID,
	count int,
) []testutil.StockConfirmed {
	events := make([]testutil.StockConfirmed, 0, count)
	err := s.db.WithTransaction(context.Background(), func(txCtx context.Context) error {
		for i := range count {
			evt := testutil.StockConfirmed{
				BaseEvent: event.NewBaseEvent(),
				OrderID:   uuid.New(),
				SKU:       string(rune('A' + i)),
			}
			if err := pub.AddAndSave(txCtx, evt, transactionID); err != nil {
				return err
			}
			events = append(events, evt)
		}
		return nil
	})
	s.Require().NoError(err)
	return events
}

func (s *PublisherIntegrationSuite) stateOf(eventID uuid.UUID) eventlog.State {
	var state string
	err := s.Pool.QueryRow(context.Background(), "SELECT state FROM event_log WHERE event_id = $1", eventID).
		Scan(&state)
	s.Require().NoError(err)
	return eventlog.State(state)
}

func (s *PublisherIntegrationSuite) TestAddAndSave_RequiresTransaction() {
	pub := publisher.New(s.store, NewMockBus())
	evt := testutil.StockConfirmed{BaseEvent: event.NewBaseEvent()}

	err := pub.AddAndSave(context.Background(), evt, uuid.New())
	s.Error(err, "AddAndSave outside a transaction must fail")
}

func (s *PublisherIntegrationSuite) TestPublishPending_DrainsBatchInOrder() {
	// GIVEN
	bus := NewMockBus()
	pub := publisher.New(s.store, bus)
	transactionID := uuid.New()
	events := s.captureEvents(pub, transactionID, 3)

	// WHEN
	err := pub.PublishPending(context.Background(), transactionID)

	// THEN attempts happen in creation order and everything ends Published
	s.Require().NoError(err)
	s.Require().Len(bus.Published, 3)
	for i, evt := range events {
		s.Equal(evt.EventID(), bus.Published[i])
		s.Equal(eventlog.StatePublished, s.stateOf(evt.EventID()))
	}
}

func (s *PublisherIntegrationSuite) TestPublishPending_IsolatesFailuresPerEvent() {
	// GIVEN events A, B, C where publishing B fails
	bus := NewMockBus()
	pub := publisher.New(s.store, bus)
	transactionID := uuid.New()
	events := s.captureEvents(pub, transactionID, 3)
	bus.FailFor[events[1].EventID()] = errors.New("broker unavailable")

	// WHEN
	err := pub.PublishPending(context.Background(), transactionID)

	// THEN the loop is not aborted after B
	s.Require().NoError(err)
	s.Equal(eventlog.StatePublished, s.stateOf(events[0].EventID()))
	s.Equal(eventlog.StatePublishedFailed, s.stateOf(events[1].EventID()))
	s.Equal(eventlog.StatePublished, s.stateOf(events[2].EventID()))
}

func (s *PublisherIntegrationSuite) TestPublishPending_DoesNotTouchOtherTransactions() {
	// GIVEN two transactions' batches
	bus := NewMockBus()
	pub := publisher.New(s.store, bus)
	mine := uuid.New()
	other := uuid.New()
	myEvents := s.captureEvents(pub, mine, 2)
	otherEvents := s.captureEvents(pub, other, 1)

	// WHEN
	s.Require().NoError(pub.PublishPending(context.Background(), mine))

	// THEN
	s.Len(bus.Published, len(myEvents))
	s.Equal(eventlog.StateNotPublished, s.stateOf(otherEvents[0].EventID()))
}

func (s *PublisherIntegrationSuite) TestSweeper_RetriesFailedEvents() {
	// GIVEN a batch whose second event failed to publish once
	bus := NewMockBus()
	pub := publisher.New(s.store, bus)
	transactionID := uuid.New()
	events := s.captureEvents(pub, transactionID, 2)
	failing := events[1].EventID()
	bus.FailFor[failing] = errors.New("broker unavailable")
	s.Require().NoError(pub.PublishPending(context.Background(), transactionID))
	s.Require().Equal(eventlog.StatePublishedFailed, s.stateOf(failing))

	// WHEN the broker recovers and the sweeper runs
	delete(bus.FailFor, failing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := publisher.NewSweeper(pub, s.db, 10, 50*time.Millisecond, time.Minute)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// THEN the failed entry is re-driven to Published
	s.Require().Eventually(func() bool {
		return s.stateOf(failing) == eventlog.StatePublished
	}, 5*time.Second, 100*time.Millisecond, "sweeper should republish the failed event")

	var timesSent int
	err := s.Pool.QueryRow(context.Background(), "SELECT times_sent FROM event_log WHERE event_id = $1", failing).
		Scan(&timesSent)
	s.Require().NoError(err)
	s.Equal(2, timesSent)
}
