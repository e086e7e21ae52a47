package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermart/eventflow/event"
)

type stockConfirmed struct {
	event.BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	SKU     string    `json:"sku"`
}

func (stockConfirmed) EventType() string { return "StockConfirmed" }

func TestNewBaseEvent_AssignsIdentity(t *testing.T) {
	before := time.Now().UTC()
	base := event.NewBaseEvent()

	assert.NotEqual(t, uuid.Nil, base.EventID())
	assert.False(t, base.CreationTime().Before(before))
	assert.Equal(t, time.UTC, base.CreationTime().Location())
}

func TestRegistry_DecodeRoundTrip(t *testing.T) {
	// GIVEN
	r := event.NewRegistry()
	event.Register[stockConfirmed](r)

	original := stockConfirmed{
		BaseEvent: event.NewBaseEvent(),
		OrderID:   uuid.New(),
		SKU:       "SKU-123",
	}
	payload, err := json.Marshal(original)
	require.NoError(t, err)

	// WHEN
	decoded, err := r.Decode("StockConfirmed", payload)

	// THEN
	require.NoError(t, err)
	confirmed, ok := decoded.(stockConfirmed)
	require.True(t, ok, "decoded event should be the concrete registered type")
	assert.Equal(t, original.EventID(), confirmed.EventID())
	assert.Equal(t, original.OrderID, confirmed.OrderID)
	assert.Equal(t, original.SKU, confirmed.SKU)
}

func TestRegistry_UnknownTypeName(t *testing.T) {
	r := event.NewRegistry()

	assert.False(t, r.Known("Unregistered"))

	_, err := r.Decode("Unregistered", []byte(`{}`))
	assert.Error(t, err)
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := event.NewRegistry()
	event.Register[stockConfirmed](r)

	assert.Panics(t, func() {
		event.Register[stockConfirmed](r)
	})
}
