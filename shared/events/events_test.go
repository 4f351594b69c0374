package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/draftea/group-coordinator/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	GroupID string `json:"group_id"`
	Nodes   int    `json:"nodes"`
}

func TestEvent_JSON(t *testing.T) {
	runID := models.GenerateUUID()
	evt := NewEvent(runID, GroupSagaStartedEvent, payload{GroupID: "g", Nodes: 3}).
		WithCorrelationID("corr").
		WithMetadata("group_id", "g")

	body, err := evt.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, back.ID)
	assert.Equal(t, runID, back.AggregateID)
	assert.Equal(t, GroupSagaStartedEvent, back.Topic)
	assert.Equal(t, models.ID("corr"), back.CorrelationID)
	assert.True(t, evt.Timestamp.Equal(back.Timestamp))

	var data payload
	require.NoError(t, back.UnmarshalPayload(&data))
	assert.Equal(t, payload{GroupID: "g", Nodes: 3}, data)

	_, err = FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestEvent_UnmarshalPayload(t *testing.T) {
	evt := NewEvent("run", GroupSagaFailedEvent, payload{GroupID: "g"})

	var same payload
	require.NoError(t, evt.UnmarshalPayload(&same))
	assert.Equal(t, "g", same.GroupID)

	var asMap map[string]any
	require.NoError(t, evt.UnmarshalPayload(&asMap))
	assert.Equal(t, "g", asMap["group_id"])

	raw := NewEvent("run", GroupSagaFailedEvent, json.RawMessage(`{"nodes":2}`))
	var fromRaw payload
	require.NoError(t, raw.UnmarshalPayload(&fromRaw))
	assert.Equal(t, 2, fromRaw.Nodes)

	assert.ErrorIs(t, evt.UnmarshalPayload(same), ErrInvalidReceiver)
	assert.ErrorIs(t, NewEvent("run", GroupSagaFailedEvent, nil).UnmarshalPayload(&same), ErrInvalidPayload)
}

func TestNewTopic(t *testing.T) {
	topic, err := NewTopic("group.saga.started")
	require.NoError(t, err)
	assert.Equal(t, GroupSagaStartedEvent, topic)

	_, err = NewTopic("")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

type recordingPublisher struct {
	published []*Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...*Event) error {
	p.published = append(p.published, evts...)
	return p.err
}

func TestFanOutPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("sns down")}
	healthy := &recordingPublisher{}
	publisher := NewFanOutPublisher(failing, healthy)

	evt := NewEvent("run", GroupSagaCompletedEvent, nil)
	err := publisher.Publish(context.Background(), evt)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sns down")
	assert.Equal(t, []*Event{evt}, failing.published)
	assert.Equal(t, []*Event{evt}, healthy.published)

	assert.NoError(t, publisher.Publish(context.Background()))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), evt))
}

func TestMetadataClone(t *testing.T) {
	m := Metadata{"a": "1"}
	clone := m.Clone()
	clone.Set("b", "2")

	_, ok := m.Get("b")
	assert.False(t, ok)
	value, _ := clone.Get("a")
	assert.Equal(t, "1", value)
}
