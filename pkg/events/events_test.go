package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivedesk/messaging/pkg/model"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := &model.Message{
		ID:        123456789,
		ChannelID: uuid.New(),
		SenderID:  uuid.New(),
		Kind:      model.MessageText,
		Body:      "hello",
	}

	data, err := json.Marshal(NewMessage(msg))
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeNewMessage, got.Event)
	assert.Equal(t, msg.ChannelID, got.ChannelID)
	require.NotNil(t, got.Message)
	assert.Equal(t, msg.ID, got.Message.ID)
	assert.Equal(t, "hello", got.Message.Body)
}

func TestNotificationsReadCount(t *testing.T) {
	env := NotificationsRead(uuid.New(), uuid.New(), []int64{1, 2, 3})
	assert.Equal(t, TypeNotificationsRead, env.Event)
	assert.Equal(t, 3, env.ReadCount)
	assert.Len(t, env.MessageIDs, 3)
}

func TestTypingEnvelope(t *testing.T) {
	channel, user := uuid.New(), uuid.New()
	env := Typing(channel, user, "Ada", true)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeTyping, got.Event)
	assert.Equal(t, "Ada", got.Name)
	assert.True(t, got.IsTyping)
}
