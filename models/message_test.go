package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDJSON(t *testing.T) {
	t.Run("server id is a number", func(t *testing.T) {
		data, err := json.Marshal(ServerID(501))
		require.NoError(t, err)
		assert.Equal(t, "501", string(data))
	})

	t.Run("temp id is a string", func(t *testing.T) {
		data, err := json.Marshal(TempID("abc"))
		require.NoError(t, err)
		assert.Equal(t, `"temp-abc"`, string(data))
	})

	t.Run("accepts numeric strings from the API", func(t *testing.T) {
		var id MessageID
		require.NoError(t, json.Unmarshal([]byte(`"42"`), &id))
		assert.Equal(t, ServerID(42), id)
		assert.False(t, id.IsTemp())
	})

	t.Run("accepts temp strings", func(t *testing.T) {
		var id MessageID
		require.NoError(t, json.Unmarshal([]byte(`"temp-1700000000"`), &id))
		assert.True(t, id.IsTemp())
		assert.Equal(t, "temp-1700000000", id.String())
	})

	t.Run("null is zero", func(t *testing.T) {
		var id MessageID
		require.NoError(t, json.Unmarshal([]byte(`null`), &id))
		assert.True(t, id.IsZero())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var id MessageID
		assert.Error(t, json.Unmarshal([]byte(`"abc"`), &id))
		assert.Error(t, json.Unmarshal([]byte(`-3`), &id))
	})
}

func TestTempIDKeepsExistingPrefix(t *testing.T) {
	assert.Equal(t, "temp-x", TempID("temp-x").Temp)
	assert.Equal(t, "temp-x", TempID("x").Temp)
}

func TestParseSenderRole(t *testing.T) {
	tests := []struct {
		input    string
		expected SenderRole
	}{
		{"customer", SenderSelf},
		{"User", SenderSelf},
		{"self", SenderSelf},
		{"store", SenderCounterpart},
		{"ADMIN", SenderCounterpart},
		{"support", SenderCounterpart},
		{"system", SenderSystem},
		{"", SenderUnknown},
		{"courier", SenderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSenderRole(tt.input))
		})
	}
}

func TestMessageResourceToMessage(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var res MessageResource
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 77,
		"message": "Where is my parcel?",
		"sender_type": "customer",
		"image": "disputes/77.png",
		"is_read": true,
		"created_at": "2026-03-01T10:00:00Z"
	}`), &res))

	msg := res.ToMessage()
	assert.Equal(t, ServerID(77), msg.ID)
	assert.Equal(t, "Where is my parcel?", msg.Text)
	assert.Equal(t, "disputes/77.png", msg.AttachmentRef)
	assert.Equal(t, SenderSelf, msg.SenderRole)
	assert.True(t, msg.IsRead)
	assert.True(t, created.Equal(msg.CreatedAt))
	assert.False(t, msg.IsOptimistic)
}

func TestMessageResourceFallbackFields(t *testing.T) {
	res := MessageResource{
		ID:         ServerID(3),
		Text:       "Ticket reply",
		SenderRole: "agent",
		Attachment: "tickets/3.jpg",
	}

	msg := res.ToMessage()
	assert.Equal(t, "Ticket reply", msg.Text)
	assert.Equal(t, "tickets/3.jpg", msg.AttachmentRef)
	assert.Equal(t, SenderCounterpart, msg.SenderRole)
}

func TestMessageHasContent(t *testing.T) {
	assert.True(t, Message{Text: "hi"}.HasContent())
	assert.True(t, Message{AttachmentRef: "a.png"}.HasContent())
	assert.False(t, Message{Text: "   "}.HasContent())
	assert.False(t, Message{}.HasContent())
}

func TestOptimisticMessageJSONOmitsFlagOnceConfirmed(t *testing.T) {
	data, err := json.Marshal(Message{ID: ServerID(501), Text: "Hello", SenderRole: SenderSelf})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "is_optimistic")

	data, err = json.Marshal(Message{ID: TempID("1"), Text: "Hello", IsOptimistic: true, State: DeliveryPending})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"is_optimistic":true`)
	assert.Contains(t, string(data), `"state":"pending"`)
}
