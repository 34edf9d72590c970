package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocumentUpdate(t *testing.T) {
	raw := []byte(`{"type":"documentUpdate","documentId":"doc1","data":{"content":"hello world"}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeDocumentUpdate, msg.Type)
	assert.Equal(t, "doc1", msg.DocumentID)
	require.NotNil(t, msg.Document)
	assert.Equal(t, "hello world", msg.Document.Content)
	assert.Nil(t, msg.Chat)
	assert.Nil(t, msg.Presence)
}

func TestDecodeDocumentUpdateEmptyContent(t *testing.T) {
	// Empty content is a legal snapshot; a missing content field is not.
	msg, err := Decode([]byte(`{"type":"documentUpdate","documentId":"doc1","data":{"content":""}}`))
	require.NoError(t, err)
	assert.Equal(t, "", msg.Document.Content)

	_, err = Decode([]byte(`{"type":"documentUpdate","documentId":"doc1","data":{}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeChatMessage(t *testing.T) {
	raw := []byte(`{"type":"chatMessage","documentId":"doc1","data":{"id":"m1","userId":"u1","username":"ada","message":"hi","createdAt":"2026-01-02T15:04:05Z"}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Chat)
	assert.Equal(t, "u1", msg.Chat.UserID)
	assert.Equal(t, "ada", msg.Chat.Username)
	assert.Equal(t, "hi", msg.Chat.Message)
	assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), msg.Chat.CreatedAt)
}

func TestDecodePresence(t *testing.T) {
	raw := []byte(`{"type":"userPresence","documentId":"doc1","data":{"userId":"u1","username":"ada","action":"join","currentActivity":{"type":"editing","location":"section-2","timestamp":"2026-01-02T15:04:05Z"}}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Presence)
	assert.Equal(t, ActionJoin, msg.Presence.Action)
	require.NotNil(t, msg.Presence.CurrentActivity)
	assert.Equal(t, "editing", msg.Presence.CurrentActivity.Type)
	assert.Equal(t, "section-2", msg.Presence.CurrentActivity.Location)
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{{{`, ErrMalformed},
		{"json scalar", `42`, ErrMalformed},
		{"missing type", `{"documentId":"doc1","data":{}}`, ErrUnknownType},
		{"unknown type", `{"type":"cursorMove","documentId":"doc1","data":{}}`, ErrUnknownType},
		{"missing documentId", `{"type":"chatMessage","data":{"userId":"u1","username":"a","message":"m"}}`, ErrMissingDocument},
		{"empty documentId", `{"type":"chatMessage","documentId":"","data":{"userId":"u1","username":"a","message":"m"}}`, ErrMissingDocument},
		{"chat missing message", `{"type":"chatMessage","documentId":"doc1","data":{"userId":"u1","username":"a"}}`, ErrInvalidPayload},
		{"chat missing userId", `{"type":"chatMessage","documentId":"doc1","data":{"username":"a","message":"m"}}`, ErrInvalidPayload},
		{"chat data wrong shape", `{"type":"chatMessage","documentId":"doc1","data":"nope"}`, ErrInvalidPayload},
		{"presence missing userId", `{"type":"userPresence","documentId":"doc1","data":{"username":"a","status":"online"}}`, ErrInvalidPayload},
		{"presence without status or action", `{"type":"userPresence","documentId":"doc1","data":{"userId":"u1","username":"a"}}`, ErrInvalidPayload},
		{"document data missing", `{"type":"documentUpdate","documentId":"doc1"}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			assert.Nil(t, msg, "rejected frames must not yield a partial message")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	payload, err := Encode(TypeChatMessage, "doc1", &ChatMessage{
		ID:       "m1",
		UserID:   "u1",
		Username: "ada",
		Message:  "hi",
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, TypeChatMessage, env.Type)
	assert.Equal(t, "doc1", env.DocumentID)

	msg, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Chat.Message)
}
