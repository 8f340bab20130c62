package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautydesk/salon-assistant/internal/conversation"
)

type fakePipeline struct {
	events []conversation.InboundEvent
	err    error
}

func (f *fakePipeline) HandleEvent(_ context.Context, ev conversation.InboundEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func newTestWebhookHandler(secret string, pipeline Pipeline) *ChatwootWebhookHandler {
	h := NewChatwootWebhookHandler(secret, pipeline, nil)
	h.dispatch = func(fn func()) { fn() }
	return h
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookAcceptsSignedPayload(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestWebhookHandler("whsec", pipeline)

	body := []byte(`{
		"event": "message_created",
		"id": 101,
		"content": "hola",
		"message_type": "incoming",
		"sender": {"id": 9, "name": "Ana", "type": "contact"},
		"conversation": {"id": 42, "meta": {"sender": {"id": 9, "name": "Ana", "phone_number": "+52555"}}}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chatwoot", bytes.NewReader(body))
	req.Header.Set("X-Chatwoot-Signature", sign("whsec", body))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pipeline.events, 1)
	assert.Equal(t, conversation.EventMessageCreated, pipeline.events[0].Kind)
	assert.Equal(t, int64(42), pipeline.events[0].ConversationID)
	assert.Equal(t, "hola", pipeline.events[0].Content)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestWebhookHandler("whsec", pipeline)

	body := []byte(`{"event": "message_created"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chatwoot", bytes.NewReader(body))
	req.Header.Set("X-Chatwoot-Signature", "deadbeef")
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pipeline.events)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	h := newTestWebhookHandler("whsec", &fakePipeline{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chatwoot", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestWebhookHandler("", pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chatwoot", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pipeline.events)
}

func TestWebhookAcknowledgesEvenWhenPipelineFails(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("db down")}
	h := newTestWebhookHandler("", pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chatwoot", bytes.NewReader([]byte(`{"event":"message_created"}`)))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
