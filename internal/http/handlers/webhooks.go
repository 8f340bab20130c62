// Package handlers holds the HTTP handlers behind the router.
package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/beautydesk/salon-assistant/internal/chatwoot"
	"github.com/beautydesk/salon-assistant/internal/conversation"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// dispatchTimeout bounds the async processing of one webhook event.
const dispatchTimeout = 60 * time.Second

// Pipeline is the conversation processor behind the webhook endpoint.
type Pipeline interface {
	HandleEvent(ctx context.Context, ev conversation.InboundEvent) error
}

// ChatwootWebhookHandler receives Chatwoot webhook posts, verifies their
// signature and hands the normalized event to the pipeline asynchronously.
// Chatwoot retries slow webhooks, so the handler acknowledges before
// processing.
type ChatwootWebhookHandler struct {
	secret   string
	pipeline Pipeline
	logger   *logging.Logger
	// dispatch runs the async stage; tests replace it to run inline.
	dispatch func(fn func())
}

// NewChatwootWebhookHandler builds the handler. An empty secret disables
// signature verification, for local development only.
func NewChatwootWebhookHandler(secret string, pipeline Pipeline, logger *logging.Logger) *ChatwootWebhookHandler {
	if pipeline == nil {
		panic("handlers: nil pipeline")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatwootWebhookHandler{
		secret:   secret,
		pipeline: pipeline,
		logger:   logger,
		dispatch: func(fn func()) { go fn() },
	}
}

// Handle is POST /webhooks/chatwoot.
func (h *ChatwootWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" && !h.validSignature(body, r.Header.Get("X-Chatwoot-Signature")) {
		h.logger.Warn("webhook signature mismatch", "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload chatwoot.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("webhook payload malformed", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	ev := payload.Normalize()
	h.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := h.pipeline.HandleEvent(ctx, ev); err != nil {
			h.logger.Error("webhook event failed",
				"event", string(ev.Kind), "conversation_id", ev.ConversationID, "error", err)
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *ChatwootWebhookHandler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
