package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beautydesk/salon-assistant/internal/conversation"
	"github.com/beautydesk/salon-assistant/internal/http/handlers"
)

type noopPipeline struct{}

func (noopPipeline) HandleEvent(context.Context, conversation.InboundEvent) error { return nil }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestRouter() http.Handler {
	return New(&Config{
		Webhooks: handlers.NewChatwootWebhookHandler("", noopPipeline{}, nil),
		Health:   handlers.NewHealthHandler(okPinger{}, okPinger{}),
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/chatwoot", strings.NewReader(`{"event":"message_created"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
