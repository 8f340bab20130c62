package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautydesk/salon-assistant/internal/cache"
	"github.com/beautydesk/salon-assistant/internal/stats"
)

type fakeStates struct {
	mu          sync.Mutex
	botActive   bool
	keywords    []string
	pauses      []string
	reactivates int
}

func (f *fakeStates) GetOrCreate(_ context.Context, conversationID, contactID int64, phone, name string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &Record{ID: conversationID, ContactID: contactID, Phone: phone, Name: name, BotActive: f.botActive}, nil
}

func (f *fakeStates) Pause(_ context.Context, _ int64, reason, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses = append(f.pauses, reason)
	return nil
}

func (f *fakeStates) Reactivate(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactivates++
	return nil
}

func (f *fakeStates) ActiveHandoffKeywords(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keywords, nil
}

func (f *fakeStates) pauseReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pauses...)
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMessenger) SendText(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeAgent struct {
	mu       sync.Mutex
	received []string
}

func (f *fakeAgent) Reply(_ context.Context, message string, _ []cache.ContextEntry, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, message)
	return "Claro, con gusto te ayudo.", nil
}

func (f *fakeAgent) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

type fakeStats struct {
	mu     sync.Mutex
	deltas []stats.Delta
}

func (f *fakeStats) Record(_ context.Context, d stats.Delta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, d)
	return nil
}

func (f *fakeStats) sum() stats.Delta {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total stats.Delta
	for _, d := range f.deltas {
		total.MessagesReceived += d.MessagesReceived
		total.BatchesProcessed += d.BatchesProcessed
		total.ResponsesSent += d.ResponsesSent
		total.HandoffsToHuman += d.HandoffsToHuman
		total.RateLimited += d.RateLimited
		total.Errors += d.Errors
	}
	return total
}

type pipelineFixture struct {
	processor *Processor
	cache     *cache.Cache
	states    *fakeStates
	messenger *fakeMessenger
	agent     *fakeAgent
	stats     *fakeStats
}

func setupPipeline(t *testing.T, cfg ProcessorConfig) *pipelineFixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	f := &pipelineFixture{
		cache:     cache.New(client, nil),
		states:    &fakeStates{botActive: true, keywords: []string{"humano", "agente"}},
		messenger: &fakeMessenger{},
		agent:     &fakeAgent{},
		stats:     &fakeStats{},
	}
	f.processor = NewProcessor(cfg, f.cache, f.states, f.messenger, f.agent, f.stats, nil, nil)
	t.Cleanup(f.processor.Close)
	return f
}

func testConfig() ProcessorConfig {
	return ProcessorConfig{
		GroupDelay:      40 * time.Millisecond,
		LockTTL:         5 * time.Second,
		AgentTimeout:    2 * time.Second,
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		PendingTTL:      time.Minute,
		ContextTTL:      time.Hour,
		ContextWindow:   20,
		ReferenceTTL:    time.Hour,
	}
}

func customerMessage(conversationID, messageID int64, content string) InboundEvent {
	return InboundEvent{
		Kind:           EventMessageCreated,
		MessageID:      messageID,
		Content:        content,
		Incoming:       true,
		SenderKind:     SenderContact,
		ConversationID: conversationID,
		ContactID:      7,
		ContactPhone:   "5551234567",
		ContactName:    "Ana",
	}
}

func TestProcessorCoalescesBurstIntoOneReply(t *testing.T) {
	f := setupPipeline(t, testConfig())
	ctx := context.Background()

	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 2, "quiero una cita")))
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 3, "para mañana")))

	assert.Eventually(t, func() bool {
		return len(f.agent.calls()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"hola quiero una cita para mañana"}, f.agent.calls())
	assert.Equal(t, []string{"Claro, con gusto te ayudo."}, f.messenger.messages())

	// The whole exchange lands in the rolling context as one turn.
	history, err := f.cache.ConversationContext(ctx, 42)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, cache.RoleUser, history[0].Role)
	assert.Equal(t, "hola quiero una cita para mañana", history[0].Content)

	total := f.stats.sum()
	assert.Equal(t, 3, total.MessagesReceived)
	assert.Equal(t, 1, total.BatchesProcessed)
	assert.Equal(t, 1, total.ResponsesSent)
}

func TestProcessorSpacedMessagesGetSeparateReplies(t *testing.T) {
	f := setupPipeline(t, testConfig())
	ctx := context.Background()

	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))
	assert.Eventually(t, func() bool {
		return len(f.agent.calls()) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 2, "sigues ahí?")))
	assert.Eventually(t, func() bool {
		return len(f.agent.calls()) == 2
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"hola", "sigues ahí?"}, f.agent.calls())
}

func TestProcessorAbandonsWhenLockHeldElsewhere(t *testing.T) {
	f := setupPipeline(t, testConfig())
	ctx := context.Background()

	// Another replica owns the conversation.
	require.True(t, f.cache.AcquireProcessingLock(ctx, 42, time.Minute))

	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))
	time.Sleep(150 * time.Millisecond)

	assert.Empty(t, f.agent.calls())
	assert.Empty(t, f.messenger.messages())

	// The burst stays buffered for whoever holds the lock.
	pending, err := f.cache.DrainPendingMessages(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestProcessorHandoffKeywordPausesAndAcks(t *testing.T) {
	f := setupPipeline(t, testConfig())
	ctx := context.Background()

	// A buffered message precedes the handoff request.
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 2, "quiero hablar con un humano")))
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, f.agent.calls())
	assert.Equal(t, []string{"Entendido. Un agente humano te atenderá pronto. Por favor espera."}, f.messenger.messages())
	assert.Equal(t, []string{"Cliente solicitó agente humano"}, f.states.pauseReasons())
	assert.Equal(t, 1, f.stats.sum().HandoffsToHuman)

	// Nothing buffered before the handoff may resurface later.
	pending, err := f.cache.DrainPendingMessages(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessorHumanReplyPausesBot(t *testing.T) {
	f := setupPipeline(t, testConfig())
	ctx := context.Background()

	// A buffered customer message is waiting when the operator steps in.
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))

	agentReply := InboundEvent{
		Kind:           EventMessageCreated,
		Incoming:       true,
		SenderKind:     SenderAgent,
		SenderName:     "Laura",
		ConversationID: 42,
		Content:        "Hola, soy Laura, ¿en qué te ayudo?",
	}
	require.NoError(t, f.processor.HandleEvent(ctx, agentReply))
	time.Sleep(150 * time.Millisecond)

	// The pending burst was cancelled along with the timer, buffer included.
	assert.Empty(t, f.agent.calls())
	assert.Equal(t, []string{"Agente humano respondió"}, f.states.pauseReasons())

	pending, err := f.cache.DrainPendingMessages(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessorIgnoresMessagesWhileBotPaused(t *testing.T) {
	f := setupPipeline(t, testConfig())
	f.states.botActive = false
	ctx := context.Background()

	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, f.agent.calls())
	assert.Empty(t, f.messenger.messages())
	assert.Equal(t, 1, f.stats.sum().MessagesReceived)
}

func TestProcessorRateLimitSendsNotice(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 2
	f := setupPipeline(t, cfg)
	ctx := context.Background()

	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 1, "hola")))
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 2, "hola?")))
	require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, 3, "holaaa")))

	assert.Eventually(t, func() bool {
		return len(f.messenger.messages()) >= 2
	}, time.Second, 10*time.Millisecond)

	msgs := f.messenger.messages()
	assert.Contains(t, msgs, "Has enviado muchos mensajes. Por favor espera un momento antes de continuar.")
	assert.Equal(t, 1, f.stats.sum().RateLimited)

	// Only the first two messages reached the agent, merged into one burst.
	assert.Equal(t, []string{"hola hola?"}, f.agent.calls())
}

func TestProcessorRateLimitIsPerCustomer(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 1
	f := setupPipeline(t, cfg)
	ctx := context.Background()

	// Neither webhook carries a contact phone. Each conversation must still
	// get its own quota bucket instead of sharing one placeholder key.
	first := customerMessage(1, 1, "hola")
	first.ContactPhone = ""
	second := customerMessage(2, 2, "buenas tardes")
	second.ContactPhone = ""
	second.ContactID = 8

	require.NoError(t, f.processor.HandleEvent(ctx, first))
	require.NoError(t, f.processor.HandleEvent(ctx, second))

	assert.Eventually(t, func() bool {
		return len(f.agent.calls()) == 2
	}, time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{"hola", "buenas tardes"}, f.agent.calls())
	assert.Zero(t, f.stats.sum().RateLimited)
	assert.NotContains(t, f.messenger.messages(), rateLimitNotice)
}

func TestProcessorResolvedStatusReactivates(t *testing.T) {
	f := setupPipeline(t, testConfig())
	ctx := context.Background()

	require.NoError(t, f.cache.SetConversationContext(ctx, 42, []cache.ContextEntry{
		{Role: cache.RoleUser, Content: "hola"},
	}, time.Hour))
	_, err := f.cache.AppendPendingMessage(ctx, 42, cache.PendingMessage{Content: "sigues ahí?"}, time.Minute)
	require.NoError(t, err)

	resolved := InboundEvent{Kind: EventStatusChanged, ConversationID: 42, NewStatus: StatusResolved}
	require.NoError(t, f.processor.HandleEvent(ctx, resolved))

	assert.Equal(t, 1, f.states.reactivates)
	history, err := f.cache.ConversationContext(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, history)

	pending, err := f.cache.DrainPendingMessages(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessorTrimsContextWindow(t *testing.T) {
	cfg := testConfig()
	cfg.ContextWindow = 4
	f := setupPipeline(t, cfg)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, f.processor.HandleEvent(ctx, customerMessage(42, i, "mensaje")))
		require.Eventually(t, func() bool {
			return len(f.agent.calls()) == int(i)
		}, time.Second, 10*time.Millisecond)
	}

	history, err := f.cache.ConversationContext(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}
