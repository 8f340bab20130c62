package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beautydesk/salon-assistant/internal/cache"
	"github.com/beautydesk/salon-assistant/internal/observability/metrics"
	"github.com/beautydesk/salon-assistant/internal/stats"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// User-facing notices. WhatsApp traffic for this salon is Spanish.
const (
	rateLimitNotice = "Has enviado muchos mensajes. Por favor espera un momento antes de continuar."
	handoffAck      = "Entendido. Un agente humano te atenderá pronto. Por favor espera."

	pauseReasonAgentReplied  = "Agente humano respondió"
	pauseReasonClientRequest = "Cliente solicitó agente humano"
)

// defaultHandoffKeywords backs the guard when neither the cache nor the
// database can serve the configured phrase list.
var defaultHandoffKeywords = []string{"humano", "agente", "persona real", "asesor"}

// States is the durable conversation state the processor depends on.
type States interface {
	GetOrCreate(ctx context.Context, conversationID, contactID int64, phone, name string) (*Record, error)
	Pause(ctx context.Context, conversationID int64, reason, actor string) error
	Reactivate(ctx context.Context, conversationID int64) error
	ActiveHandoffKeywords(ctx context.Context) ([]string, error)
}

// Messenger delivers assistant replies back into the conversation.
type Messenger interface {
	SendText(ctx context.Context, conversationID int64, text string) error
}

// Agent produces an assistant reply for a (possibly merged) customer message.
type Agent interface {
	Reply(ctx context.Context, message string, history []cache.ContextEntry, clientName string) (string, error)
}

// StatsRecorder accumulates daily counters. May be nil.
type StatsRecorder interface {
	Record(ctx context.Context, d stats.Delta) error
}

// ProcessorConfig tunes the coalescing pipeline.
type ProcessorConfig struct {
	// GroupDelay is how long to wait after the last message before the
	// buffered burst is answered as one.
	GroupDelay time.Duration
	// LockTTL bounds how long one worker may hold a conversation.
	LockTTL time.Duration
	// AgentTimeout bounds a single completion. Keep it below LockTTL so a
	// slow completion can never outlive the processing lock.
	AgentTimeout    time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	PendingTTL      time.Duration
	ContextTTL      time.Duration
	ContextWindow   int
	ReferenceTTL    time.Duration
}

// Processor is the per-conversation debounce and response engine. Inbound
// messages buffer in Redis while an in-process timer per conversation is
// rearmed on every arrival; when it finally fires, the whole burst drains
// and is answered with a single assistant reply.
type Processor struct {
	cfg       ProcessorConfig
	cache     *cache.Cache
	states    States
	messenger Messenger
	agent     Agent
	stats     StatsRecorder
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger

	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// NewProcessor creates the pipeline. Cache, states, messenger and agent are
// hard dependencies; stats and metrics may be nil.
func NewProcessor(cfg ProcessorConfig, c *cache.Cache, states States, messenger Messenger, agent Agent, statsRec StatsRecorder, m *metrics.PipelineMetrics, logger *logging.Logger) *Processor {
	if c == nil {
		panic("conversation: nil cache")
	}
	if states == nil {
		panic("conversation: nil states")
	}
	if messenger == nil {
		panic("conversation: nil messenger")
	}
	if agent == nil {
		panic("conversation: nil agent")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		cfg:       cfg,
		cache:     c,
		states:    states,
		messenger: messenger,
		agent:     agent,
		stats:     statsRec,
		metrics:   m,
		logger:    logger,
		timers:    make(map[int64]*time.Timer),
	}
}

// HandleEvent classifies one normalized webhook event and applies its
// pipeline transition. Safe for concurrent use.
func (p *Processor) HandleEvent(ctx context.Context, ev InboundEvent) error {
	cl := Classify(ev)
	switch cl.Action {
	case ActionIgnore:
		p.metrics.ObserveInbound(string(ev.Kind), "ignored")
		p.logger.Debug("event ignored", "conversation_id", ev.ConversationID, "reason", cl.Reason)
		return nil
	case ActionLifecycle:
		return p.handleLifecycle(ctx, ev, cl)
	case ActionPauseForHuman:
		return p.pauseForHuman(ctx, ev, cl)
	default:
		return p.acceptMessage(ctx, ev)
	}
}

func (p *Processor) handleLifecycle(ctx context.Context, ev InboundEvent, cl Classification) error {
	p.metrics.ObserveInbound(string(ev.Kind), "lifecycle")
	if cl.NewStatus == StatusResolved {
		// An operator closed the conversation: the bot takes over again
		// with a clean slate.
		p.cancelTimer(ev.ConversationID)
		if err := p.states.Reactivate(ctx, ev.ConversationID); err != nil {
			p.recordStats(ctx, stats.Delta{Errors: 1})
			return err
		}
		p.discardBuffered(ctx, ev.ConversationID)
		p.logger.Info("conversation reactivated", "conversation_id", ev.ConversationID)
		return nil
	}
	if ev.ConversationID != 0 {
		if _, err := p.states.GetOrCreate(ctx, ev.ConversationID, ev.ContactID, p.contactPhone(ev), ev.ContactName); err != nil {
			p.recordStats(ctx, stats.Delta{Errors: 1})
			return err
		}
	}
	return nil
}

func (p *Processor) pauseForHuman(ctx context.Context, ev InboundEvent, cl Classification) error {
	p.metrics.ObserveInbound(string(ev.Kind), "paused")
	p.cancelTimer(ev.ConversationID)
	if err := p.states.Pause(ctx, ev.ConversationID, pauseReasonAgentReplied, cl.Actor); err != nil {
		p.recordStats(ctx, stats.Delta{Errors: 1})
		return err
	}
	p.discardBuffered(ctx, ev.ConversationID)
	p.recordStats(ctx, stats.Delta{HandoffsToHuman: 1})
	p.logger.Info("bot paused, human agent replied", "conversation_id", ev.ConversationID, "agent", cl.Actor)
	return nil
}

func (p *Processor) acceptMessage(ctx context.Context, ev InboundEvent) error {
	if ev.ConversationID == 0 {
		p.metrics.ObserveInbound(string(ev.Kind), "invalid")
		p.recordStats(ctx, stats.Delta{Errors: 1})
		p.logger.Warn("message without conversation id", "message_id", ev.MessageID)
		return nil
	}
	if strings.TrimSpace(ev.Content) == "" {
		p.metrics.ObserveInbound(string(ev.Kind), "ignored")
		return nil
	}

	rec, err := p.states.GetOrCreate(ctx, ev.ConversationID, ev.ContactID, p.contactPhone(ev), ev.ContactName)
	if err != nil {
		p.recordStats(ctx, stats.Delta{Errors: 1})
		return err
	}
	p.recordStats(ctx, stats.Delta{MessagesReceived: 1})

	if !rec.BotActive {
		p.metrics.ObserveInbound(string(ev.Kind), "bot_paused")
		p.logger.Debug("bot paused, message stored only", "conversation_id", ev.ConversationID)
		return nil
	}

	allowed, count := p.cache.CheckRateLimit(ctx, rec.Phone, p.cfg.RateLimitMax, p.cfg.RateLimitWindow)
	if !allowed {
		p.metrics.ObserveInbound(string(ev.Kind), "rate_limited")
		p.recordStats(ctx, stats.Delta{RateLimited: 1})
		p.logger.Info("rate limit exceeded", "conversation_id", ev.ConversationID, "phone", rec.Phone, "count", count)
		if err := p.messenger.SendText(ctx, ev.ConversationID, rateLimitNotice); err != nil {
			p.logger.Warn("rate limit notice failed", "conversation_id", ev.ConversationID, "error", err)
		}
		return nil
	}

	if MatchesHandoffKeyword(ev.Content, p.handoffKeywords(ctx)) {
		p.metrics.ObserveInbound(string(ev.Kind), "handoff")
		p.cancelTimer(ev.ConversationID)
		if err := p.states.Pause(ctx, ev.ConversationID, pauseReasonClientRequest, rec.Name); err != nil {
			p.recordStats(ctx, stats.Delta{Errors: 1})
			return err
		}
		p.discardBuffered(ctx, ev.ConversationID)
		p.recordStats(ctx, stats.Delta{HandoffsToHuman: 1})
		if err := p.messenger.SendText(ctx, ev.ConversationID, handoffAck); err != nil {
			p.logger.Warn("handoff ack failed", "conversation_id", ev.ConversationID, "error", err)
		}
		p.logger.Info("bot paused, client requested human", "conversation_id", ev.ConversationID)
		return nil
	}

	pending := cache.PendingMessage{
		Content:    ev.Content,
		ReceivedAt: time.Now().UTC(),
		MessageID:  ev.MessageID,
	}
	if _, err := p.cache.AppendPendingMessage(ctx, ev.ConversationID, pending, p.cfg.PendingTTL); err != nil {
		// Buffering is unavailable: answer this message on its own rather
		// than dropping it.
		p.logger.Warn("pending buffer unavailable, responding directly", "conversation_id", ev.ConversationID, "error", err)
		p.respond(ctx, ev.ConversationID, rec.Name, ev.Content, 1)
		return nil
	}

	p.metrics.ObserveInbound(string(ev.Kind), "accepted")
	p.scheduleProcess(ev.ConversationID, rec.Name)
	return nil
}

// scheduleProcess arms (or rearms) the debounce timer for a conversation.
// Every new message pushes the deadline out by the full group delay.
func (p *Processor) scheduleProcess(conversationID int64, clientName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[conversationID]; ok {
		t.Stop()
	}
	p.timers[conversationID] = time.AfterFunc(p.cfg.GroupDelay, func() {
		p.fire(conversationID, clientName)
	})
}

func (p *Processor) cancelTimer(conversationID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[conversationID]; ok {
		t.Stop()
		delete(p.timers, conversationID)
	}
}

// fire drains the burst for one conversation and answers it. Only one
// worker may process a conversation at a time; losing the lock race means
// another replica owns the burst and this firing abandons silently.
func (p *Processor) fire(conversationID int64, clientName string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing conversation", "conversation_id", conversationID, "panic", r)
			p.recordStats(context.Background(), stats.Delta{Errors: 1})
		}
	}()

	p.mu.Lock()
	delete(p.timers, conversationID)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.LockTTL)
	defer cancel()

	if !p.cache.AcquireProcessingLock(ctx, conversationID, p.cfg.LockTTL) {
		p.logger.Debug("processing lock held elsewhere", "conversation_id", conversationID)
		return
	}
	defer p.cache.ReleaseProcessingLock(context.Background(), conversationID)

	msgs, err := p.cache.DrainPendingMessages(ctx, conversationID)
	if err != nil {
		p.logger.Error("drain pending messages failed", "conversation_id", conversationID, "error", err)
		p.recordStats(ctx, stats.Delta{Errors: 1})
		return
	}
	if len(msgs) == 0 {
		return
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	p.respond(ctx, conversationID, clientName, strings.Join(parts, " "), len(msgs))
}

// respond runs the agent over the merged text and delivers the reply,
// then folds the exchange into the rolling context window.
func (p *Processor) respond(ctx context.Context, conversationID int64, clientName, text string, batchSize int) {
	history, err := p.cache.ConversationContext(ctx, conversationID)
	if err != nil {
		p.logger.Warn("load context failed", "conversation_id", conversationID, "error", err)
	}

	agentCtx, cancel := context.WithTimeout(ctx, p.cfg.AgentTimeout)
	defer cancel()

	start := time.Now()
	reply, err := p.agent.Reply(agentCtx, text, history, clientName)
	latency := time.Since(start)
	p.metrics.ObserveAgentLatency(latency.Seconds())
	p.metrics.ObserveBatchSize(batchSize)
	if err != nil {
		p.metrics.ObserveResponse("agent_error")
		p.recordStats(ctx, stats.Delta{Errors: 1})
		p.logger.Error("agent reply failed", "conversation_id", conversationID, "error", err)
		return
	}

	if err := p.messenger.SendText(ctx, conversationID, reply); err != nil {
		p.metrics.ObserveResponse("send_error")
		p.recordStats(ctx, stats.Delta{Errors: 1})
		p.logger.Error("send reply failed", "conversation_id", conversationID, "error", err)
		return
	}
	p.metrics.ObserveResponse("sent")

	history = append(history,
		cache.ContextEntry{Role: cache.RoleUser, Content: text},
		cache.ContextEntry{Role: cache.RoleAssistant, Content: reply},
	)
	if p.cfg.ContextWindow > 0 && len(history) > p.cfg.ContextWindow {
		history = history[len(history)-p.cfg.ContextWindow:]
	}
	if err := p.cache.SetConversationContext(ctx, conversationID, history, p.cfg.ContextTTL); err != nil {
		p.logger.Warn("save context failed", "conversation_id", conversationID, "error", err)
	}

	p.recordStats(ctx, stats.Delta{
		BatchesProcessed: 1,
		ResponsesSent:    1,
		ResponseLatency:  latency,
	})
	p.logger.Info("response sent",
		"conversation_id", conversationID,
		"batch_size", batchSize,
		"latency_ms", latency.Milliseconds())
}

// discardBuffered wipes the conversation's cached context and any pending
// burst. Once a human takes over (or the conversation closes), buffered
// pre-handoff messages must never reach the agent on a later firing.
func (p *Processor) discardBuffered(ctx context.Context, conversationID int64) {
	if err := p.cache.ClearConversationContext(ctx, conversationID); err != nil {
		p.logger.Warn("clear context failed", "conversation_id", conversationID, "error", err)
	}
	if err := p.cache.ClearPendingMessages(ctx, conversationID); err != nil {
		p.logger.Warn("clear pending failed", "conversation_id", conversationID, "error", err)
	}
}

// handoffKeywords serves the guard phrase list through the reference cache,
// falling back to built-in defaults when both cache and database are down.
func (p *Processor) handoffKeywords(ctx context.Context) []string {
	keywords, err := cache.ReadThrough(ctx, p.cache, cache.KeyHandoffKeywords, p.cfg.ReferenceTTL, p.states.ActiveHandoffKeywords)
	if err != nil {
		p.logger.Warn("handoff keywords unavailable, using defaults", "error", err)
		return defaultHandoffKeywords
	}
	if len(keywords) == 0 {
		return defaultHandoffKeywords
	}
	return keywords
}

// contactPhone falls back to a synthetic per-conversation key so rate
// limiting never lumps unidentified customers into one shared bucket.
func (p *Processor) contactPhone(ev InboundEvent) string {
	if ev.ContactPhone != "" {
		return ev.ContactPhone
	}
	return fmt.Sprintf("unknown_%d", ev.ConversationID)
}

func (p *Processor) recordStats(ctx context.Context, d stats.Delta) {
	if p.stats == nil {
		return
	}
	if err := p.stats.Record(ctx, d); err != nil {
		p.logger.Warn("record stats failed", "error", err)
	}
}

// Close stops all pending debounce timers. Buffered messages stay in Redis
// until their TTL; a restarted instance answers them on the next arrival.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
