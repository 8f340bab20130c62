// Package agent produces assistant replies for customer messages using an
// OpenAI chat model grounded in the salon's catalog.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/beautydesk/salon-assistant/internal/booking"
	"github.com/beautydesk/salon-assistant/internal/cache"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// apologyReply goes out when the model is unreachable. The pipeline treats
// it as a normal reply so the customer is never left without an answer.
const apologyReply = "Lo siento, estoy teniendo problemas técnicos en este momento. Por favor intenta de nuevo en unos minutos."

// References loads the catalog data the system prompt is grounded in.
// *booking.Store satisfies it.
type References interface {
	ListActiveServices(ctx context.Context) ([]booking.Service, error)
	SalonSettings(ctx context.Context) (map[string]string, error)
}

// OpenAI is the chat-completion backed conversation agent.
type OpenAI struct {
	client    *openai.Client
	model     string
	salonName string
	cache     *cache.Cache
	refs      References
	refTTL    time.Duration
	logger    *logging.Logger
}

// Config wires an OpenAI agent.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	SalonName string
	Cache     *cache.Cache
	Refs      References
	RefTTL    time.Duration
	Logger    *logging.Logger
}

// New builds the agent. Cache and refs are hard dependencies.
func New(cfg Config) *OpenAI {
	if cfg.Cache == nil {
		panic("agent: nil cache")
	}
	if cfg.Refs == nil {
		panic("agent: nil references")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		salonName: cfg.SalonName,
		cache:     cfg.Cache,
		refs:      cfg.Refs,
		refTTL:    cfg.RefTTL,
		logger:    logger,
	}
}

// Reply answers a (possibly merged) customer message given the rolling
// conversation history. Provider failures degrade to an apology with a nil
// error: from the pipeline's view the conversation was answered.
func (a *OpenAI) Reply(ctx context.Context, message string, history []cache.ContextEntry, clientName string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.systemPrompt(ctx, clientName),
	})
	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == cache.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    msgs,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		a.logger.Error("chat completion failed", "error", err)
		return apologyReply, nil
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		a.logger.Warn("chat completion returned no content")
		return apologyReply, nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// systemPrompt grounds the model in the live catalog. Catalog loads go
// through the reference cache; when both cache and database are down the
// prompt simply omits the catalog rather than failing the reply.
func (a *OpenAI) systemPrompt(ctx context.Context, clientName string) string {
	var b strings.Builder
	name := a.salonName
	if name == "" {
		name = "el salón de belleza"
	}
	fmt.Fprintf(&b, "Eres la asistente virtual de %s, un salón de belleza. ", name)
	b.WriteString("Atiendes por WhatsApp: responde en español, breve y amable. ")
	b.WriteString("Ayudas a agendar, cambiar o cancelar citas y respondes preguntas sobre servicios, precios y horarios. ")
	b.WriteString("Si no sabes algo, dilo con honestidad y ofrece que un agente humano ayude.\n")

	if clientName != "" {
		fmt.Fprintf(&b, "La clienta se llama %s.\n", clientName)
	}

	settings, err := cache.ReadThrough(ctx, a.cache, cache.KeySalonInfo, a.refTTL, a.refs.SalonSettings)
	if err != nil {
		a.logger.Warn("salon settings unavailable for prompt", "error", err)
	} else {
		if v := settings["address"]; v != "" {
			fmt.Fprintf(&b, "Dirección: %s.\n", v)
		}
		if v := settings["schedule"]; v != "" {
			fmt.Fprintf(&b, "Horario: %s.\n", v)
		}
		if v := settings["phone"]; v != "" {
			fmt.Fprintf(&b, "Teléfono: %s.\n", v)
		}
	}

	services, err := cache.ReadThrough(ctx, a.cache, cache.KeyServices, a.refTTL, a.refs.ListActiveServices)
	if err != nil {
		a.logger.Warn("services unavailable for prompt", "error", err)
	} else if len(services) > 0 {
		b.WriteString("Servicios disponibles:\n")
		for _, s := range services {
			fmt.Fprintf(&b, "- %s: $%.2f (%d min)\n", s.Name, s.Price, s.DurationMinutes)
		}
	}
	return b.String()
}
