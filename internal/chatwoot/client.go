package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// Client calls the Chatwoot account API.
type Client struct {
	baseURL    string
	token      string
	accountID  int
	inboxID    int
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a Chatwoot API client scoped to one account and inbox.
func NewClient(baseURL, token string, accountID, inboxID int, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		accountID: accountID,
		inboxID:   inboxID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/api/v1/accounts/%d%s", c.baseURL, c.accountID, path)
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload, dest any) error {
	if c.token == "" {
		return errors.New("chatwoot: api token missing")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("chatwoot: marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("chatwoot: build request: %w", err)
	}
	req.Header.Set("api_access_token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatwoot: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chatwoot: %s %s: status %d: %s", method, rawURL, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if dest != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("chatwoot: decode response: %w", err)
		}
	}
	return nil
}

// MessageRef identifies a message created through the API.
type MessageRef struct {
	ID int64 `json:"id"`
}

// SendMessage posts an outgoing message into a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string) (*MessageRef, error) {
	var ref MessageRef
	err := c.do(ctx, http.MethodPost,
		c.accountURL(fmt.Sprintf("/conversations/%d/messages", conversationID)),
		map[string]any{
			"content":      content,
			"message_type": messageTypeOutgoing,
		}, &ref)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// SendText implements the pipeline's messenger port.
func (c *Client) SendText(ctx context.Context, conversationID int64, text string) error {
	_, err := c.SendMessage(ctx, conversationID, text)
	return err
}

// GetConversation fetches a conversation by id.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*Conversation, error) {
	var conv Conversation
	err := c.do(ctx, http.MethodGet,
		c.accountURL(fmt.Sprintf("/conversations/%d", conversationID)), nil, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversationStatus toggles a conversation between open and resolved.
func (c *Client) UpdateConversationStatus(ctx context.Context, conversationID int64, status string) error {
	return c.do(ctx, http.MethodPost,
		c.accountURL(fmt.Sprintf("/conversations/%d/toggle_status", conversationID)),
		map[string]any{"status": status}, nil)
}

// SearchContacts finds contacts matching a free-text query, usually a phone.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	var result struct {
		Payload []Contact `json:"payload"`
	}
	err := c.do(ctx, http.MethodGet,
		c.accountURL("/contacts/search?q="+url.QueryEscape(query)), nil, &result)
	if err != nil {
		return nil, err
	}
	return result.Payload, nil
}

// CreateContact registers a contact in the configured inbox.
func (c *Client) CreateContact(ctx context.Context, phone, name string) (*Contact, error) {
	var result struct {
		Payload struct {
			Contact Contact `json:"contact"`
		} `json:"payload"`
	}
	err := c.do(ctx, http.MethodPost, c.accountURL("/contacts"),
		map[string]any{
			"inbox_id":     c.inboxID,
			"name":         name,
			"phone_number": phone,
		}, &result)
	if err != nil {
		return nil, err
	}
	return &result.Payload.Contact, nil
}

// SendMessageToPhone delivers a message outside any existing conversation,
// creating the contact and conversation as needed. The reminder job uses it.
func (c *Client) SendMessageToPhone(ctx context.Context, phone, name, content string) error {
	contacts, err := c.SearchContacts(ctx, phone)
	if err != nil {
		return err
	}
	var contact *Contact
	for i := range contacts {
		if contacts[i].PhoneNumber == phone {
			contact = &contacts[i]
			break
		}
	}
	if contact == nil {
		contact, err = c.CreateContact(ctx, phone, name)
		if err != nil {
			return err
		}
	}

	var conv struct {
		ID int64 `json:"id"`
	}
	err = c.do(ctx, http.MethodPost, c.accountURL("/conversations"),
		map[string]any{
			"inbox_id":   c.inboxID,
			"contact_id": contact.ID,
		}, &conv)
	if err != nil {
		return err
	}

	_, err = c.SendMessage(ctx, conv.ID, content)
	return err
}
