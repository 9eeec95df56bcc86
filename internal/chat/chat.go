// Package chat keeps the session's chat history: user messages plus system
// messages announcing uploads. History lives in memory and is owned by the
// server instance that constructs it.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/resona/internal/clock"
)

// DefaultMaxMessages bounds the retained history.
const DefaultMaxMessages = 1000

// ErrEmptyContent rejects messages without content.
var ErrEmptyContent = errors.New("message content is required")

// Type classifies a message.
type Type string

// Message types.
const (
	TypeUser   Type = "user"
	TypeSystem Type = "system"
)

// Message is one chat entry. Files carries upload details for system messages.
type Message struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Files     any       `json:"files,omitempty"`
}

// IDGenerator produces message IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// History is a bounded, concurrency-safe message log.
type History struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
	ids      IDGenerator
	clock    clock.Clock
}

// NewHistory returns an empty History. limit <= 0 uses DefaultMaxMessages.
func NewHistory(ids IDGenerator, clk clock.Clock, limit int) *History {
	if limit <= 0 {
		limit = DefaultMaxMessages
	}
	return &History{limit: limit, ids: ids, clock: clk}
}

// Post appends a message of type t. An empty type defaults to user.
func (h *History) Post(_ context.Context, t Type, content string, files any) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyContent
	}
	if t == "" {
		t = TypeUser
	}
	id, err := h.ids.NewID()
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:        id,
		Type:      t,
		Timestamp: h.clock.Now().UTC(),
		Content:   content,
		Files:     files,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	if over := len(h.messages) - h.limit; over > 0 {
		h.messages = append([]Message(nil), h.messages[over:]...)
	}
	return msg, nil
}

// System appends a system message.
func (h *History) System(ctx context.Context, content string, files any) (Message, error) {
	return h.Post(ctx, TypeSystem, content, files)
}

// Messages returns a copy of the history, oldest first.
func (h *History) Messages(context.Context) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Message{}, h.messages...)
}
