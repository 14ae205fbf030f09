// Package session keeps per-session conversation state: the ordered message
// log, the last turn's intent and entities, and a free-form context map.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iyulab/siem-analyst/internal/model"
)

// ErrInvalidSession is returned for an empty session id.
var ErrInvalidSession = errors.New("session id is required")

// ErrInvalidPatch is returned when a reserved context key has the wrong type.
var ErrInvalidPatch = errors.New("invalid context patch")

// DefaultHistoryLimit is used when callers pass a non-positive limit to the
// HTTP surface.
const DefaultHistoryLimit = 20

// Reserved patch keys that update the typed context fields.
const (
	KeyLastIntent      = "last_intent"
	KeyLastEntities    = "last_entities"
	KeyLastResultCount = "last_result_count"
)

// Store is the conversation context store. Sessions are created on first
// reference. Mutations of one session are serialized; different sessions do
// not block each other.
type Store interface {
	AddMessage(ctx context.Context, sessionID string, typ model.MessageType, content string, metadata map[string]any) (model.Message, error)
	GetContext(ctx context.Context, sessionID string) (model.ConversationContext, error)
	UpdateContext(ctx context.Context, sessionID string, patch map[string]any) error
	// GetHistory returns up to limit most recent messages, oldest first.
	// A non-positive limit returns the whole log.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
	// CreateSession resets the session to an empty state.
	CreateSession(ctx context.Context, sessionID string) error
	Close() error
}

func newMessage(typ model.MessageType, content string, metadata map[string]any) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// applyPatch merges patch into cc. Reserved keys update the typed fields;
// everything else lands in the free-form map.
func applyPatch(cc *model.ConversationContext, patch map[string]any) error {
	if cc.Values == nil {
		cc.Values = map[string]any{}
	}
	for k, v := range patch {
		switch k {
		case KeyLastIntent:
			switch iv := v.(type) {
			case model.Intent:
				cc.LastIntent = iv
			case string:
				cc.LastIntent = model.Intent(iv)
			default:
				return fmt.Errorf("%w: %s has type %T", ErrInvalidPatch, k, v)
			}
		case KeyLastEntities:
			entities, ok := v.([]model.Entity)
			if !ok {
				return fmt.Errorf("%w: %s has type %T", ErrInvalidPatch, k, v)
			}
			cc.LastEntities = append([]model.Entity(nil), entities...)
		case KeyLastResultCount:
			switch n := v.(type) {
			case int:
				cc.LastResultCount = n
			case float64:
				cc.LastResultCount = int(n)
			default:
				return fmt.Errorf("%w: %s has type %T", ErrInvalidPatch, k, v)
			}
		default:
			cc.Values[k] = v
		}
	}
	return nil
}

func tail(msgs []model.Message, limit int) []model.Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.Message(nil), msgs...)
}
