package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
)

const maxWatchRetries = 5

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires idle sessions; zero keeps them forever.
	TTL time.Duration
}

// RedisStore persists sessions in Redis so several analyst processes can
// share them. Each session is a message list plus a JSON context document.
// Writers in one process are serialized by a per-session lock; across
// processes, context updates use optimistic WATCH transactions.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	locks  *keyedMutex
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(client, opts.KeyPrefix, opts.TTL, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "analyst:session:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		locks:  newKeyedMutex(),
		logger: observability.OrNop(logger).Named("session"),
	}
}

func (s *RedisStore) messagesKey(id string) string { return s.prefix + id + ":messages" }
func (s *RedisStore) contextKey(id string) string  { return s.prefix + id + ":context" }

// AddMessage implements Store.
func (s *RedisStore) AddMessage(ctx context.Context, sessionID string, typ model.MessageType, content string, metadata map[string]any) (model.Message, error) {
	if sessionID == "" {
		return model.Message{}, ErrInvalidSession
	}
	msg := newMessage(typ, content, metadata)
	data, err := json.Marshal(msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("encode message: %w", err)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.messagesKey(sessionID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.messagesKey(sessionID), s.ttl)
		pipe.Expire(ctx, s.contextKey(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Message{}, fmt.Errorf("append message to %s: %w", sessionID, err)
	}
	return msg, nil
}

// GetContext implements Store.
func (s *RedisStore) GetContext(ctx context.Context, sessionID string) (model.ConversationContext, error) {
	if sessionID == "" {
		return model.ConversationContext{}, ErrInvalidSession
	}
	cc, err := s.readContext(ctx, s.client, sessionID)
	if err != nil {
		return model.ConversationContext{}, err
	}
	n, err := s.client.LLen(ctx, s.messagesKey(sessionID)).Result()
	if err != nil {
		return model.ConversationContext{}, fmt.Errorf("count messages for %s: %w", sessionID, err)
	}
	cc.MessageCount = int(n)
	return cc, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) readContext(ctx context.Context, c getter, sessionID string) (model.ConversationContext, error) {
	cc := model.ConversationContext{SessionID: sessionID, Values: map[string]any{}}
	data, err := c.Get(ctx, s.contextKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cc, nil
	}
	if err != nil {
		return cc, fmt.Errorf("read context for %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(data, &cc); err != nil {
		return cc, fmt.Errorf("decode context for %s: %w", sessionID, err)
	}
	if cc.Values == nil {
		cc.Values = map[string]any{}
	}
	return cc, nil
}

// UpdateContext implements Store.
func (s *RedisStore) UpdateContext(ctx context.Context, sessionID string, patch map[string]any) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	key := s.contextKey(sessionID)
	update := func(tx *redis.Tx) error {
		cc, err := s.readContext(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := applyPatch(&cc, patch); err != nil {
			return err
		}
		data, err := json.Marshal(cc)
		if err != nil {
			return fmt.Errorf("encode context: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("context update conflict, retrying", zap.String("session", sessionID), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("update context for %s: too many concurrent writers", sessionID)
}

// GetHistory implements Store.
func (s *RedisStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", sessionID, err)
	}
	msgs := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			s.logger.Warn("skipping undecodable message", zap.String("session", sessionID), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// CreateSession implements Store.
func (s *RedisStore) CreateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	if err := s.client.Del(ctx, s.messagesKey(sessionID), s.contextKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.client.Close() }
