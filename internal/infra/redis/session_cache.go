package redis

import (
	"context"
	"encoding/json"
	"time"

	"meddoc-assistant/internal/domain/model"
)

// SessionCache keeps the active chat session hot so correlation lookups do
// not hit Postgres on every send.
type SessionCache struct {
	client *Client
	ttl    time.Duration
}

func NewSessionCache(client *Client, ttl time.Duration) *SessionCache {
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *SessionCache) StoreSession(ctx context.Context, session *model.ChatSession) error {
	key := "chat_session:" + session.ID
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

func (c *SessionCache) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	key := "chat_session:" + sessionID
	data, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var session model.ChatSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, "chat_session:"+sessionID)
}

func (c *SessionCache) ExtendSession(ctx context.Context, sessionID string) error {
	return c.client.Expire(ctx, "chat_session:"+sessionID, c.ttl)
}
