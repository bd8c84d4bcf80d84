package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis session state.
func eventsKey(sessionID string) string   { return "session:" + sessionID + ":events" }
func snapshotKey(sessionID string) string { return "session:" + sessionID + ":snapshot" }

// Append pushes one event payload onto the session's log and returns the new
// log length. The log is append-only; entries are never rewritten.
func (c *Client) Append(ctx context.Context, sessionID string, payload json.RawMessage) (int64, error) {
	n, err := c.rdb.RPush(ctx, eventsKey(sessionID), []byte(payload)).Result()
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return n, nil
}

// List returns the full event log for a session in append order.
func (c *Client) List(ctx context.Context, sessionID string) ([]json.RawMessage, error) {
	entries, err := c.rdb.LRange(ctx, eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = json.RawMessage(e)
	}
	return out, nil
}

// Length returns the number of logged events for a session.
func (c *Client) Length(ctx context.Context, sessionID string) (int64, error) {
	n, err := c.rdb.LLen(ctx, eventsKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("event log length: %w", err)
	}
	return n, nil
}

// SetSnapshot caches the latest belief snapshot for quick reads by overlay
// clients that reconnect. The snapshot is derived state; losing it is
// harmless because the log can always be replayed.
func (c *Client) SetSnapshot(ctx context.Context, sessionID string, snapshot json.RawMessage) error {
	return c.rdb.Set(ctx, snapshotKey(sessionID), []byte(snapshot), 0).Err()
}

// GetSnapshot returns the cached belief snapshot, or nil if none is stored.
func (c *Client) GetSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// Delete removes all Redis data for a session (on archive).
func (c *Client) Delete(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, eventsKey(sessionID), snapshotKey(sessionID)).Err()
}
