// Package relay carries patch batches between sessions on the same document
// over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/session"
)

// Message is the wire form of one batch.
type Message struct {
	Origin   string        `json:"origin"`
	Patches  patch.List    `json:"patches"`
	Snapshot *wireSnapshot `json:"snapshot,omitempty"`
}

type wireSnapshot struct {
	Blocks   json.RawMessage `json:"blocks"`
	Revision int64           `json:"revision"`
}

type Relay struct {
	client *redis.Client
	prefix string
	types  pt.Types
}

// New connects to redisURL and checks the connection.
func New(redisURL string, types pt.Types) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, types), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, types pt.Types) *Relay {
	return &Relay{client: client, prefix: "pte:doc:", types: types}
}

func (r *Relay) channel(documentID string) string {
	return r.prefix + documentID
}

// Publish sends a batch for documentID. origin is the publishing session id.
func (r *Relay) Publish(ctx context.Context, documentID, origin string, patches []patch.Patch, snap *session.Snapshot) error {
	msg := Message{Origin: origin, Patches: patch.List(patches)}
	if snap != nil {
		blocks, err := pt.MarshalBlocks(snap.Blocks)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		msg.Snapshot = &wireSnapshot{Blocks: blocks, Revision: snap.Revision}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(documentID), data).Err(); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// Source returns a session.Source for documentID. Batches published by
// origin arrive with Remote unset.
func (r *Relay) Source(documentID, origin string) session.Source {
	return &source{relay: r, documentID: documentID, origin: origin}
}

type source struct {
	relay      *Relay
	documentID string
	origin     string
}

// Subscribe returns once the subscription is live. The channel closes when
// ctx is done.
func (s *source) Subscribe(ctx context.Context) (<-chan session.Batch, error) {
	ps := s.relay.client.Subscribe(ctx, s.relay.channel(s.documentID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.documentID, err)
	}
	out := make(chan session.Batch)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				batch, err := s.relay.decode([]byte(m.Payload), s.origin)
				if err != nil {
					log.Printf("relay: %s: dropped message: %v", s.documentID, err)
					continue
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Relay) decode(data []byte, origin string) (session.Batch, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return session.Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	batch := session.Batch{Patches: msg.Patches, Remote: msg.Origin != origin}
	if msg.Snapshot != nil {
		blocks, err := pt.UnmarshalBlocks(msg.Snapshot.Blocks, r.types)
		if err != nil {
			return session.Batch{}, fmt.Errorf("decode snapshot: %w", err)
		}
		batch.Snapshot = &session.Snapshot{Blocks: blocks, Revision: msg.Snapshot.Revision}
	}
	return batch, nil
}

// Close closes the Redis connection.
func (r *Relay) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
