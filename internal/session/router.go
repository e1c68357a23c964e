package session

import (
	"context"
	"errors"
	"log"
)

// Source delivers patch batches for one document in receipt order.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Batch, error)
}

// Router feeds an ordered batch stream into a session.
type Router struct {
	s *Session
}

func NewRouter(s *Session) *Router {
	return &Router{s: s}
}

// Run applies batches until the channel closes, ctx is cancelled or the
// session is closed. Batches are never reordered.
func (r *Router) Run(ctx context.Context, batches <-chan Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if err := r.s.ApplyRemote(batch); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				log.Printf("session: %s: apply batch: %v", r.s.ID(), err)
			}
		}
	}
}
