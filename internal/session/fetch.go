package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/taskmgr818/rehab-client/internal/protocol"
)

// catalogWait bounds how long a get_actions request may go unanswered
// before the REST fallback kicks in.
const catalogWait = 5 * time.Second

// ErrCatalogTimeout is returned when the connection-path catalog fetch
// times out and no fallback succeeds.
var ErrCatalogTimeout = errors.New("catalog fetch timed out")

// CatalogFetcher is the synchronous REST fallback for the catalog.
// Implemented by catalog.Client.
type CatalogFetcher interface {
	GetActions(ctx context.Context) ([]protocol.Exercise, error)
}

// FetchCatalog requests the exercise catalog over the connection and waits
// for the actions_list reply. If the reply does not arrive within the
// bound (or the command is not accepted), it falls back to one synchronous
// REST fetch; if that also fails, the error is terminal for this attempt.
// Only one fetch may be outstanding at a time; Start and SelectExercise
// are refused while it is.
func (s *Session) FetchCatalog(ctx context.Context, fallback CatalogFetcher) error {
	s.mu.Lock()
	if s.fetchInFlight {
		s.mu.Unlock()
		return ErrFetchInFlight
	}
	s.fetchInFlight = true
	reply := make(chan []protocol.Exercise, 1)
	s.fetchReply = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetchInFlight = false
		s.fetchReply = nil
		s.mu.Unlock()
	}()

	if s.sender.Send(protocol.GetActions{}) {
		timer := time.NewTimer(catalogWait)
		defer timer.Stop()

		select {
		case <-reply:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			log.Printf("[session] get_actions unanswered after %v, trying REST", catalogWait)
		}
	} else {
		log.Printf("[session] get_actions not accepted, trying REST")
	}

	if fallback == nil {
		return fmt.Errorf("catalog fetch: %w", ErrCatalogTimeout)
	}

	actions, err := fallback.GetActions(ctx)
	if err != nil {
		return fmt.Errorf("catalog fetch: REST fallback: %w", err)
	}
	s.applyCatalog(actions)
	return nil
}
