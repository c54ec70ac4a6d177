package games

import (
	"sync"

	"github.com/park285/cheese-chess/pkg/chessdto"
)

const subscriberBuffer = 16

// Hub fans game events out to subscribers. Slow subscribers lose events
// rather than block the game.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan chessdto.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan chessdto.Event]struct{})}
}

// Subscribe returns a channel of events for one game and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(gameID string) (<-chan chessdto.Event, func()) {
	ch := make(chan chessdto.Event, subscriberBuffer)
	h.mu.Lock()
	set, ok := h.subs[gameID]
	if !ok {
		set = make(map[chan chessdto.Event]struct{})
		h.subs[gameID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[gameID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, gameID)
				}
			}
		})
	}
}

func (h *Hub) Publish(gameID string, ev chessdto.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[gameID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CloseGame ends every subscription of a game.
func (h *Hub) CloseGame(gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[gameID] {
		close(ch)
	}
	delete(h.subs, gameID)
}

func (h *Hub) Subscribers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[gameID])
}
