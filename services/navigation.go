package services

import (
	"sync"
	"time"
)

// Routes the core can ask the navigation layer to reset to
const (
	RouteLogin = "Login"
)

// Navigator asks the navigation layer to reset its stack to route.
// It is handed to services at bootstrap instead of living in a global.
type Navigator func(route string)

// NavigationIntent is one queued reset request
type NavigationIntent struct {
	Route string    `json:"route"`
	At    time.Time `json:"at"`
}

// NavigationQueue buffers intents for the UI shell to pick up
type NavigationQueue struct {
	mu      sync.Mutex
	intents []NavigationIntent
}

func NewNavigationQueue() *NavigationQueue {
	return &NavigationQueue{}
}

// Navigator returns a Navigator that enqueues into q
func (q *NavigationQueue) Navigator() Navigator {
	return func(route string) {
		q.mu.Lock()
		q.intents = append(q.intents, NavigationIntent{Route: route, At: time.Now()})
		q.mu.Unlock()
	}
}

// Drain returns and clears queued intents
func (q *NavigationQueue) Drain() []NavigationIntent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.intents
	q.intents = nil
	return out
}
