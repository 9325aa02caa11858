// Package conversation holds the in-flight turn accumulator and the ordered
// log of finished exchanges.
package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Subscriber is called after each append, outside the log's lock.
type Subscriber func(Exchange)

// Log is the append-only conversation record for one session.
type Log struct {
	exchanges   []Exchange
	subscribers map[uuid.UUID]Subscriber
	mu          sync.RWMutex
}

func NewLog() *Log {
	l := &Log{
		subscribers: make(map[uuid.UUID]Subscriber),
	}
	return l
}

func (l *Log) Append(ex Exchange) {
	l.mu.Lock()
	l.exchanges = append(l.exchanges, ex)
	subs := make([]Subscriber, 0, len(l.subscribers))
	for _, s := range l.subscribers {
		subs = append(subs, s)
	}
	l.mu.Unlock()

	for _, s := range subs {
		s(ex)
	}
}

// Subscribe registers fn for future appends and returns its handle.
func (l *Log) Subscribe(fn Subscriber) uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.New()
	l.subscribers[id] = fn
	return id
}

func (l *Log) Unsubscribe(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subscribers, id)
}

// Exchanges returns a copy of every recorded exchange in order.
func (l *Log) Exchanges() []Exchange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Exchange(nil), l.exchanges...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.exchanges)
}

// Last returns the most recent exchange.
func (l *Log) Last() (Exchange, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.exchanges) == 0 {
		return Exchange{}, false
	}
	return l.exchanges[len(l.exchanges)-1], true
}

// AssistantText joins every assistant utterance, lower-cased.
func (l *Log) AssistantText() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	parts := make([]string, 0, len(l.exchanges))
	for _, ex := range l.exchanges {
		parts = append(parts, strings.ToLower(ex.Assistant))
	}
	return strings.Join(parts, " ")
}

// Transcript renders the log as alternating speaker lines, the form used as
// evaluation input.
func (l *Log) Transcript() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var b strings.Builder
	for _, ex := range l.exchanges {
		fmt.Fprintf(&b, "Interviewer: %s\nCandidate: %s\n\n", ex.Assistant, ex.User)
	}
	return b.String()
}
