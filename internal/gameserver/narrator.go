package gameserver

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// DefaultOutboxDepth is the number of undelivered messages kept per recipient.
const DefaultOutboxDepth = 256

// Outbox implements combat.Narrator by queueing each narration for every
// member of its audience until the recipient drains it.
//
// Invariant: no recipient queue holds more than depth messages; the oldest
// message is dropped first.
type Outbox struct {
	mu     sync.Mutex
	depth  int
	queues map[string][]string
	upper  cases.Caser
	logger *zap.Logger
}

// NewOutbox creates an Outbox keeping at most depth messages per recipient.
//
// Precondition: logger must be non-nil.
// Postcondition: depth < 1 uses DefaultOutboxDepth.
func NewOutbox(depth int, logger *zap.Logger) *Outbox {
	if depth < 1 {
		depth = DefaultOutboxDepth
	}
	return &Outbox{
		depth:  depth,
		queues: make(map[string][]string),
		upper:  cases.Upper(language.English),
		logger: logger,
	}
}

// Narrate queues n.Text for the audience. The actor and target always receive
// it even when the audience was captured without them.
func (o *Outbox) Narrate(_ context.Context, n combat.Narration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	text := o.capitalize(n.Text)
	seen := make(map[string]bool, len(n.Audience)+2)
	deliver := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		q := append(o.queues[id], text)
		if len(q) > o.depth {
			q = q[len(q)-o.depth:]
		}
		o.queues[id] = q
	}
	for _, id := range n.Audience {
		deliver(id)
	}
	deliver(n.ActorID)
	deliver(n.TargetID)
	o.logger.Debug("narration",
		zap.String("room", n.Room),
		zap.Int("recipients", len(seen)),
		zap.String("text", text),
	)
}

// capitalize upper-cases the first rune. Caller must hold o.mu; a Caser is
// not safe for concurrent use.
func (o *Outbox) capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	o.upper.Reset()
	return o.upper.String(s[:size]) + s[size:]
}

// Drain returns and clears the messages queued for id, oldest first.
func (o *Outbox) Drain(id string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queues[id]
	delete(o.queues, id)
	return q
}

// Pending returns how many messages are queued for id.
func (o *Outbox) Pending(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queues[id])
}

// Forget drops every message queued for id.
func (o *Outbox) Forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.queues, id)
}
