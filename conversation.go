package toolloop

import "sync"

// Conversation is the append-only log of turns for a single run.
//
// The loop controller is its only writer. Hooks and callers may read it concurrently through
// Snapshot, which always returns a copy: a snapshot does not keep updating after it is taken.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{turns: make([]Turn, 0, 8)}
}

// Append adds a turn to the end of the log. The conversation stores its own copy, so later
// changes to the caller's slices or maps do not affect the recorded turn.
func (c *Conversation) Append(turn Turn) {
	turn = turn.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
}

// Snapshot returns an ordered copy of every turn appended so far.
func (c *Conversation) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Last returns a copy of the most recent turn, or false if the conversation is empty.
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1].Clone(), true
}
