// Package session owns the client-side conversation state: the ordered message
// log, the current stage and the two server-assigned correlation identifiers.
//
// The Store performs no I/O and no validation. Every mutation notifies the
// registered observers synchronously, before the mutating call returns.
package session

import (
	"sync"
)

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	ApplicationID  string    `json:"application_id,omitempty" yaml:"application_id,omitempty"`
	Stage          Stage     `json:"stage" yaml:"stage"`
	Messages       []Message `json:"messages" yaml:"messages"`
}

// Latest returns the newest message, if any.
func (s Snapshot) Latest() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// EventKind names the mutation that produced an Event.
type EventKind int

const (
	EventAppended EventKind = iota
	EventConversationID
	EventApplicationID
	EventStage
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventConversationID:
		return "conversation_id"
	case EventApplicationID:
		return "application_id"
	case EventStage:
		return "stage"
	default:
		return "unknown"
	}
}

// Event is delivered to observers after each mutation. Grew is set when the
// message log got longer, which is the cue to scroll to the latest entry.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
	Grew     bool
}

// Observer receives events. Observers may read the store but must not mutate it.
type Observer func(Event)

// Store is the single owner of a Session.
type Store struct {
	// notifyMu serialises mutate+notify so observers see events in order.
	notifyMu sync.Mutex
	mu       sync.Mutex

	conversationID string
	applicationID  string
	stage          Stage
	messages       []Message

	observers map[int]Observer
	nextObs   int
}

// NewStore returns an empty session at the first stage of the track.
func NewStore() *Store {
	return &Store{
		stage:     StageGreeting,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers o and returns a function that removes it.
func (s *Store) Subscribe(o Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Append adds m to the end of the log.
func (s *Store) Append(m Message) {
	s.mutate(EventAppended, func() bool {
		s.messages = append(s.messages, m)
		return true
	})
}

// SetConversationID records id unless one is already set. It reports whether
// the value was applied.
func (s *Store) SetConversationID(id string) bool {
	return s.mutate(EventConversationID, func() bool {
		if id == "" || s.conversationID != "" {
			return false
		}
		s.conversationID = id
		return true
	})
}

// SetApplicationID records id unless one is already set.
func (s *Store) SetApplicationID(id string) bool {
	return s.mutate(EventApplicationID, func() bool {
		if id == "" || s.applicationID != "" {
			return false
		}
		s.applicationID = id
		return true
	})
}

// SetStage replaces the current stage. Backward moves are accepted; the
// orchestrator is authoritative.
func (s *Store) SetStage(st Stage) {
	s.mutate(EventStage, func() bool {
		s.stage = st
		return true
	})
}

// ConversationID returns the conversation identifier or "" when absent.
func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// ApplicationID returns the application identifier or "" when absent.
func (s *Store) ApplicationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applicationID
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		ConversationID: s.conversationID,
		ApplicationID:  s.applicationID,
		Stage:          s.stage,
		Messages:       msgs,
	}
}

// mutate applies fn and, if it changed anything, notifies observers.
func (s *Store) mutate(kind EventKind, fn func() bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	before := len(s.messages)
	if !fn() {
		s.mu.Unlock()
		return false
	}
	ev := Event{Kind: kind, Snapshot: s.snapshotLocked(), Grew: len(s.messages) > before}
	obs := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if o, ok := s.observers[i]; ok {
			obs = append(obs, o)
		}
	}
	s.mu.Unlock()

	for _, o := range obs {
		o(ev)
	}
	return true
}
