// Package session turns a scheduler-facing player identity into an
// append-only narrative event sink: Notify buffers output the way the
// teacher's Connection does, Present/Unpresent manage out-of-band
// "presentations" (the data model's structured-content sink), and every
// notification is durably logged, encrypted, for later playback via
// SinceEventID/UntilEventID/LastNSeconds.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"moocore/types"
)

// Sink is what verb execution and the scheduler write player-visible
// output through. A Session implements it directly; tests can substitute
// a recording fake.
type Sink interface {
	Notify(player types.ObjID, text string)
	Present(player types.ObjID, id string, attrs map[string]string, content string)
	Unpresent(player types.ObjID, id string)
}

// Session is one player's live output buffer plus its durable event log
// entry point. It does not own the network transport — that is the
// connection/transport layer's job, grounded on the teacher's
// server.Connection — Session only buffers and logs what was said.
type Session struct {
	Player types.ObjID

	mu            sync.Mutex
	buffer        []string
	presentations map[string]Presentation

	log *EventLog
	zl  *zap.Logger
}

// Presentation is a structured, out-of-band message: a dialog, a map
// update, anything richer than a line of text. attrs mirrors the data
// model's free-form key/value metadata.
type Presentation struct {
	ID      string
	Attrs   map[string]string
	Content string
}

// New creates a Session for player, logging through log (nil disables
// durable logging, useful for sandboxed `eval` sessions).
func New(player types.ObjID, log *EventLog, zl *zap.Logger) *Session {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Session{
		Player:        player,
		presentations: make(map[string]Presentation),
		log:           log,
		zl:            zl,
	}
}

// Notify buffers a line of text for player and appends it to the event
// log. Matches the teacher's Connection.Buffer: output is not flushed to
// the transport until Commit, so a rolled-back task never produces output
// the player saw.
func (s *Session) Notify(player types.ObjID, text string) {
	if player != s.Player {
		return
	}
	s.mu.Lock()
	s.buffer = append(s.buffer, text)
	s.mu.Unlock()

	if s.log != nil {
		if err := s.log.Append(player, NarrativeEvent{Kind: EventNotify, Text: text, At: time.Now()}); err != nil {
			s.zl.Warn("failed to append notify event", zap.Error(err), zap.Int64("player", int64(player)))
		}
	}
}

// Present records a presentation and logs it, replacing any earlier
// presentation with the same id.
func (s *Session) Present(player types.ObjID, id string, attrs map[string]string, content string) {
	if player != s.Player {
		return
	}
	s.mu.Lock()
	s.presentations[id] = Presentation{ID: id, Attrs: attrs, Content: content}
	s.mu.Unlock()

	if s.log != nil {
		if err := s.log.Append(player, NarrativeEvent{Kind: EventPresent, PresentID: id, Attrs: attrs, Text: content, At: time.Now()}); err != nil {
			s.zl.Warn("failed to append present event", zap.Error(err), zap.Int64("player", int64(player)))
		}
	}
}

// Unpresent removes a previously presented id.
func (s *Session) Unpresent(player types.ObjID, id string) {
	if player != s.Player {
		return
	}
	s.mu.Lock()
	delete(s.presentations, id)
	s.mu.Unlock()

	if s.log != nil {
		if err := s.log.Append(player, NarrativeEvent{Kind: EventUnpresent, PresentID: id, At: time.Now()}); err != nil {
			s.zl.Warn("failed to append unpresent event", zap.Error(err), zap.Int64("player", int64(player)))
		}
	}
}

// Drain returns everything buffered since the last Drain and clears the
// buffer. The transport layer calls this once a task commits, matching
// the teacher's Connection.Flush being called only after a command
// finishes successfully.
func (s *Session) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buffer
	s.buffer = nil
	return out
}

// Presentations returns a snapshot of every live presentation.
func (s *Session) Presentations() []Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Presentation, 0, len(s.presentations))
	for _, p := range s.presentations {
		out = append(out, p)
	}
	return out
}

// DiscardBuffer clears buffered output without flushing it, used when a
// task rolls back and its output must not reach the player.
func (s *Session) DiscardBuffer() {
	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
}
