package session

import "time"

// timerSlot pairs a timer with the generation it was armed for. A fired
// AfterFunc callback can lose the race against a Reset and run anyway; the
// callback compares its captured generation against the slot's current one and
// backs off when they differ, so a reset burst never produces an extra firing.
type timerSlot struct {
	timer *time.Timer
	gen   uint64
}

// NotifyTyping is called on every local input change. The first keystroke
// emits typing-start; each keystroke restarts the single per-conversation
// inactivity timer, and only its expiry emits typing-stop. One timer per
// conversation, reset rather than stacked, so silence produces exactly one
// trailing typing-stop.
//
// While disconnected this is a silent no-op: typing indicators are not worth
// queueing.
func (s *Session) NotifyTyping(conversationID string) {
	if s.user == nil || s.user.ID == "" || !s.conn.IsConnected() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.typingTimers[conversationID]; ok {
		s.timerGen++
		slot.gen = s.timerGen
		if !slot.timer.Reset(s.typingWindow) {
			// The timer already fired and its callback is waiting on the
			// mutex; the bumped generation makes it a no-op. Arm a fresh
			// timer in its place.
			slot.timer = s.newInactivityTimer(conversationID, slot.gen)
		}
		return
	}

	s.conn.TypingStart(conversationID, s.user.ID, s.user.DisplayName)

	s.timerGen++
	s.typingTimers[conversationID] = &timerSlot{
		timer: s.newInactivityTimer(conversationID, s.timerGen),
		gen:   s.timerGen,
	}
}

func (s *Session) newInactivityTimer(conversationID string, gen uint64) *time.Timer {
	return time.AfterFunc(s.typingWindow, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		slot, ok := s.typingTimers[conversationID]
		if !ok || slot.gen != gen {
			return
		}
		delete(s.typingTimers, conversationID)

		// Emitted under the session mutex so a concurrent NotifyTyping
		// cannot interleave its typing-start before this stop.
		s.conn.TypingStop(conversationID, s.user.ID, s.user.DisplayName)
	})
}

// IsTypingLocally reports whether the inactivity timer for the conversation
// is armed, i.e. a typing-start was emitted and its typing-stop is pending.
func (s *Session) IsTypingLocally(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typingTimers[conversationID]
	return ok
}
