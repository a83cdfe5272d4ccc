package session

import "sync"

// Subscription is a live view of messages appended to one session after
// the subscription was created. It never yields history: only messages
// committed strictly after Subscribe was called.
//
// A Subscription is backed by an unbounded internal queue rather than a
// fixed-size Go channel so that Notify never blocks the writer on a slow
// subscriber (mirrors the unbounded mpsc channel the Rust original uses
// per subscriber).
type Subscription struct {
	sessionID SessionID

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool
}

func newSubscription(sessionID SessionID) *Subscription {
	s := &Subscription{sessionID: sessionID}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// push enqueues a message for delivery. Returns false if the subscription
// is already closed, signaling the caller (the hub) to reap it.
func (s *Subscription) push(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.queue = append(s.queue, msg)
	s.cond.Signal()
	return true
}

// closeSub marks the subscription closed and wakes any blocked receiver.
// Further Recv calls return (Message{}, false) once the queue drains.
func (s *Subscription) closeSub() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Recv blocks until a message arrives or the subscription is closed.
// Returns (message, true) on delivery, or (Message{}, false) once closed
// and drained.
func (s *Subscription) Recv() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// TryRecv returns the next message without blocking. Returns
// (Message{}, false) if no message is currently available, whether or
// not the subscription has been closed.
func (s *Subscription) TryRecv() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// SessionID returns the session this subscription was created for.
func (s *Subscription) SessionID() SessionID { return s.sessionID }

// Close detaches the subscription from the hub. Safe to call more than
// once. Callers that stop reading should Close to let the hub reap the
// subscription on the next notify.
func (s *Subscription) Close() {
	s.closeSub()
}

// liveHub fans newly committed messages out to zero or more subscribers
// per session, without ever blocking the writer on a slow consumer.
type liveHub struct {
	mu   sync.RWMutex
	subs map[SessionID][]*Subscription
}

func newLiveHub() *liveHub {
	return &liveHub{subs: make(map[SessionID][]*Subscription)}
}

// subscribe registers a new subscription for a session. It observes only
// messages notified after this call returns.
func (h *liveHub) subscribe(id SessionID) *Subscription {
	sub := newSubscription(id)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = append(h.subs[id], sub)
	return sub
}

// notify delivers msg to every live subscriber of id, reaping any
// subscription that has been closed in the same pass.
func (h *liveHub) notify(id SessionID, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[id]
	if !ok || len(subs) == 0 {
		return
	}
	live := subs[:0]
	for _, sub := range subs {
		if sub.push(msg) {
			live = append(live, sub)
		}
	}
	h.subs[id] = live
}

// closeSession drops every subscriber of a session, terminating any
// blocked Recv call on them.
func (h *liveHub) closeSession(id SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[id] {
		sub.closeSub()
	}
	delete(h.subs, id)
}

// subscriberCount returns the number of live subscribers of a session.
func (h *liveHub) subscriberCount(id SessionID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}
