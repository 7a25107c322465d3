// ABOUTME: Bounded set of recently seen event ids for replay deduplication
// ABOUTME: Evicts the oldest id in O(1) once capacity is reached

package eventstream

import (
	"container/list"
	"sync"
)

// seenIDs remembers the most recent event ids delivered on a handle so a
// reconnect that replays from Last-Event-ID cannot deliver an event twice.
type seenIDs struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int
}

func newSeenIDs(maxSize int) *seenIDs {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &seenIDs{
		index:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// markNew records id and reports whether it was not already present.
func (s *seenIDs) markNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[id]; ok {
		s.order.MoveToBack(elem)
		return false
	}

	if s.order.Len() >= s.maxSize {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
	s.index[id] = s.order.PushBack(id)
	return true
}

func (s *seenIDs) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
