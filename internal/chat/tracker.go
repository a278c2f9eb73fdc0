package chat

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// noSubject keys the conversation of a session that is not bound to a
// document. Backend document ids start at 1.
const noSubject int64 = 0

// Tracker remembers which backend conversation belongs to which document
// subject, so that switching back to a document resumes its conversation.
type Tracker struct {
	cache *expirable.LRU[int64, int64]
}

func NewTracker(size int, ttl time.Duration) *Tracker {
	if size <= 0 {
		size = 256
	}
	return &Tracker{cache: expirable.NewLRU[int64, int64](size, nil, ttl)}
}

func (t *Tracker) Lookup(subject *int64) (int64, bool) {
	return t.cache.Get(subjectKey(subject))
}

func (t *Tracker) Remember(subject *int64, conversationID int64) {
	t.cache.Add(subjectKey(subject), conversationID)
}

func (t *Tracker) Forget(subject *int64) {
	t.cache.Remove(subjectKey(subject))
}

func subjectKey(subject *int64) int64 {
	if subject == nil {
		return noSubject
	}
	return *subject
}
