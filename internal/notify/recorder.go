package notify

import (
	"context"
	"sync"
)

// Notification is one delivered (user, book) pair
type Notification struct {
	UserName  string
	BookTitle string
}

// Recorder keeps every notification in memory. Err, when set, is returned
// after recording.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *Recorder) Notify(_ context.Context, userName, bookTitle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{UserName: userName, BookTitle: bookTitle})
	return r.Err
}

// Sent returns a copy of the recorded notifications in delivery order
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset forgets the recorded notifications
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
