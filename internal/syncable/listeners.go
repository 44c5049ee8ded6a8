package syncable

import "sync"

// Listeners is an observer list with a single writer calling Notify and any
// number of subscribers.
type Listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription[T]
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (l *Listeners[T]) Subscribe(fn func(T)) (cancel func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, s := range l.subs {
				if s.id == id {
					l.subs = append(l.subs[:i], l.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *Listeners[T]) Notify(v T) {
	l.mu.Lock()
	subs := append([]subscription[T](nil), l.subs...)
	l.mu.Unlock()
	for _, s := range subs {
		s.fn(v)
	}
}

func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
