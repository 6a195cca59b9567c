package appointment

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

type lister func(ctx context.Context, q Query) ([]*Appointment, pagination.Cursor, error)

type watcher struct {
	query Query
	fn    WatchFunc
}

// watchRegistry fans appointment mutations out to subscribed queries. Both
// repository implementations embed one; every successful mutation triggers a
// full recompute per subscriber.
type watchRegistry struct {
	log  zerolog.Logger
	mu   sync.Mutex
	next int
	subs map[int]*watcher
}

func newWatchRegistry(log zerolog.Logger) *watchRegistry {
	return &watchRegistry{log: log, subs: make(map[int]*watcher)}
}

func (w *watchRegistry) add(ctx context.Context, q Query, fn WatchFunc, list lister) func() {
	w.mu.Lock()
	id := w.next
	w.next++
	sub := &watcher{query: q, fn: fn}
	w.subs[id] = sub
	w.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	}

	// Subscribers start from the current set, not from the next mutation.
	w.deliver(sub, list)
	return unsubscribe
}

func (w *watchRegistry) deliver(sub *watcher, list lister) {
	// The subscription outlives any one request, so recomputes never run
	// under a caller's deadline.
	items, _, err := list(context.Background(), sub.query)
	if err != nil {
		w.log.Error().Err(err).Msg("watch recompute failed, delivering empty set")
		sub.fn([]*Appointment{})
		return
	}
	if items == nil {
		items = []*Appointment{}
	}
	sub.fn(items)
}

// notify recomputes every subscribed query against the current data and
// delivers each full set. Callbacks run outside the registry lock.
func (w *watchRegistry) notify(list lister) {
	w.mu.Lock()
	subs := make([]*watcher, 0, len(w.subs))
	for _, sub := range w.subs {
		subs = append(subs, sub)
	}
	w.mu.Unlock()

	for _, sub := range subs {
		w.deliver(sub, list)
	}
}
