package state

// Listener receives every outcome written to an observed store.
type Listener func(id string, outcome Outcome)

type observedStore struct {
	Store
	listener Listener
}

// Observe wraps inner so that listener is called after every Put and after
// every ClearUpdate that found its id. The listener runs on the writer's
// goroutine and must not block.
func Observe(inner Store, listener Listener) Store {
	return &observedStore{Store: inner, listener: listener}
}

func (o *observedStore) Put(id string, outcome Outcome) {
	o.Store.Put(id, outcome)
	o.listener(id, outcome)
}

func (o *observedStore) ClearUpdate(id string) bool {
	if !o.Store.ClearUpdate(id) {
		return false
	}
	if outcome, ok := o.Store.Get(id); ok {
		o.listener(id, outcome)
	}

	return true
}
