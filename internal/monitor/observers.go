package monitor

import "sync"

// observers is a change-notification list. Callbacks may subscribe or
// unsubscribe from inside a notification but must not dispose the model
// that is notifying them.
type observers struct {
	listMu sync.Mutex
	nextID int
	list   []observer

	// runMu is held for reading while callbacks run so that close waits
	// for in-progress notifications.
	runMu  sync.RWMutex
	closed bool
}

type observer struct {
	id int
	fn func()
}

func (o *observers) subscribe(fn func()) (unsubscribe func()) {
	o.listMu.Lock()
	o.nextID++
	id := o.nextID
	o.list = append(o.list, observer{id: id, fn: fn})
	o.listMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.listMu.Lock()
			defer o.listMu.Unlock()
			for i, ob := range o.list {
				if ob.id == id {
					o.list = append(o.list[:i:i], o.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *observers) emit() {
	o.runMu.RLock()
	defer o.runMu.RUnlock()
	if o.closed {
		return
	}

	o.listMu.Lock()
	fns := make([]func(), len(o.list))
	for i, ob := range o.list {
		fns[i] = ob.fn
	}
	o.listMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// close stops all further notifications. It returns after any notification
// already in progress has finished.
func (o *observers) close() {
	o.runMu.Lock()
	o.closed = true
	o.runMu.Unlock()

	o.listMu.Lock()
	o.list = nil
	o.listMu.Unlock()
}
