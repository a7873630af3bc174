package cdp

import (
	"log/slog"
	"sync"
)

// Handler receives one event. Handlers run on the session's single dispatch
// goroutine and never concurrently with each other.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	Domain string
	Name   string
	id     uint64
}

type eventKey struct {
	domain string
	name   string
}

type subscriber struct {
	id      uint64
	handler Handler
}

// dispatcher queues inbound events without bounding the reader and
// delivers them in arrival order from one goroutine.
type dispatcher struct {
	mu     sync.Mutex
	subs   map[eventKey][]subscriber
	nextID uint64
	queue  []Event

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		subs: make(map[eventKey][]subscriber),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(domain, name string, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	key := eventKey{domain, name}
	d.subs[key] = append(d.subs[key], subscriber{id: d.nextID, handler: h})
	return Subscription{Domain: domain, Name: name, id: d.nextID}
}

func (d *dispatcher) unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := eventKey{sub.Domain, sub.Name}
	list := d.subs[key]
	for i, s := range list {
		if s.id == sub.id {
			d.subs[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(d.subs[key]) == 0 {
		delete(d.subs, key)
	}
}

func (d *dispatcher) unsubscribeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = make(map[eventKey][]subscriber)
	d.queue = nil
}

func (d *dispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, list := range d.subs {
		n += len(list)
	}
	return n
}

func (d *dispatcher) enqueue(ev Event) {
	d.mu.Lock()
	if len(d.subs[eventKey{ev.Domain, ev.Name}]) == 0 {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.queue[0]
			d.queue[0] = Event{}
			d.queue = d.queue[1:]
			handlers := append([]subscriber(nil), d.subs[eventKey{ev.Domain, ev.Name}]...)
			d.mu.Unlock()

			for _, s := range handlers {
				if !d.active(ev, s.id) {
					continue
				}
				d.invoke(ev, s.handler)
			}

			select {
			case <-d.stop:
				return
			default:
			}
		}
	}
}

// active reports whether a handler is still subscribed, so one removed by an
// earlier handler of the same event is skipped.
func (d *dispatcher) active(ev Event, id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs[eventKey{ev.Domain, ev.Name}] {
		if s.id == id {
			return true
		}
	}
	return false
}

func (d *dispatcher) invoke(ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "method", ev.Method(), "panic", r)
		}
	}()
	h(ev)
}

// close stops the dispatch goroutine and waits for it to exit. Events still
// queued are dropped. It must not be called from a Handler.
func (d *dispatcher) close() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}
