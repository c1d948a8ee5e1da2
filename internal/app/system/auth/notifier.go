package auth

import (
	"sync/atomic"

	"github.com/sociodev/sociodev/internal/domain/models"
)

// Change is a session-state notification for one device. Identity is nil
// when the device is signed out.
type Change struct {
	DeviceID string
	Identity *models.Identity
}

// SignedIn reports whether the change carries an identity.
func (c Change) SignedIn() bool { return c.Identity != nil }

type subscription struct {
	deviceID string
	ch       chan Change
}

// Notifier fans out Changes to subscribers of the same device.
//
// A single goroutine owns the subscriber map; public methods talk to it over
// channels. Each subscriber channel holds one pending Change and a newer
// Change replaces an unread one, so publishers never block on slow readers
// and readers always see the latest state.
type Notifier struct {
	subscribeCh   chan subscription
	unsubscribeCh chan subscription
	publishCh     chan Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewNotifier starts the notifier loop.
func NewNotifier() *Notifier {
	n := &Notifier{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan subscription),
		publishCh:     make(chan Change),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) run() {
	defer close(n.stopped)

	subs := make(map[string]map[chan Change]struct{})

	for {
		select {
		case <-n.stopCh:
			for _, set := range subs {
				for ch := range set {
					close(ch)
				}
			}
			return

		case s := <-n.subscribeCh:
			if subs[s.deviceID] == nil {
				subs[s.deviceID] = make(map[chan Change]struct{})
			}
			subs[s.deviceID][s.ch] = struct{}{}

		case s := <-n.unsubscribeCh:
			set := subs[s.deviceID]
			if _, ok := set[s.ch]; ok {
				delete(set, s.ch)
				close(s.ch)
				if len(set) == 0 {
					delete(subs, s.deviceID)
				}
			}

		case c := <-n.publishCh:
			for ch := range subs[c.DeviceID] {
				deliverLatest(ch, c)
			}

		case resp := <-n.countReqCh:
			total := 0
			for _, set := range subs {
				total += len(set)
			}
			resp <- total
		}
	}
}

func deliverLatest(ch chan Change, c Change) {
	for {
		select {
		case ch <- c:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (n *Notifier) Close() {
	if n.closed.CompareAndSwap(false, true) {
		close(n.stopCh)
	}
	<-n.stopped
}

// Subscribe registers for Changes on deviceID.
func (n *Notifier) Subscribe(deviceID string) chan Change {
	ch := make(chan Change, 1)
	if n.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case n.subscribeCh <- subscription{deviceID: deviceID, ch: ch}:
	case <-n.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes ch and closes it.
func (n *Notifier) Unsubscribe(deviceID string, ch chan Change) {
	if n.closed.Load() {
		return
	}
	select {
	case n.unsubscribeCh <- subscription{deviceID: deviceID, ch: ch}:
	case <-n.stopped:
	}
}

// Publish delivers c to subscribers of c.DeviceID.
func (n *Notifier) Publish(c Change) {
	if n.closed.Load() {
		return
	}
	select {
	case n.publishCh <- c:
	case <-n.stopped:
	}
}

// SubscriberCount returns the number of live subscriptions.
func (n *Notifier) SubscriberCount() int {
	if n.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case n.countReqCh <- resp:
	case <-n.stopped:
		return 0
	}
	select {
	case c := <-resp:
		return c
	case <-n.stopped:
		return 0
	}
}
