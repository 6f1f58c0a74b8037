package sensor

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/ringchan"
)

// DefaultObserverBuffer is the per-observer backlog kept before the oldest
// undelivered event is dropped.
const DefaultObserverBuffer = 16

// EventKind distinguishes status changes from readings.
type EventKind int

const (
	EventStatus EventKind = iota
	EventReading
)

func (k EventKind) String() string {
	if k == EventReading {
		return "reading"
	}
	return "status"
}

// Event is pushed to observers. Status is always set; Reading only for
// EventReading.
type Event struct {
	Kind    EventKind
	Status  Status
	Reading Reading
}

type subscriber struct {
	ring *ringchan.Ring[Event]
}

// Updates returns a channel of events and a function that stops delivery and
// closes the channel. A slow consumer loses the oldest events, never blocks
// the client. buffer <= 0 selects DefaultObserverBuffer.
func (c *Client) Updates(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}
	ring := ringchan.New[Event](buffer)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		ring.Close()
		return ring.C(), func() {}
	}

	id := c.nextID.Add(1)
	c.subs.Set(id, &subscriber{ring: ring})

	return ring.C(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.removeSubscriberLocked(id)
	}
}

// Subscribe calls fn for every event, in order, on a dedicated goroutine.
// The returned function cancels the subscription.
func (c *Client) Subscribe(fn func(Event)) func() {
	ch, cancel := c.Updates(DefaultObserverBuffer)
	groutine.Go(context.Background(), "sensor-observer", func(ctx context.Context) {
		for ev := range ch {
			fn(ev)
		}
	})
	return cancel
}

func (c *Client) publishLocked(ev Event) {
	c.subs.Range(func(_ uint64, s *subscriber) bool {
		if s.ring.Send(ev) {
			c.logger.WithField("kind", ev.Kind).Debug("Observer lagging, dropped oldest event")
		}
		return true
	})
}

func (c *Client) removeSubscriberLocked(id uint64) {
	if s, ok := c.subs.Get(id); ok {
		c.subs.Del(id)
		s.ring.Close()

		written, overwritten := s.ring.Stats()
		c.logger.WithFields(logrus.Fields{
			"observer":    id,
			"events":      written,
			"overwritten": overwritten,
		}).Debug("Observer removed")
	}
}

func (c *Client) closeSubscribersLocked() {
	var ids []uint64
	c.subs.Range(func(id uint64, _ *subscriber) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		c.removeSubscriberLocked(id)
	}
}
