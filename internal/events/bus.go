package events

import (
	"sync"
	"time"
)

type Topic string

const (
	// TopicCartUpdated fires after a remote cart mutation is confirmed.
	TopicCartUpdated Topic = "cartUpdated"
	// TopicCartChanged fires on local-only changes and after rollbacks.
	TopicCartChanged Topic = "cartChanged"
	// TopicNotificationsChanged fires whenever the notification feed changes.
	TopicNotificationsChanged Topic = "notificationsChanged"
)

type Event struct {
	Topic      Topic
	Op         string
	OccurredAt time.Time
}

// Publisher is the narrow surface stores depend on.
type Publisher interface {
	Publish(topic Topic, op string)
}

// Bus fans events out to buffered subscriber channels. Slow subscribers
// lose events instead of blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
	now    func() time.Time
}

type subscription struct {
	topics map[Topic]struct{}
	ch     chan Event
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
		now:  time.Now,
	}
}

// Subscribe registers for the given topics (all topics when none are given).
// The returned cancel func closes the channel.
func (b *Bus) Subscribe(buffer int, topics ...Topic) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{
		topics: make(map[Topic]struct{}, len(topics)),
		ch:     make(chan Event, buffer),
	}
	for _, topic := range topics {
		sub.topics[topic] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (b *Bus) Publish(topic Topic, op string) {
	if b == nil {
		return
	}
	evt := Event{Topic: topic, Op: op, OccurredAt: b.now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.topics) > 0 {
			if _, ok := sub.topics[topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}
