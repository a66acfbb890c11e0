// Package bus carries editor and preview events between the preview service
// and the hosts that display it.
package bus

import "sync"

// Subscribe returns a channel receiving events of the given type and a
// cancel function that detaches it. Delivery never blocks Emit: when the
// buffer is full the oldest pending event is dropped so slow readers
// (SSE clients, websockets) always catch up to the latest preview. The
// channel is never closed; readers stop on their own context.
func (eb *EventBus) Subscribe(eventType string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	done := make(chan struct{})

	id := eb.On(eventType, func(e Event) {
		select {
		case <-done:
			return
		default:
		}
		for {
			select {
			case ch <- e:
				return
			default:
			}
			select {
			case dropped := <-ch:
				eb.logger.Debug("subscriber lagging, event dropped", "event", dropped.Type)
			default:
			}
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			eb.Off(eventType, id)
			close(done)
		})
	}
	return ch, cancel
}
