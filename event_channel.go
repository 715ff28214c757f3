package foreman

// ReaderID identifies a registered reader of an EventChannel.
type ReaderID int

// EventChannel is a bounded multi-reader event buffer. Every reader sees each
// event pushed after its registration at most once; once the buffer is full the
// oldest events are overwritten, and slow readers miss them.
type EventChannel[E any] struct {
	buffer  []E
	written uint64
	readers []uint64
}

func NewEventChannel[E any](capacity int) EventChannel[E] {
	if capacity <= 0 {
		capacity = 1
	}
	return EventChannel[E]{buffer: make([]E, capacity)}
}

func (c *EventChannel[E]) Push(events ...E) {
	for _, e := range events {
		c.buffer[c.written%uint64(len(c.buffer))] = e
		c.written++
	}
}

// RegisterReader returns a reader positioned after every event pushed so far.
func (c *EventChannel[E]) RegisterReader() ReaderID {
	c.readers = append(c.readers, c.written)
	return ReaderID(len(c.readers) - 1)
}

// Read returns the events the reader has not seen yet and advances it.
func (c *EventChannel[E]) Read(reader ReaderID) []E {
	if int(reader) < 0 || int(reader) >= len(c.readers) {
		return nil
	}
	from := c.readers[reader]
	capacity := uint64(len(c.buffer))
	if c.written > capacity && from < c.written-capacity {
		from = c.written - capacity
	}
	events := make([]E, 0, c.written-from)
	for seq := from; seq < c.written; seq++ {
		events = append(events, c.buffer[seq%capacity])
	}
	c.readers[reader] = c.written
	return events
}

// Written returns the number of events pushed over the channel's lifetime.
func (c *EventChannel[E]) Written() uint64 {
	return c.written
}
