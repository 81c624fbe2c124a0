package mqtt

import "log"

// message is a serialized publish held while the broker is unreachable.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog keeps the most recent messages published while disconnected and
// hands them back in order once the connection returns. When full, the
// oldest message is overwritten. Not safe for concurrent use.
type backlog struct {
	msgs    []message
	next    int // slot for the next push
	count   int
	dropped int // overwritten since the last drain
}

func newBacklog(capacity int) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{msgs: make([]message, capacity)}
}

func (b *backlog) push(m message) {
	if b.count == len(b.msgs) {
		if b.dropped == 0 {
			log.Printf("mqtt: backlog full (%d messages), overwriting oldest", len(b.msgs))
		}
		b.dropped++
	} else {
		b.count++
	}
	b.msgs[b.next] = m
	b.next = (b.next + 1) % len(b.msgs)
}

// drain returns the held messages oldest first and empties the backlog.
func (b *backlog) drain() []message {
	if b.count == 0 {
		return nil
	}
	out := make([]message, 0, b.count)
	first := (b.next - b.count + len(b.msgs)) % len(b.msgs)
	for i := 0; i < b.count; i++ {
		out = append(out, b.msgs[(first+i)%len(b.msgs)])
	}
	if b.dropped > 0 {
		log.Printf("mqtt: %d messages were overwritten while disconnected", b.dropped)
	}
	b.next, b.count, b.dropped = 0, 0, 0
	return out
}

func (b *backlog) len() int {
	return b.count
}
