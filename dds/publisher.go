package dds

import (
	"github.com/mbdds/mbdds/internal/ring"
)

// Publisher publishes messages to one topic's ring buffer, ported from
// original_source/src/MB_DDF/DDS/Publisher.{h,cpp}.
type Publisher struct {
	topicID   uint32
	topicName string
	id        uint64
	name      string
	r         *ring.Ring
}

// Publisher attaches to (registering if needed) the named topic and
// installs this participant as its single publisher, following
// DDSCore::create_publisher.
func (c *Core) Publisher(topicName string, publisherName string) (*Publisher, error) {
	if publisherName == "" {
		publisherName = c.procName
	}

	r, err := c.topicRing(topicName)
	if err != nil {
		return nil, err
	}

	topic, _ := c.reg.Lookup(topicName)
	id := newParticipantID()

	if err := r.SetPublisher(id, publisherName); err != nil {
		return nil, err
	}

	c.log.Infow("created publisher", "topic", topicName, "publisher_id", id, "publisher_name", publisherName)

	return &Publisher{
		topicID:   topic.ID,
		topicName: topicName,
		id:        id,
		name:      publisherName,
		r:         r,
	}, nil
}

// TopicID returns the topic's unique identifier.
func (p *Publisher) TopicID() uint32 { return p.topicID }

// TopicName returns the topic's name.
func (p *Publisher) TopicName() string { return p.topicName }

// ID returns the publisher's unique identifier.
func (p *Publisher) ID() uint64 { return p.id }

// Name returns the publisher's name.
func (p *Publisher) Name() string { return p.name }

// Publish writes data as one message to the topic (Publisher::publish /
// Publisher::write in the original, unified here since Go has no overload
// set to alias between).
func (p *Publisher) Publish(data []byte) error {
	return p.r.Publish(p.topicID, data)
}

// Write is an alias for Publish, matching the original's write/publish
// naming pair.
func (p *Publisher) Write(data []byte) error {
	return p.Publish(data)
}

// WritableMessage is a zero-copy reservation handle returned by
// BeginMessage, porting Publisher::WritableMessage's RAII wrapper around a
// ring.Token.
type WritableMessage struct {
	token *ring.Token
}

// Data returns the writable region reserved for this message's payload.
func (w *WritableMessage) Data() []byte { return w.token.Data() }

// Commit publishes the reservation with usedSize bytes of Data() filled in.
func (w *WritableMessage) Commit(usedSize int) error {
	return w.token.Commit(uint32(usedSize))
}

// Cancel abandons the reservation without publishing anything.
func (w *WritableMessage) Cancel() {
	w.token.Cancel()
}

// BeginMessage reserves space for a message of up to maxSize payload bytes,
// for callers that want to fill the buffer in place rather than copying
// from an already-built slice (Publisher::begin_message).
func (p *Publisher) BeginMessage(maxSize int) (*WritableMessage, error) {
	token, err := p.r.BeginMessage(p.topicID, uint32(maxSize))
	if err != nil {
		return nil, err
	}
	return &WritableMessage{token: token}, nil
}

// PublishFill reserves maxSize bytes, calls fill to populate them, and
// commits the message with fill's reported length. Returning 0 from fill
// cancels the reservation instead of publishing, mirroring
// Publisher::publish_fill.
func (p *Publisher) PublishFill(maxSize int, fill func(buf []byte) int) error {
	msg, err := p.BeginMessage(maxSize)
	if err != nil {
		return err
	}

	n := fill(msg.Data())
	if n <= 0 {
		msg.Cancel()
		return nil
	}
	return msg.Commit(n)
}

// Close removes this publisher's registration from the topic, allowing a
// new publisher to attach (Publisher's destructor in the original calls no
// explicit cleanup; RemovePublisher here makes that explicit for Go's lack
// of RAII).
func (p *Publisher) Close() error {
	return p.r.RemovePublisher()
}
