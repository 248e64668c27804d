package ring

import (
	"unsafe"

	"github.com/mbdds/mbdds/internal/wire"
)

func (r *Ring) subscriberSlot(idx int) unsafe.Pointer {
	return unsafe.Pointer(uintptr(r.base) + uintptr(wire.SubscriberSlotOffset(idx)))
}

func (r *Ring) subscriberNameBytes(idx int) []byte {
	off := wire.SubscriberSlotOffset(idx) + subNameOff
	return r.arena[off : off+wire.SubscriberNameSize]
}

// RegisterSubscriber attaches a subscriber under the segment semaphore,
// following spec.md §4.3.6's idempotent-attach / name-override / first-free
// rules.
func (r *Ring) RegisterSubscriber(id uint64, name string) (Subscriber, error) {
	if err := r.sem.Wait(); err != nil {
		return Subscriber{}, err
	}
	defer r.sem.Post()

	freeIdx := -1
	for i := 0; i < wire.MaxSubscribers; i++ {
		slot := r.subscriberSlot(i)
		slotID := wire.Load64(slot, subIDOff)

		switch {
		case slotID == id && id != 0:
			return Subscriber{slotBase: slot, id: id}, nil
		case slotID == 0:
			if freeIdx < 0 {
				freeIdx = i
			}
		case wire.ReadName(r.subscriberNameBytes(i)) == name:
			wire.Store64(slot, subIDOff, id)
			return Subscriber{slotBase: slot, id: id}, nil
		}
	}

	if freeIdx < 0 {
		return Subscriber{}, wire.NewCapacityError("subscriber table is full")
	}

	slot := r.subscriberSlot(freeIdx)
	wire.WriteName(r.subscriberNameBytes(freeIdx), name)
	wire.Store64(slot, subReadPosOff, 0)
	wire.Store64(slot, subLastSeqOff, 0)
	wire.Store64(slot, subTimestampOff, 0)
	wire.Store64(slot, subIDOff, id) // publishes the slot; must be last

	wire.Add32(r.base, hdrSubCountOff, 1)

	return Subscriber{slotBase: slot, id: id}, nil
}

// UnregisterSubscriber zeroes sub's slot under the segment semaphore
// (spec.md §4.3.6 unregistration).
func (r *Ring) UnregisterSubscriber(sub Subscriber) error {
	if err := r.sem.Wait(); err != nil {
		return err
	}
	defer r.sem.Post()

	if wire.Load64(sub.slotBase, subIDOff) != sub.id {
		return nil
	}

	wire.Store64(sub.slotBase, subReadPosOff, 0)
	wire.Store64(sub.slotBase, subLastSeqOff, 0)
	wire.Store64(sub.slotBase, subTimestampOff, 0)
	wire.Store64(sub.slotBase, subIDOff, 0)
	return nil
}

func (r *Ring) publisherNameBytes() []byte {
	return r.arena[hdrPublisherNmOff : hdrPublisherNmOff+wire.PublisherNameSize]
}

// SetPublisher registers id/name as the ring's single publisher under the
// segment semaphore (spec.md §4.3.7).
func (r *Ring) SetPublisher(id uint64, name string) error {
	if err := r.sem.Wait(); err != nil {
		return err
	}
	defer r.sem.Post()

	existingID := wire.Load64(r.base, hdrPublisherIDOff)
	if existingID != 0 {
		if wire.ReadName(r.publisherNameBytes()) == name {
			wire.Store64(r.base, hdrPublisherIDOff, id)
			return nil
		}
		return wire.NewPreconditionError("a different publisher is already registered")
	}

	wire.WriteName(r.publisherNameBytes(), name)
	wire.Store64(r.base, hdrPublisherIDOff, id)
	return nil
}

// RemovePublisher clears the ring's publisher registration.
func (r *Ring) RemovePublisher() error {
	if err := r.sem.Wait(); err != nil {
		return err
	}
	defer r.sem.Post()

	wire.Store64(r.base, hdrPublisherIDOff, 0)
	name := r.publisherNameBytes()
	for i := range name {
		name[i] = 0
	}
	return nil
}
