package dds

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/mbdds/mbdds/internal/ring"
)

// MessageCallback is invoked once per message delivered to a subscribed
// worker goroutine, mirroring the original's MessageCallback
// std::function<void(const void*, size_t, uint64_t)>.
type MessageCallback func(data []byte, timestamp uint64)

// Subscriber receives messages from one topic's ring buffer, ported from
// original_source/src/MB_DDF/DDS/Subscriber.{h,cpp}. Unlike the original's
// dedicated std::thread, the worker runs as a goroutine (spec.md §5
// "(expansion) Goroutine model") unless BindToCPU pins it to a specific CPU.
type Subscriber struct {
	topicID   uint32
	topicName string
	id        uint64
	name      string
	r         *ring.Ring
	sub       ring.Subscriber

	subscribed atomic.Bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	cpuID      atomic.Int32
}

// Subscriber attaches to (registering if needed) the named topic and
// registers this participant in its subscriber table, following
// DDSCore::create_subscriber.
func (c *Core) Subscriber(topicName string, subscriberName string) (*Subscriber, error) {
	if subscriberName == "" {
		subscriberName = c.procName
	}

	r, err := c.topicRing(topicName)
	if err != nil {
		return nil, err
	}

	topic, _ := c.reg.Lookup(topicName)
	id := newParticipantID()

	sub, err := r.RegisterSubscriber(id, subscriberName)
	if err != nil {
		return nil, err
	}

	c.log.Infow("created subscriber", "topic", topicName, "subscriber_id", id, "subscriber_name", subscriberName)

	s := &Subscriber{
		topicID:   topic.ID,
		topicName: topicName,
		id:        id,
		name:      subscriberName,
		r:         r,
		sub:       sub,
	}
	s.cpuID.Store(-1)
	return s, nil
}

// TopicID returns the topic's unique identifier.
func (s *Subscriber) TopicID() uint32 { return s.topicID }

// TopicName returns the topic's name.
func (s *Subscriber) TopicName() string { return s.topicName }

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() uint64 { return s.id }

// Name returns the subscriber's name.
func (s *Subscriber) Name() string { return s.name }

// IsSubscribed reports whether a worker goroutine is currently running.
func (s *Subscriber) IsSubscribed() bool { return s.subscribed.Load() }

// BindToCPU pins the subscriber's future worker goroutine to cpuID. It must
// be called before Subscribe; the original's bind_to_cpu operates on an
// already-running std::thread, but Go offers no portable way to set another
// goroutine's OS-thread affinity after the fact, so the pin is applied by
// the worker itself via runtime.LockOSThread + unix.SchedSetaffinity on its
// first iteration.
func (s *Subscriber) BindToCPU(cpuID int) error {
	s.cpuID.Store(int32(cpuID))
	return nil
}

// Subscribe starts a worker goroutine that polls the ring for new messages
// and invokes callback for each one (Subscriber::subscribe /
// Subscriber::worker_loop). A nil callback starts no worker; messages are
// then consumed only through Read, which never requires Subscribe.
func (s *Subscriber) Subscribe(callback MessageCallback) error {
	if callback == nil {
		return nil
	}
	if s.subscribed.Swap(true) {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.workerLoop(callback)
	return nil
}

// Unsubscribe stops the worker goroutine and blocks until it has exited.
// It broadcasts on the ring's notification word before joining, the same
// way Subscriber::unsubscribe calls notify_subscribers() in the original,
// so a worker parked in an indefinite WaitForMessage wakes up and notices
// stopCh instead of blocking forever.
func (s *Subscriber) Unsubscribe() {
	if !s.subscribed.Swap(false) {
		return
	}
	close(s.stopCh)
	s.r.WakeWaiters()
	<-s.doneCh
}

// Close unregisters the subscriber, stopping its worker if one is running.
func (s *Subscriber) Close() error {
	s.Unsubscribe()
	return s.r.UnregisterSubscriber(s.sub)
}

func (s *Subscriber) workerLoop(callback MessageCallback) {
	defer close(s.doneCh)

	if cpu := int(s.cpuID.Load()); cpu >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var set unix.CPUSet
		set.Zero()
		set.Set(cpu)
		unix.SchedSetaffinity(0, &set)
	}

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		ok, err := s.r.WaitForMessage(s.sub, 0)
		if err != nil || !ok {
			continue
		}

		for {
			rec, err := s.r.ReadNext(s.sub)
			if err != nil {
				break
			}
			if callback != nil {
				callback(rec.Data, rec.Timestamp)
			}
		}
	}
}

// Read reads one message directly, bypassing the callback worker
// (Subscriber::read). latest selects ReadLatest (drop any backlog) over
// ReadNext (strict in-order delivery).
func (s *Subscriber) Read(latest bool) ([]byte, uint64, error) {
	var rec ring.Record
	var err error
	if latest {
		rec, err = s.r.ReadLatest(s.sub)
	} else {
		rec, err = s.r.ReadNext(s.sub)
	}
	if err != nil {
		return nil, 0, err
	}
	return rec.Data, rec.Timestamp, nil
}

// UnreadCount reports how many published messages this subscriber has not
// yet consumed.
func (s *Subscriber) UnreadCount() uint64 {
	return s.r.UnreadCount(s.sub)
}
