package shmseg

import (
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/mbdds/mbdds/internal/wire"
)

// Sem is a named counting semaphore, initial value 1, backed by a single
// futex word living in its own tiny companion shared-memory mapping
// ("<segment_name>_sem", spec.md §4.1 step 4). It plays the role POSIX
// sem_open/sem_wait/sem_post/sem_getvalue play in the original C++, and is
// shared by internal/ring for the exact same wait/wake mechanics against
// the ring's notification word.
type Sem struct {
	fd    int
	data  []byte
	value *uint32
}

// semRegionSize is one cache line; only the first 4 bytes are used, the rest
// is padding so the futex word never shares a cache line with anything else
// mapped adjacently.
const semRegionSize = 64

func semPath(segmentName string) string {
	return shmPath(segmentName + "_sem")
}

// openSem creates or opens the named semaphore with initial value 1 and
// runs the stuck-semaphore recovery protocol (spec.md §4.1 step 5).
func openSem(segmentName string) (*Sem, error) {
	path := semPath(segmentName)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0666)
	if err != nil {
		return nil, wire.NewResourceError("open semaphore", err)
	}

	created, err := ensureSemInitialized(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, semRegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, wire.NewResourceError("mmap semaphore", err)
	}

	s := &Sem{fd: fd, data: data, value: (*uint32)(ptrAt(data, 0))}

	if created {
		*s.value = 1
	}

	if err := s.recoverIfStuck(segmentName); err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, err
	}

	return s, nil
}

func ensureSemInitialized(fd int) (created bool, err error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, wire.NewResourceError("fstat semaphore", err)
	}
	if st.Size == 0 {
		if err := unix.Ftruncate(fd, semRegionSize); err != nil {
			return false, wire.NewResourceError("ftruncate semaphore", err)
		}
		return true, nil
	}
	return false, nil
}

// recoverIfStuck implements spec.md §4.1 step 5: if the semaphore reads 0,
// another process may have died while holding it. A deterministic file
// lock serializes the recovery attempt across processes that notice the
// same condition concurrently.
func (s *Sem) recoverIfStuck(segmentName string) error {
	if s.Value() != 0 {
		return nil
	}

	lockPath := lockFilePath(segmentName + "_sem")
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return wire.NewResourceError("acquire recovery lock", err)
	}
	if !locked {
		// Another process is already running recovery; give it a
		// moment and move on — our own Wait() calls will simply block
		// until it finishes (or times out) like any other waiter.
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	defer func() {
		fl.Unlock()
		removeStaleLockFile(lockPath)
	}()

	if s.Value() != 0 {
		return nil
	}

	if err := s.TryWaitTimeout(20 * time.Millisecond); err != nil {
		if ErrTimedOut(err) {
			s.Post()
		}
		return nil
	}

	// Acquired it ourselves while probing: release immediately, the
	// semaphore was never actually stuck.
	s.Post()
	return nil
}

// Wait acquires the semaphore, blocking indefinitely.
func (s *Sem) Wait() error {
	for {
		if CAS32Dec(s.value) {
			return nil
		}
		if err := FutexWait(s.value, 0, 0); err != nil && !ErrTimedOut(err) {
			return err
		}
	}
}

// TryWaitTimeout acquires the semaphore or returns an error satisfying
// ErrTimedOut after d elapses.
func (s *Sem) TryWaitTimeout(d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if CAS32Dec(s.value) {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errTimedOut
		}
		if err := FutexWait(s.value, 0, remaining); err != nil && !ErrTimedOut(err) {
			return err
		}
	}
}

// Post releases the semaphore and wakes one waiter.
func (s *Sem) Post() {
	addUint32(s.value, 1)
	FutexWake(s.value, 1)
}

// Value returns the semaphore's current count.
func (s *Sem) Value() uint32 {
	return loadUint32(s.value)
}

// Close unmaps the semaphore's companion region. The backing file is never
// unlinked, matching Segment.Close.
func (s *Sem) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	if err != nil {
		return wire.NewResourceError("munmap semaphore", err)
	}
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
	return nil
}
