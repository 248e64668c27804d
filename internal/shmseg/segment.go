// Package shmseg implements the Shared Segment Manager (spec.md §4.1): it
// creates or opens a named POSIX shared-memory object of a fixed size, maps
// it into the process, and owns the companion counting semaphore that
// serializes registry and subscriber/publisher registration mutations.
//
// Ported from original_source/src/MB_DDF/DDS/SharedMemory.cpp onto
// golang.org/x/sys/unix instead of glibc's shm_open/sem_open, since Linux
// implements POSIX shared-memory objects as plain files under /dev/shm.
package shmseg

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mbdds/mbdds/internal/wire"
)

// Segment is a mapped, named shared-memory region plus its companion
// mutual-exclusion semaphore.
type Segment struct {
	name string
	size uint64
	fd   int
	data []byte
	sem  *Sem
}

// shmDir is where Linux-implemented POSIX shared-memory objects live. It is
// a var, not a const, purely so tests can point it at a scratch directory
// instead of the real /dev/shm.
var shmDir = "/dev/shm"

// lockDir mirrors shmDir for the recovery file lock path (spec.md §6:
// "/tmp/<sem_name>.lock").
var lockDir = "/tmp"

// shmPath returns the backing-file path for a segment name such as
// "/mbdds_shm".
func shmPath(name string) string {
	return filepath.Join(shmDir, filepath.Base(name))
}

// Open creates or opens the named shared-memory segment, maps it
// read/write, and attaches its companion semaphore. size is the segment's
// required size; an existing segment of a different non-zero size is a
// ConfigError, never silently resized (spec.md §4.1 step 2).
func Open(name string, size uint64) (*Segment, error) {
	if size < wire.MinSegmentSize {
		return nil, wire.NewConfigError(fmt.Sprintf("segment size %d below minimum %d", size, wire.MinSegmentSize), nil)
	}

	fd, err := unix.Open(shmPath(name), unix.O_CREAT|unix.O_RDWR, 0666)
	if err != nil {
		return nil, wire.NewResourceError("open", err)
	}

	if err := ensureSize(fd, size); err != nil {
		unix.Close(fd)
		return nil, err
	}

	data, err := mmapPopulate(fd, size)
	if err != nil {
		unix.Close(fd)
		return nil, wire.NewResourceError("mmap", err)
	}

	sem, err := openSem(name)
	if err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, err
	}

	return &Segment{name: name, size: size, fd: fd, data: data, sem: sem}, nil
}

// OpenReadOnly attaches to an existing segment without creating it and maps
// it PROT_READ only; it never touches the semaphore, since read-only
// observers (spec.md §6 Monitor interface) never mutate shared state.
func OpenReadOnly(name string) (*Segment, error) {
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, wire.NewResourceError("open", err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, wire.NewResourceError("fstat", err)
	}
	size := uint64(st.Size)
	if size < wire.MinSegmentSize {
		unix.Close(fd)
		return nil, wire.NewConfigError("segment too small to be a valid mbdds segment", nil)
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, wire.NewResourceError("mmap", err)
	}

	return &Segment{name: name, size: size, fd: fd, data: data}, nil
}

func ensureSize(fd int, size uint64) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return wire.NewResourceError("fstat", err)
	}

	switch {
	case st.Size == 0:
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return wire.NewResourceError("ftruncate", err)
		}
	case uint64(st.Size) != size:
		return wire.NewConfigError(
			fmt.Sprintf("segment already exists with size %d, expected %d", st.Size, size),
			wire.ErrSizeMismatch,
		)
	}

	return nil
}

func mmapPopulate(fd int, size uint64) ([]byte, error) {
	flags := unix.MAP_SHARED
	if mapPopulate != 0 {
		flags |= mapPopulate
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil && flags&mapPopulate != 0 {
		// Some kernels/filesystems reject MAP_POPULATE on tmpfs under
		// constrained environments (e.g. certain sandboxes); retry
		// without it rather than failing the whole attach.
		data, err = unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	}
	return data, err
}

// mapPopulate is the MAP_POPULATE flag OR'd into the read/write mapping.
var mapPopulate = unix.MAP_POPULATE

// Base returns the mapping's base address as an unsafe.Pointer-compatible
// byte slice; callers in internal/registry and internal/ring index into it
// directly via internal/wire's offset helpers.
func (s *Segment) Base() []byte { return s.data }

// Size returns the segment's fixed size in bytes.
func (s *Segment) Size() uint64 { return s.size }

// Sem returns the segment's companion counting semaphore.
func (s *Segment) Sem() *Sem { return s.sem }

// Close unmaps the segment and closes its descriptors. The backing shared-
// memory object and semaphore are never unlinked: the segment persists
// across process exits by design (spec.md §4.1 Teardown).
func (s *Segment) Close() error {
	var firstErr error

	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil && firstErr == nil {
			firstErr = wire.NewResourceError("munmap", err)
		}
		s.data = nil
	}

	if s.sem != nil {
		if err := s.sem.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.fd >= 0 {
		if err := unix.Close(s.fd); err != nil && firstErr == nil {
			firstErr = wire.NewResourceError("close", err)
		}
		s.fd = -1
	}

	return firstErr
}

// lockFilePath returns the recovery file-lock path for semName under lockDir.
func lockFilePath(semName string) string {
	return filepath.Join(lockDir, semName+".lock")
}

// removeStaleLockFile best-effort unlinks the recovery lock file; failures
// are not fatal since the lock is only ever a recovery aid.
func removeStaleLockFile(path string) {
	_ = os.Remove(path)
}
