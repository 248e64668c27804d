package shmseg

// SetDirsForTesting points the package at scratch directories instead of the
// real /dev/shm and /tmp, so tests in this package and in internal/registry
// and internal/ring never touch real shared-memory state. It returns a
// restore func that must be called to put the originals back.
//
// This is a deliberate test seam, not part of the runtime API: production
// code should never call it.
func SetDirsForTesting(shm, lock string) (restore func()) {
	origShm, origLock := shmDir, lockDir
	shmDir, lockDir = shm, lock
	return func() {
		shmDir, lockDir = origShm, origLock
	}
}
