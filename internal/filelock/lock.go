// Package filelock provides a cross-process exclusive lock backed by a file,
// used to keep two nodes sharing one index from draining the queue at once.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"indexq/internal/ports"
)

var _ ports.Locker = (*Lock)(nil)

var ErrNotHeld = errors.New("lock not held")

type Lock struct {
	path string

	mu    sync.Mutex
	f     *os.File
	owner string
}

func New(path string) *Lock {
	return &Lock{path: path}
}

func (l *Lock) Path() string { return l.path }

// TryAcquire takes the lock without blocking. It returns false when another
// handle, in this or any other process, already holds it.
func (l *Lock) TryAcquire(owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return false, nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	ok, err := tryLock(f)
	if err != nil || !ok {
		f.Close()
		return false, err
	}

	if err := writeOwner(f, owner); err != nil {
		_ = unlock(f)
		f.Close()
		return false, err
	}
	l.f = f
	l.owner = owner
	return true, nil
}

func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ErrNotHeld
	}
	f := l.f
	l.f = nil
	l.owner = ""

	// the file stays on disk; removing it would let a waiter lock an orphaned inode
	_ = f.Truncate(0)
	uerr := unlock(f)
	cerr := f.Close()
	return errors.Join(uerr, cerr)
}

// Owner reads the owner token recorded by the current or last holder.
func (l *Lock) Owner() (string, error) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line), nil
}

func writeOwner(f *os.File, owner string) error {
	host, _ := os.Hostname()
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	_, err := f.WriteAt([]byte(fmt.Sprintf("%s\nhost=%s pid=%d since=%s\n",
		owner, host, os.Getpid(), time.Now().UTC().Format(time.RFC3339))), 0)
	if err != nil {
		return fmt.Errorf("write lock owner: %w", err)
	}
	return nil
}
