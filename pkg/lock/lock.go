package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// MarkerName is the lock marker's file name inside a project root.
	MarkerName = ".pallet.lock"

	// DefaultPollInterval is how often a waiter re-checks a held marker.
	DefaultPollInterval = 2 * time.Second
)

var (
	// ErrMarkerLost is returned by Release when the marker was removed or
	// replaced by someone else while the lock was held.
	ErrMarkerLost = errors.New("lock marker lost")

	// ErrNotLocked is returned when no marker exists.
	ErrNotLocked = errors.New("project is not locked")
)

// Holder describes the process holding a marker.
type Holder struct {
	Token      string    `json:"token"`
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Local reports whether the holder runs on this host.
func (h *Holder) Local() bool {
	return h.Host == hostname()
}

// Alive reports whether the holder is a live process on this host. Holders on
// other hosts are never reported alive because they cannot be checked.
func (h *Holder) Alive() bool {
	return h.Local() && h.PID > 0 && isProcessAlive(h.PID)
}

// MarkerPath returns the marker path for a project root.
func MarkerPath(root string) string {
	return filepath.Join(root, MarkerName)
}

// Locker acquires project locks.
type Locker struct {
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewLocker creates a Locker. A non-positive pollInterval selects
// DefaultPollInterval.
func NewLocker(logger zerolog.Logger, pollInterval time.Duration) *Locker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Locker{
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "lock").Logger(),
	}
}

// PollInterval returns the interval between marker checks.
func (l *Locker) PollInterval() time.Duration {
	return l.pollInterval
}

// Acquire blocks until the marker for root is created by this caller or ctx
// is done. Waiting is not an error; only a failure to create the marker for
// another reason is.
func (l *Locker) Acquire(ctx context.Context, root string) (*Handle, error) {
	path := MarkerPath(root)
	holder := Holder{
		Token:      uuid.NewString(),
		PID:        os.Getpid(),
		Host:       hostname(),
		AcquiredAt: time.Now().UTC(),
	}

	start := time.Now()
	var w *waiter
	defer func() {
		if w != nil {
			w.close()
		}
	}()

	for {
		holder.AcquiredAt = time.Now().UTC()
		err := createMarker(path, &holder)
		if err == nil {
			h := &Handle{
				path:     path,
				token:    holder.Token,
				waited:   w != nil,
				waitTime: time.Since(start),
				logger:   l.logger,
			}
			if h.waited {
				l.logger.Info().
					Str("marker", path).
					Dur("waited", h.waitTime).
					Msg("Acquired project lock after waiting")
			}
			return h, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock marker %s: %w", path, err)
		}

		if w == nil {
			l.noticeWait(path)
			w = l.watch(root, path)
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		case <-w.wake:
			timer.Stop()
		}
	}
}

// noticeWait logs the one-time notice for a caller that has to wait.
func (l *Locker) noticeWait(path string) {
	event := l.logger.Warn().
		Str("marker", path).
		Dur("poll_interval", l.pollInterval)

	if holder, err := readMarker(path); err == nil {
		event = event.
			Int("holder_pid", holder.PID).
			Str("holder_host", holder.Host).
			Time("holder_acquired_at", holder.AcquiredAt)
	}

	event.Msg("Waiting for project lock; remove the marker with 'pallet unlock' if its holder is gone")
}

// waiter turns removals of the marker into wake-ups.
type waiter struct {
	watcher *fsnotify.Watcher
	wake    chan struct{}
	done    chan struct{}
}

// watch starts an fsnotify watch on the project root. When the watch cannot
// be set up the returned waiter never wakes and polling alone is used.
func (l *Locker) watch(root, path string) *waiter {
	w := &waiter{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Debug().Err(err).Msg("File watcher unavailable, polling only")
		return w
	}
	if err := watcher.Add(root); err != nil {
		l.logger.Debug().Err(err).Str("root", root).Msg("Failed to watch project root, polling only")
		_ = watcher.Close()
		return w
	}
	w.watcher = watcher

	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Debug().Err(err).Msg("File watcher error")
			}
		}
	}()

	return w
}

func (w *waiter) close() {
	close(w.done)
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

// Handle is a held lock.
type Handle struct {
	path     string
	token    string
	waited   bool
	waitTime time.Duration
	logger   zerolog.Logger

	once sync.Once
	err  error
}

// Path returns the marker path.
func (h *Handle) Path() string {
	return h.path
}

// Waited reports whether Acquire found the marker held and had to wait.
func (h *Handle) Waited() bool {
	return h.waited
}

// WaitTime reports how long Acquire took.
func (h *Handle) WaitTime() time.Duration {
	return h.waitTime
}

// Release removes the marker if it still belongs to this handle. It is safe
// to call more than once; later calls return the first call's result.
func (h *Handle) Release() error {
	h.once.Do(func() {
		h.err = h.release()
	})
	return h.err
}

func (h *Handle) release() error {
	holder, err := readMarker(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s was removed", ErrMarkerLost, h.path)
	}
	if err != nil {
		return fmt.Errorf("failed to read lock marker %s: %w", h.path, err)
	}
	if holder.Token != h.token {
		return fmt.Errorf("%w: %s is held by pid %d on %s", ErrMarkerLost, h.path, holder.PID, holder.Host)
	}

	if err := os.Remove(h.path); err != nil {
		return fmt.Errorf("failed to remove lock marker %s: %w", h.path, err)
	}

	h.logger.Debug().Str("marker", h.path).Msg("Released project lock")
	return nil
}

// Inspect returns the holder of root's marker, or ErrNotLocked.
func Inspect(root string) (*Holder, error) {
	path := MarkerPath(root)
	holder, err := readMarker(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock marker %s: %w", path, err)
	}
	return holder, nil
}

// ForceRelease removes root's marker regardless of its holder.
func ForceRelease(root string) error {
	path := MarkerPath(root)
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotLocked, root)
	}
	if err != nil {
		return fmt.Errorf("failed to remove lock marker %s: %w", path, err)
	}
	return nil
}

// createMarker creates path exclusively and writes holder into it.
func createMarker(path string, holder *Holder) error {
	data, err := json.Marshal(holder)
	if err != nil {
		return fmt.Errorf("failed to encode lock holder: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	_, werr := f.Write(append(data, '\n'))
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write lock marker: %w", werr)
	}
	return nil
}

func readMarker(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var holder Holder
	if err := json.Unmarshal(data, &holder); err != nil {
		return nil, fmt.Errorf("malformed lock marker: %w", err)
	}
	return &holder, nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}
