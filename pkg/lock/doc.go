// Package lock serializes build actions for a project across goroutines and
// processes sharing a build root.
//
// A lock is a marker file (MarkerName) in the project root, created with
// O_CREATE|O_EXCL so exactly one caller can hold it. The marker records the
// holder's token, pid, host and acquisition time in JSON. Callers that find
// the marker present wait: they poll at a fixed interval and are woken early
// by an fsnotify event when the marker is removed. The first wait is reported
// with a warning so a slow build can be told apart from a stale lock.
//
// There is no staleness timeout. A marker left behind by a crashed holder
// stays until it is cleared with ForceRelease (pallet unlock).
//
//	locker := lock.NewLocker(logger, lock.DefaultPollInterval)
//	handle, err := locker.Acquire(ctx, projectRoot)
//	if err != nil {
//		return err
//	}
//	defer handle.Release()
package lock
