package common

import "errors"

// ErrStopped is returned by loops that observe a cancellation signal
// mid-iteration, matching the teacher's libcommon.ErrStopped sentinel.
var ErrStopped = errors.New("stopped")

// Stopped returns ErrStopped if quit has been closed/signaled, nil
// otherwise. Grounded on libcommon.Stopped(quit), used at every loop head
// in stage_log_index.go.
func Stopped(quit <-chan struct{}) error {
	if quit == nil {
		return nil
	}
	select {
	case <-quit:
		return ErrStopped
	default:
		return nil
	}
}
