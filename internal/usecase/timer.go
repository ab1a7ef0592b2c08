package usecase

import "time"

type stopper interface {
	Stop() bool
}

// afterFunc schedules f on its own goroutine after d.
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}
