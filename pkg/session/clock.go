package session

import "time"

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, error) {}
