package clock

import (
	"context"
	"time"
)

// Clock is the time source every wait in the bot goes through.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done, whichever comes first.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake is a virtual clock: Sleep advances time instantly.
type Fake struct {
	now    time.Time
	slept  time.Duration
	OnTick func(now time.Time) // called after every Sleep, test hook
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.now = f.now.Add(d)
	f.slept += d
	if f.OnTick != nil {
		f.OnTick(f.now)
	}
	return nil
}

func (f *Fake) Advance(d time.Duration) { f.now = f.now.Add(d) }

// Slept reports the total virtual time spent in Sleep.
func (f *Fake) Slept() time.Duration { return f.slept }
