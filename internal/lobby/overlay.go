package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

// Overlay is the countdown box drawn over the lobby page. It only displays
// state; nothing reads it back.
type Overlay struct {
	driver browser.Driver
}

func (o Overlay) Inject(ctx context.Context) error {
	if _, err := o.driver.Evaluate(ctx, site.InjectOverlayScript, nil); err != nil {
		return fmt.Errorf("inject overlay: %w", err)
	}
	return nil
}

func (o Overlay) Show(ctx context.Context, text string) error {
	if _, err := o.driver.Evaluate(ctx, site.UpdateOverlayScript, text); err != nil {
		return fmt.Errorf("update overlay: %w", err)
	}
	return nil
}

// Countdown shows label followed by the remaining whole seconds, once per
// second, down to 1.
func (o Overlay) Countdown(ctx context.Context, clk clock.Clock, d time.Duration, label string) error {
	for i := int(d / time.Second); i > 0; i-- {
		if err := o.Show(ctx, fmt.Sprintf("%s: %ds", label, i)); err != nil {
			return err
		}
		if err := clk.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}
	return nil
}
