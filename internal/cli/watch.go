package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veolinan/triage"
)

// settle is how long a burst of bank changes is collapsed into one reload.
const settle = 100 * time.Millisecond

// WatchBank revalidates the bank after every change until ctx is done.
// onChange receives the fresh reports.
func WatchBank(ctx context.Context, eng *triage.Engine, logger *slog.Logger, onChange func([]PartitionReport, error)) error {
	events, err := eng.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-events:
			if !ok {
				return nil
			}
			logger.Info("change detected", "key", key)
			if !drain(ctx, events) {
				return nil
			}
			onChange(ValidateBank(ctx, eng))
		}
	}
}

// drain swallows events arriving within the settle window. It reports
// false when the channel closed or ctx ended.
func drain(ctx context.Context, events <-chan string) bool {
	timer := time.NewTimer(settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-events:
			if !ok {
				return false
			}
			timer.Reset(settle)
		case <-timer.C:
			return true
		}
	}
}
