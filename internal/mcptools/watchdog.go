package mcptools

import (
	"context"
	"os"
	"time"

	"bitledger/internal/logging"
)

const parentPollInterval = 2 * time.Second

// WatchParent cancels the server when the parent process dies, so a stdio
// client crash does not leave a zombie server behind.
func WatchParent(ctx context.Context, cancel context.CancelFunc) {
	ppid := os.Getppid()
	log := logging.New("mcptools")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(parentPollInterval):
				if os.Getppid() != ppid {
					log.Warn("parent process died, shutting down", "was_pid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
