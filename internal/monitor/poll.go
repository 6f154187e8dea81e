package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
)

// Poll calls read every interval and fires changed whenever the result
// differs from the previous successful read. It stands in for a kernel
// notification on files that do not support inotify (sysfs, procfs).
func Poll(interval time.Duration, read func() (string, error), changed func(), logger *slog.Logger) stream.Handle {
	last, err := read()
	if err != nil {
		logger.Debug("initial poll failed", "err", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cur, err := read()
				if err != nil {
					logger.Debug("poll failed", "err", err)
					continue
				}
				if cur != last {
					last = cur
					changed()
				}
			case <-done:
				return
			}
		}
	}()

	return stream.HandleFunc(func() error {
		close(done)
		wg.Wait()
		return nil
	})
}
