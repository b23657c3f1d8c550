package frontend

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const frameInterval = 80 * time.Millisecond

// busyIndicator animates a spinner on one terminal line until stopped.
type busyIndicator struct {
	stop    chan struct{}
	cleared chan struct{}
	once    sync.Once
}

func startBusy(w io.Writer, message string) *busyIndicator {
	b := &busyIndicator{
		stop:    make(chan struct{}),
		cleared: make(chan struct{}),
	}
	go func() {
		i := 0
		for {
			select {
			case <-b.stop:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", len(message)+2)) //nolint:errcheck
				close(b.cleared)
				return
			case <-time.After(frameInterval):
				fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], message) //nolint:errcheck
				i++
			}
		}
	}()
	return b
}

// Stop clears the spinner line and waits until it is gone.
func (b *busyIndicator) Stop() {
	b.once.Do(func() { close(b.stop) })
	<-b.cleared
}
