package frontend

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/spboyer/servicecounter/internal/models"
)

const turnBuffer = 16

// Console is a line-oriented front end. A background goroutine reads in, so
// Poll never blocks.
type Console struct {
	out      io.Writer
	name     string
	spinner  bool
	turns    chan models.CustomerTurn
	drained  atomic.Bool
	quit     atomic.Bool
	done     chan struct{}
	doneOnce sync.Once

	mu   sync.Mutex
	busy *busyIndicator
}

// ConsoleOption configures a [Console].
type ConsoleOption func(*Console)

// WithCounterName sets the label printed in front of replies.
func WithCounterName(name string) ConsoleOption {
	return func(c *Console) { c.name = name }
}

// WithSpinner animates a busy indicator while the counter works. Leave it off
// when out is not a terminal.
func WithSpinner(enabled bool) ConsoleOption {
	return func(c *Console) { c.spinner = enabled }
}

// NewConsole starts reading customer lines from in.
func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		out:   out,
		name:  "counter",
		turns: make(chan models.CustomerTurn, turnBuffer),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.read(in)
	return c
}

func (c *Console) read(in io.Reader) {
	defer c.drained.Store(true)

	var comp composer
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		result := comp.submit(scanner.Text())
		if result.feedback != "" {
			c.println(result.feedback)
		}
		if result.quit {
			c.quit.Store(true)
			return
		}
		if !result.ready {
			continue
		}
		select {
		case c.turns <- result.turn:
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.println(fmt.Sprintf("input error: %v", err))
	}
}

// Poll implements [FrontEnd].
func (c *Console) Poll() (models.CustomerTurn, bool) {
	select {
	case turn := <-c.turns:
		return turn, true
	default:
		return models.CustomerTurn{}, false
	}
}

// Display implements [FrontEnd].
func (c *Console) Display(reply string) error {
	if c.quit.Load() {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	restart := c.busy != nil
	c.stopBusyLocked()
	if _, err := fmt.Fprintf(c.out, "%s: %s\n", c.name, reply); err != nil {
		return fmt.Errorf("writing reply: %w", err)
	}
	if restart {
		c.busy = startBusy(c.out, c.name+" is working...")
	}
	return nil
}

// SetBusy implements [FrontEnd].
func (c *Console) SetBusy(busy bool) {
	if !c.spinner {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !busy {
		c.stopBusyLocked()
		return
	}
	if c.busy == nil {
		c.busy = startBusy(c.out, c.name+" is working...")
	}
}

// Closed implements [FrontEnd]. End of input counts as leaving once every
// line read before it has been polled.
func (c *Console) Closed() bool {
	if c.quit.Load() {
		return true
	}
	select {
	case <-c.done:
		return true
	default:
	}
	return c.drained.Load() && len(c.turns) == 0
}

// Close implements [FrontEnd].
func (c *Console) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBusyLocked()
	return nil
}

func (c *Console) stopBusyLocked() {
	if c.busy != nil {
		c.busy.Stop()
		c.busy = nil
	}
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line) //nolint:errcheck
}
