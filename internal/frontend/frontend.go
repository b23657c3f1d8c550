// Package frontend collects customer turns and shows counter replies. Both
// implementations are polled by the session loop and never block it.
package frontend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spboyer/servicecounter/internal/models"
)

// ErrClosed is returned by Display once the customer has left.
var ErrClosed = errors.New("front end closed")

// FrontEnd is a customer-facing surface.
type FrontEnd interface {
	// Poll returns the next queued customer turn, if any.
	Poll() (models.CustomerTurn, bool)
	// Display shows a counter reply to the customer.
	Display(reply string) error
	// SetBusy toggles the "the counter is working" indicator.
	SetBusy(busy bool)
	// Closed reports whether the customer has left and every queued turn was polled.
	Closed() bool
	// Close shuts the front end down.
	Close() error
}

// composer turns raw input lines into customer turns. It understands two
// commands: "/image <path>" attaches a document to the next message and
// "/quit" ends the session.
type composer struct {
	pendingImage string
}

type composed struct {
	turn     models.CustomerTurn
	ready    bool
	quit     bool
	feedback string
}

func (c *composer) submit(line string) composed {
	line = strings.TrimSpace(line)
	if line == "" {
		return composed{}
	}

	if !strings.HasPrefix(line, "/") {
		turn := models.CustomerTurn{Text: line, ImagePath: c.pendingImage}
		c.pendingImage = ""
		return composed{turn: turn, ready: true}
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/quit", "/exit":
		return composed{quit: true}
	case "/image":
		if arg == "" {
			return composed{feedback: "usage: /image <path>"}
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return composed{feedback: fmt.Sprintf("cannot attach %s: %v", arg, err)}
		}
		info, err := os.Stat(abs)
		if err != nil {
			return composed{feedback: fmt.Sprintf("cannot attach %s: %v", arg, err)}
		}
		if info.IsDir() {
			return composed{feedback: fmt.Sprintf("cannot attach %s: is a directory", arg)}
		}
		c.pendingImage = abs
		return composed{feedback: fmt.Sprintf("attached %s; it will be sent with your next message", filepath.Base(abs))}
	case "/detach":
		c.pendingImage = ""
		return composed{feedback: "attachment removed"}
	default:
		return composed{feedback: fmt.Sprintf("unknown command %s (try /image, /detach or /quit)", cmd)}
	}
}
