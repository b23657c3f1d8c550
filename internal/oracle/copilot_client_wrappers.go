package oracle

import (
	"context"

	copilot "github.com/github/copilot-sdk/go"
)

// copilotSession is the part of [*copilot.Session] the oracle needs.
type copilotSession interface {
	// On maps to [copilot.Session.On]
	On(handler copilot.SessionEventHandler) func()

	// SendAndWait maps to [copilot.Session.SendAndWait]
	SendAndWait(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error)
}

// copilotClient is the part of [*copilot.Client] the oracle needs.
type copilotClient interface {
	// CreateSession maps to [copilot.Client.CreateSession]
	CreateSession(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error)

	// Start maps to [copilot.Client.Start]
	Start(ctx context.Context) error

	// Stop maps to [copilot.Client.Stop]
	Stop() error
}

func newCopilotClient(clientOptions *copilot.ClientOptions) copilotClient {
	return &copilotClientWrapper{
		inner: copilot.NewClient(clientOptions),
	}
}

type copilotClientWrapper struct {
	inner *copilot.Client
}

func (w *copilotClientWrapper) CreateSession(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error) {
	sess, err := w.inner.CreateSession(ctx, config)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (w *copilotClientWrapper) Start(ctx context.Context) error {
	return w.inner.Start(ctx)
}

func (w *copilotClientWrapper) Stop() error {
	return w.inner.Stop()
}
