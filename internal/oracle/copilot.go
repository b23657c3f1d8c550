package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/spboyer/servicecounter/internal/utils"
)

// CopilotOracle answers calls through the GitHub Copilot SDK. Every call runs
// in a fresh session; conversational context comes from the ledger, not from
// session history.
type CopilotOracle struct {
	model   string
	workDir string
	client  copilotClient

	startOnce sync.Once
	startErr  error
}

type CopilotOracleOptions struct {
	// NewCopilotClient replaces the SDK client, mostly for tests.
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
	// WorkingDirectory is used for calls without images. Defaults to the current directory.
	WorkingDirectory string
}

// NewCopilotOracle creates an oracle for model. A blank model lets the
// copilot CLI pick its own default.
func NewCopilotOracle(model string, options *CopilotOracleOptions) *CopilotOracle {
	clientOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	o := &CopilotOracle{model: model}

	if options == nil || options.NewCopilotClient == nil {
		o.client = newCopilotClient(clientOptions)
	} else {
		o.client = options.NewCopilotClient(clientOptions)
	}

	if options != nil {
		o.workDir = options.WorkingDirectory
	}
	return o
}

// Call implements [Oracle].
func (o *CopilotOracle) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("nil request passed to CopilotOracle.Call")
	}

	o.startOnce.Do(func() {
		o.startErr = o.client.Start(ctx)
	})
	if o.startErr != nil {
		return nil, fmt.Errorf("copilot failed to start: %w", o.startErr)
	}

	workDir, err := o.workingDirectory(req)
	if err != nil {
		return nil, err
	}

	session, err := o.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               o.model,
		OnPermissionRequest: approveAll,
		WorkingDirectory:    workDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", req.Role, err)
	}

	collector := &messageCollector{}
	unsubscribe := session.On(collector.On)
	defer unsubscribe()

	unsubscribe = session.On(utils.SessionToSlog)
	defer unsubscribe()

	attachments, err := imageAttachments(req.ImagePaths)
	if err != nil {
		return nil, err
	}

	final, err := session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt:      BuildPrompt(req),
		Attachments: attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", req.Role, err)
	}

	raw := collector.Text()
	if raw == "" && final != nil && final.Data.Content != nil {
		raw = *final.Data.Content
	}

	slog.Debug("Oracle call complete", "role", req.Role, "chars", len(raw))

	return &Response{
		Raw:    raw,
		Ledger: Record(req, raw),
	}, nil
}

// Close stops the underlying copilot client.
func (o *CopilotOracle) Close() error {
	if err := o.client.Stop(); err != nil {
		return fmt.Errorf("failed to stop copilot client: %w", err)
	}
	return nil
}

// workingDirectory picks the directory holding the first image, so the
// model can open attachments by relative path, and falls back to workDir.
func (o *CopilotOracle) workingDirectory(req *Request) (string, error) {
	if images := nonEmpty(req.ImagePaths); len(images) > 0 {
		abs, err := filepath.Abs(images[0])
		if err != nil {
			return "", fmt.Errorf("resolving image path %q: %w", images[0], err)
		}
		return filepath.Dir(abs), nil
	}

	if o.workDir != "" {
		return o.workDir, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// imageAttachments turns image paths into file attachments, keeping their
// order. Blank paths are skipped.
func imageAttachments(paths []string) ([]copilot.Attachment, error) {
	images := nonEmpty(paths)
	if len(images) == 0 {
		return nil, nil
	}
	attachments := make([]copilot.Attachment, 0, len(images))
	for _, p := range images {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving image path %q: %w", p, err)
		}
		attachments = append(attachments, copilot.Attachment{
			Type:        copilot.File,
			Path:        utils.Ptr(abs),
			DisplayName: utils.Ptr(filepath.Base(abs)),
		})
	}
	return attachments, nil
}

// messageCollector keeps the assistant messages of one session.
type messageCollector struct {
	mu    sync.Mutex
	parts []string
}

func (c *messageCollector) On(event copilot.SessionEvent) {
	if event.Type != copilot.AssistantMessage || event.Data.Content == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts = append(c.parts, *event.Data.Content)
}

func (c *messageCollector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.parts, "\n")
}

func approveAll(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	// value for 'Kind' came from the permissions_test.go in the Copilot SDK.
	return copilot.PermissionRequestResult{Kind: "approved"}, nil
}
