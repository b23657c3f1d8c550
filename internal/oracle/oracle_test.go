package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcOracle func(ctx context.Context, req *Request) (*Response, error)

func (f funcOracle) Call(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

func TestRecordExtendsBothViews(t *testing.T) {
	base := ledger.New().Extend(ledger.Message{Role: models.RoleCustomer, Content: "hello"})
	req := &Request{
		Role:            models.RoleBroker,
		UserInstruction: "identify the task",
		ImagePaths:      []string{"", "/tmp/form.png"},
		Ledger:          base,
	}

	next := Record(req, "raw answer")

	require.Equal(t, 1, base.Len())
	require.Equal(t, 2, next.Len())
	require.Equal(t, len(next.History()), len(next.Transcript()))

	last, _ := next.Last()
	assert.Equal(t, models.RoleBroker, last.Role)
	assert.Equal(t, "identify the task", last.Prompt)
	assert.Equal(t, []string{"/tmp/form.png"}, last.Images)
	assert.Equal(t, "broker: raw answer", next.Transcript()[1])
}

func TestBuildPrompt(t *testing.T) {
	l := ledger.New().
		Extend(ledger.Message{Role: models.RoleCustomer, Content: "I want to renew my permit"}).
		Note("invalid_field_value: broker.task_number")

	prompt := BuildPrompt(&Request{
		Role:              models.RoleCounter,
		SystemInstruction: "You staff the counter.",
		UserInstruction:   "Reply to the customer.",
		ImagePaths:        []string{"ref.png", "", "submitted.png"},
		Ledger:            l,
	})

	assert.Equal(t, "You staff the counter.\n\n"+
		"# Conversation so far\n"+
		"customer: I want to renew my permit\n"+
		"system: invalid_field_value: broker.task_number\n\n"+
		"# Attached images (in order)\n"+
		"1. ref.png\n"+
		"2. submitted.png\n\n"+
		"Reply to the customer.", prompt)
}

func TestBuildPromptMinimal(t *testing.T) {
	prompt := BuildPrompt(&Request{Role: models.RoleObserver, UserInstruction: "  decide  "})
	assert.Equal(t, "decide", prompt)
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	inner := funcOracle(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Raw: "ok", Ledger: Record(req, "ok")}, nil
	})

	resp, err := WithTimeout(inner, time.Second).Call(context.Background(), &Request{Role: models.RoleCounter})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Raw)
}

func TestWithTimeoutExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	inner := funcOracle(func(ctx context.Context, req *Request) (*Response, error) {
		<-release // ignores ctx, like a hung backend
		return nil, nil
	})

	_, err := WithTimeout(inner, 20*time.Millisecond).Call(context.Background(), &Request{Role: models.RoleObserver})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "observer")
}

func TestWithTimeoutCtxAwareInner(t *testing.T) {
	inner := funcOracle(func(ctx context.Context, req *Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := WithTimeout(inner, 20*time.Millisecond).Call(context.Background(), &Request{Role: models.RoleReviewer})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestWithTimeoutParentCancel(t *testing.T) {
	inner := funcOracle(func(ctx context.Context, req *Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(inner, time.Minute).Call(ctx, &Request{Role: models.RoleCounter})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeoutDisabled(t *testing.T) {
	inner := funcOracle(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, nil
	})
	assert.IsType(t, funcOracle(nil), WithTimeout(inner, 0))
}
