package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reactmesh/core"
)

func TestMockModel_ReplaysScript(t *testing.T) {
	boom := errors.New("503")
	m := NewMockModel("mock", "first").AddError(boom).AddResponse("third")
	ctx := context.Background()
	req := Request{Messages: []core.Message{core.NewUserMessage("hi")}}

	resp, err := Collect(ctx, m, req)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = Collect(ctx, m, req)
	assert.ErrorIs(t, err, boom)

	resp, err = Collect(ctx, m, req)
	require.NoError(t, err)
	assert.Equal(t, "third", resp.Text)

	_, err = Collect(ctx, m, req)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Equal(t, 4, m.Calls())
	assert.Equal(t, "hi", m.Requests()[0].Messages[0].Content)
	assert.Equal(t, Info{Name: "mock", Provider: "mock"}, m.Info())
}

func TestMockModel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, NewMockModel("mock", "never"), Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect_Streaming(t *testing.T) {
	m := NewMockModel("mock", "streamed")

	resp, err := Collect(context.Background(), m, Request{Config: Config{Stream: true}})
	require.NoError(t, err)
	assert.Equal(t, "streamed", resp.Text)
	assert.False(t, resp.Partial)
}

type partialOnly struct{}

func (partialOnly) Info() Info { return Info{Name: "partial"} }

func (partialOnly) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 2)
	errCh := make(chan error)

	respCh <- Response{Text: "Final ", Partial: true}
	respCh <- Response{Text: "Answer", Partial: true}

	close(respCh)
	close(errCh)

	return respCh, errCh
}

func TestCollect_PartialOnly(t *testing.T) {
	resp, err := Collect(context.Background(), partialOnly{}, Request{})
	require.NoError(t, err)
	assert.Equal(t, "Final Answer", resp.Text)
}

func TestFunc(t *testing.T) {
	echo := NewFunc("echo", func(_ context.Context, req Request) (string, error) {
		return req.Messages[len(req.Messages)-1].Content, nil
	})

	resp, err := Collect(context.Background(), echo, Request{Messages: []core.Message{core.NewUserMessage("ping")}})
	require.NoError(t, err)
	assert.Equal(t, "ping", resp.Text)
	assert.Equal(t, "func", echo.Info().Provider)

	down := NewFunc("down", func(context.Context, Request) (string, error) {
		return "", errors.New("down")
	})

	_, err = Collect(context.Background(), down, Request{})
	assert.EqualError(t, err, "down")
}
