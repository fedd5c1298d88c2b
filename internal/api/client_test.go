package api_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semefo/internal/api"
)

func TestClientAgainstRouter(t *testing.T) {
	f := newRouter(t, "secret")
	server := httptest.NewServer(f.handler)
	t.Cleanup(server.Close)
	ctx := context.Background()

	client := api.NewClient(server.URL, "secret")
	require.NoError(t, client.Health(ctx))

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)

	resp, err := client.Enqueue(ctx, api.EnqueueRequest{Expediente: "EXP7", SessionID: 2, Kind: "video"})
	require.NoError(t, err)
	assert.True(t, resp.Created)

	tasks, err := client.List(ctx, []string{"pending", "failed"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "video", tasks[0].Kind)

	count, err := client.Retry(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = client.Enqueue(ctx, api.EnqueueRequest{Expediente: "EXP7", SessionID: 2, Kind: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")

	_, err = api.NewClient(server.URL, "wrong").Status(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestClientUnreachable(t *testing.T) {
	server := httptest.NewServer(nil)
	addr := server.Listener.Addr().String()
	server.Close()

	err := api.NewClient(addr, "").Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrDaemonUnavailable))
}
