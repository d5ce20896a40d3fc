package upload

import (
	"context"
	"testing"

	"github.com/danmuck/clowdctl/internal/protocol/frame"
	"github.com/danmuck/clowdctl/internal/testutil/testlog"
	"github.com/danmuck/clowdctl/internal/testutil/wiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUploadsNewestFirst(t *testing.T) {
	testlog.Start(t)
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	c, _ := newTestClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, mustCreds(t, "alice", "hunter2")))
	_, err := c.Upload(ctx, Request{Data: payload(10), DisplayName: "first.txt"})
	require.NoError(t, err)
	_, err = c.Upload(ctx, Request{Data: payload(10), DisplayName: "second.txt", Options: Options{ViewLimit: 3}})
	require.NoError(t, err)

	items, err := c.ListUploads(ctx, 0, 500)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second.txt", items[0].DisplayName)
	require.NotNil(t, items[0].MaxViews)
	assert.Equal(t, 3, *items[0].MaxViews)
	assert.Equal(t, "first.txt", items[1].DisplayName)
	assert.Equal(t, "https://clowd.test/u/"+items[1].Key, items[1].URL)
	assert.False(t, items[1].UploadDate.IsZero())

	req := srv.Frames()[len(srv.Frames())-1]
	assert.Equal(t, frame.CmdMyUploads, req.Command)
	assert.Equal(t, "50", req.Headers.Get(frame.HeaderCount))
	assert.Equal(t, "0", req.Headers.Get(frame.HeaderOffset))

	items, err = c.ListUploads(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "first.txt", items[0].DisplayName)
}

func TestListUploadsUnauthenticatedFails(t *testing.T) {
	testlog.Start(t)
	srv := wiretest.Start(t, wiretest.NewService("alice", "hunter2").Handle)
	c, _ := newTestClient(t, srv)

	items, err := c.ListUploads(context.Background(), 0, 10)
	assert.Error(t, err)
	assert.Nil(t, items)
	assert.Nil(t, c.pool.Idle())
}

func TestListUploadsBadPayload(t *testing.T) {
	testlog.Start(t)
	srv := wiretest.Start(t, func(st *wiretest.Stream) {
		st.Serve(func(frame.Frame) (frame.Frame, bool) {
			return frame.New(frame.CmdUploads).WithText("not json"), true
		})
	})
	c, _ := newTestClient(t, srv)

	_, err := c.ListUploads(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrInvalidListing)
}
