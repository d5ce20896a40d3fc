package upload

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/clowdctl/internal/legacyhash"
	"github.com/danmuck/clowdctl/internal/protocol/frame"
	"github.com/danmuck/clowdctl/internal/protocol/session"
)

const (
	modeSingle  = "single"
	modeChunked = "chunked"
)

// Upload sends req and returns the server's action link. Progress goes to
// the configured Sink. On any failure the progress record is marked failed
// and the connection is closed rather than pooled.
func (c *Client) Upload(ctx context.Context, req Request) (Result, error) {
	if err := c.validate.Struct(req); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	mode := modeSingle
	if Chunked(len(req.Data)) {
		mode = modeChunked
	}
	log := c.log.With().Str("name", req.DisplayName).Int("bytes", len(req.Data)).Str("mode", mode).Logger()
	handle := c.sink.Create(viewName(req.DisplayName))
	start := time.Now()
	log.Debug().Msg("upload started")

	res, err := c.transfer(ctx, handle, req)
	c.metrics.RecordTransfer(mode, err, time.Since(start))
	if err != nil {
		c.sink.Fail(handle, err.Error())
		log.Warn().Err(err).Msg("upload failed")
		return Result{}, err
	}
	c.sink.Complete(handle, res.ActionLink)
	log.Info().Str("link", res.ActionLink).Dur("took", time.Since(start)).Msg("upload complete")
	return res, nil
}

func (c *Client) transfer(ctx context.Context, handle Handle, req Request) (Result, error) {
	conn, err := c.session(ctx, true)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if Chunked(len(req.Data)) {
		res, err = c.sendChunked(ctx, conn, handle, req)
	} else {
		res, err = c.sendSingle(ctx, conn, handle, req)
	}
	c.pool.Release(conn, err != nil)
	return res, err
}

func (c *Client) sendSingle(ctx context.Context, conn *session.Conn, handle Handle, req Request) (Result, error) {
	n := len(req.Data)
	if err := conn.Write(ctx, c.uploadFrame(req).WithPayload(req.Data)); err != nil {
		return Result{}, err
	}
	c.sink.Update(handle, 50, int64(n))
	return c.awaitComplete(ctx, conn, handle, req)
}

func (c *Client) sendChunked(ctx context.Context, conn *session.Conn, handle Handle, req Request) (Result, error) {
	n := len(req.Data)
	spans := Plan(n)

	first := spans[0]
	head := c.uploadFrame(req).
		WithHeader(frame.HeaderPartitioned, "true").
		WithHeader(frame.HeaderFileSize, strconv.Itoa(n)).
		WithPayload(req.Data[first.Offset:first.End()])
	cont, err := conn.Request(ctx, head, frame.CmdContinue, c.cfg.Session.CompleteTimeout)
	if err != nil {
		return Result{}, err
	}
	if text, ok := cont.ErrorText(); ok {
		return Result{}, fmt.Errorf("%w: %q: %s", ErrRejected, req.DisplayName, text)
	}
	if ps, ok := c.sink.(ProvisionalSink); ok {
		ps.Provisional(handle, cont.Headers.Get(frame.HeaderDisplayName), cont.PayloadString())
	}
	c.sink.Update(handle, chunkProgress(first, n), int64(first.End()))

	for _, span := range spans[1:] {
		chunk := frame.New(frame.CmdChunk).
			WithHeader(frame.HeaderLast, strconv.FormatBool(span.Last)).
			WithPayload(req.Data[span.Offset:span.End()])
		if err := conn.Write(ctx, chunk); err != nil {
			return Result{}, err
		}
		c.sink.Update(handle, chunkProgress(span, n), int64(span.End()))
	}
	return c.awaitComplete(ctx, conn, handle, req)
}

func (c *Client) awaitComplete(ctx context.Context, conn *session.Conn, handle Handle, req Request) (Result, error) {
	resp, err := conn.Expect(ctx, frame.CmdComplete, c.cfg.Session.CompleteTimeout)
	if err != nil {
		return Result{}, err
	}
	if text, ok := resp.ErrorText(); ok {
		return Result{}, fmt.Errorf("%w: %q: %s", ErrRejected, req.DisplayName, text)
	}
	if !resp.HasPayload() {
		return Result{}, ErrNoActionLink
	}

	res := Result{
		ActionLink:  resp.PayloadString(),
		DisplayName: req.DisplayName,
		DisplayKey:  resp.Headers.Get(frame.HeaderDisplayKey),
		Bytes:       len(req.Data),
	}
	if name := resp.Headers.Get(frame.HeaderDisplayName); name != "" {
		res.DisplayName = name
	}
	c.sink.Update(handle, 100, int64(res.Bytes))
	return res, nil
}

func (c *Client) uploadFrame(req Request) frame.Frame {
	contentType := req.Options.ContentType
	if contentType == "" {
		contentType = c.cfg.ContentType
	}
	f := frame.New(frame.CmdUpload).
		WithHeader(frame.HeaderContentType, contentType).
		WithHeader(frame.HeaderDataHash, legacyhash.Sum(req.Data)).
		WithHeader(frame.HeaderDisplayName, req.DisplayName)
	return req.Options.apply(f)
}

// viewName is the label shown for a transfer. Names the server will replace
// with its own key are shown generically.
func viewName(displayName string) string {
	if strings.HasPrefix(strings.ToLower(displayName), "clowd-default") {
		return "Upload"
	}
	return displayName
}
