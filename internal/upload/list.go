package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/danmuck/clowdctl/internal/protocol/frame"
)

// MaxListCount is the most uploads the server returns per page.
const MaxListCount = 50

// UploadInfo is one entry of the caller's upload history.
type UploadInfo struct {
	Key         string     `json:"Key"`
	URL         string     `json:"Url"`
	Hidden      bool       `json:"Hidden"`
	DisplayName string     `json:"DisplayName"`
	UploadDate  time.Time  `json:"UploadDate"`
	ValidUntil  *time.Time `json:"ValidUntil,omitempty"`
	MaxViews    *int       `json:"MaxViews,omitempty"`
	Views       int        `json:"Views"`
}

// ListUploads fetches a page of the authenticated user's uploads, newest
// first. count is clamped to 1..MaxListCount.
func (c *Client) ListUploads(ctx context.Context, offset, count int) ([]UploadInfo, error) {
	offset = max(offset, 0)
	count = min(max(count, 1), MaxListCount)

	conn, err := c.session(ctx, true)
	if err != nil {
		return nil, err
	}
	req := frame.New(frame.CmdMyUploads).
		WithHeader(frame.HeaderOffset, strconv.Itoa(offset)).
		WithHeader(frame.HeaderCount, strconv.Itoa(count))
	resp, err := conn.Request(ctx, req, frame.CmdUploads, c.cfg.Session.HandshakeTimeout)
	c.pool.Release(conn, err != nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("list uploads failed")
		return nil, err
	}

	var out []UploadInfo
	if !resp.HasPayload() {
		return out, nil
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidListing, err)
	}
	return out, nil
}
