package wiretest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/legacyhash"
	"github.com/danmuck/clowdctl/internal/protocol/frame"
)

// Service is a minimal upload server: LOGIN/AUTH/SESSIONCK, single-shot and
// partitioned UPLOAD, and MYUPLOADS listing. Protocol misuse is answered
// with an ERROR frame, which ends the stream.
type Service struct {
	Username     string
	PasswordHash string
	SessionKey   string
	Salt         string
	IV           string
	Endpoint     string
	// RequireAuth rejects uploads from unauthenticated streams.
	RequireAuth bool

	mu      sync.Mutex
	uploads []Upload
}

// Upload is one stored upload as the service saw it.
type Upload struct {
	Key         string
	DisplayName string
	Data        []byte
	Headers     frame.Headers
	Partitioned bool
	Chunks      int
	UploadedAt  time.Time
}

// listing mirrors the JSON object the real service returns for MYUPLOADS.
type listing struct {
	Key         string
	Url         string
	Hidden      bool
	DisplayName string
	UploadDate  time.Time
	ValidUntil  *time.Time
	MaxViews    *int
	Views       int
}

// NewService returns a service that accepts the given user.
func NewService(username, password string) *Service {
	return &Service{
		Username:     username,
		PasswordHash: auth.HashPassword(password),
		SessionKey:   "SESSION-" + strings.ToUpper(username),
		Salt:         "S4LT",
		IV:           "IV0123456789",
		Endpoint:     "https://clowd.test",
	}
}

func (svc *Service) Uploads() []Upload {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]Upload(nil), svc.uploads...)
}

// Handle is a Handler serving the protocol on st.
func (svc *Service) Handle(st *Stream) {
	var (
		authenticated bool
		loginPending  bool
		pending       *Upload
		pendingSize   int
	)
	fail := func(msg string) {
		_ = st.Send(frame.New(frame.CmdError).WithText(msg))
	}

	for {
		f, err := st.Read()
		if err != nil {
			return
		}
		switch strings.ToUpper(f.Command) {
		case frame.CmdSessionCK:
			valid := svc.SessionKey != "" && f.PayloadString() == svc.SessionKey
			if valid {
				authenticated = true
			}
			_ = st.Send(frame.New(frame.CmdSessionCKResp).WithHeader(frame.HeaderValid, strconv.FormatBool(valid)))

		case frame.CmdLogin:
			if !strings.EqualFold(f.PayloadString(), svc.Username) {
				_ = st.Send(frame.New(frame.CmdLoginResp).WithHeader(frame.HeaderError, "no user"))
				continue
			}
			loginPending = true
			_ = st.Send(frame.New(frame.CmdLoginResp).
				WithHeader(frame.HeaderSalt, svc.Salt).
				WithHeader(frame.HeaderIV, svc.IV))

		case frame.CmdAuth:
			if !loginPending {
				fail("A call to AUTH must be preceded by a call to LOGIN")
				return
			}
			loginPending = false
			if f.PayloadString() != auth.ChallengeResponse(svc.PasswordHash, svc.Salt, svc.IV) {
				_ = st.Send(frame.New(frame.CmdAuthResp).WithHeader(frame.HeaderError, "invalid password"))
				continue
			}
			authenticated = true
			_ = st.Send(frame.New(frame.CmdAuthResp).
				WithHeader("username", svc.Username).
				WithHeader("email", svc.Username+"@clowd.test").
				WithHeader("subscription", "1").
				WithHeader("uploads", strconv.Itoa(len(svc.Uploads()))).
				WithText(svc.SessionKey))

		case frame.CmdUpload:
			if svc.RequireAuth && !authenticated {
				fail("Must be authenticated to upload")
				return
			}
			if !f.Headers.Has(frame.HeaderDisplayName) || !f.Headers.Has(frame.HeaderDataHash) || !f.HasPayload() {
				fail("Request missing required packet headers.")
				return
			}
			up := Upload{
				Key:         svc.nextKey(),
				DisplayName: f.Headers.Get(frame.HeaderDisplayName),
				Data:        append([]byte(nil), f.Payload...),
				Headers:     f.Headers.Clone(),
				Partitioned: f.Headers.Bool(frame.HeaderPartitioned),
				UploadedAt:  time.Now(),
			}
			if up.Partitioned {
				size, err := strconv.Atoi(f.Headers.Get(frame.HeaderFileSize))
				if err != nil {
					fail("bad file-size")
					return
				}
				pending, pendingSize = &up, size
				_ = st.Send(svc.reply(frame.CmdContinue, up))
				continue
			}
			if legacyhash.Sum(up.Data) != strings.ToUpper(f.Headers.Get(frame.HeaderDataHash)) {
				fail("Payload doesn't equal precomputed hash")
				return
			}
			svc.store(up)
			_ = st.Send(svc.reply(frame.CmdComplete, up))

		case frame.CmdChunk:
			if pending == nil {
				fail("No upload in progress")
				return
			}
			pending.Data = append(pending.Data, f.Payload...)
			pending.Chunks++
			if !f.Headers.Bool(frame.HeaderLast) {
				continue
			}
			up := *pending
			pending = nil
			if len(up.Data) != pendingSize || legacyhash.Sum(up.Data) != strings.ToUpper(up.Headers.Get(frame.HeaderDataHash)) {
				fail("Payload doesn't equal precomputed hash")
				return
			}
			svc.store(up)
			_ = st.Send(svc.reply(frame.CmdComplete, up))

		case frame.CmdMyUploads:
			if !authenticated {
				fail("Must be authenticated to call MYUPLOADS")
				return
			}
			_ = st.Send(svc.list(f.Headers))

		default:
			fail("unknown command " + f.Command)
			return
		}
	}
}

func (svc *Service) nextKey() string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return strconv.FormatInt(int64(len(svc.uploads)+1000), 36)
}

func (svc *Service) store(up Upload) {
	svc.mu.Lock()
	svc.uploads = append(svc.uploads, up)
	svc.mu.Unlock()
}

func (svc *Service) reply(command string, up Upload) frame.Frame {
	return frame.New(command).
		WithHeader(frame.HeaderDisplayName, up.DisplayName).
		WithHeader(frame.HeaderDisplayKey, up.Key).
		WithText(fmt.Sprintf("%s/u/%s", svc.Endpoint, up.Key))
}

func (svc *Service) list(h frame.Headers) frame.Frame {
	offset, _ := strconv.Atoi(h.Get(frame.HeaderOffset))
	count := 10
	if raw := h.Get(frame.HeaderCount); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			count = min(n, 50)
		}
	}

	uploads := svc.Uploads()
	out := make([]listing, 0, count)
	for i := len(uploads) - 1 - offset; i >= 0 && len(out) < count; i-- {
		up := uploads[i]
		item := listing{
			Key:         up.Key,
			Url:         fmt.Sprintf("%s/u/%s", svc.Endpoint, up.Key),
			Hidden:      up.Headers.Bool(frame.HeaderDirect),
			DisplayName: up.DisplayName,
			UploadDate:  up.UploadedAt,
		}
		if n, err := strconv.Atoi(up.Headers.Get(frame.HeaderViewLimit)); err == nil {
			item.MaxViews = &n
		}
		out = append(out, item)
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(out)
	return frame.New(frame.CmdUploads).
		WithHeader(frame.HeaderCount, strconv.Itoa(count)).
		WithPayload(bytes.TrimSpace(buf.Bytes()))
}
