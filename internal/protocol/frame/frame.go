package frame

import (
	"errors"
	"strconv"
	"strings"
)

// Client-issued commands.
const (
	CmdLogin     = "LOGIN"
	CmdAuth      = "AUTH"
	CmdSessionCK = "SESSIONCK"
	CmdUpload    = "UPLOAD"
	CmdChunk     = "CHUNK"
	CmdMyUploads = "MYUPLOADS"
)

// Server responses.
const (
	CmdLoginResp     = "LOGINRESP"
	CmdAuthResp      = "AUTHRESP"
	CmdSessionCKResp = "SESSIONCKRESP"
	CmdContinue      = "CONTINUE"
	CmdComplete      = "COMPLETE"
	CmdUploads       = "UPLOADS"
	CmdError         = "ERROR"
)

// Header names. Keys are matched case-insensitively.
const (
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderDataHash      = "data-hash"
	HeaderDisplayName   = "display-name"
	HeaderDisplayKey    = "display-key"
	HeaderDirect        = "direct"
	HeaderViewLimit     = "view-limit"
	HeaderValidFor      = "valid-for"
	HeaderPartitioned   = "partitioned"
	HeaderFileSize      = "file-size"
	HeaderLast          = "last"
	HeaderIV            = "iv"
	HeaderSalt          = "salt"
	HeaderValid         = "valid"
	HeaderError         = "error"
	HeaderOffset        = "offset"
	HeaderCount         = "count"
)

var (
	ErrMalformedFrame  = errors.New("frame: malformed frame")
	ErrStreamEnd       = errors.New("frame: stream end")
	ErrLineTooLong     = errors.New("frame: line too long")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrInvalidCommand  = errors.New("frame: invalid command")
	ErrInvalidHeader   = errors.New("frame: invalid header")
)

// Headers holds frame headers under lower-cased keys.
type Headers map[string]string

func canonicalKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (h Headers) Get(key string) string {
	return h[canonicalKey(key)]
}

func (h Headers) Lookup(key string) (string, bool) {
	v, ok := h[canonicalKey(key)]
	return v, ok
}

func (h Headers) Has(key string) bool {
	_, ok := h[canonicalKey(key)]
	return ok
}

// Set stores value under key, replacing any entry that differs only in case.
func (h Headers) Set(key, value string) {
	h[canonicalKey(key)] = value
}

func (h Headers) Del(key string) {
	delete(h, canonicalKey(key))
}

func (h Headers) Len() int {
	return len(h)
}

func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Bool reports whether key holds a truthy value ("1" or "true").
func (h Headers) Bool(key string) bool {
	v := strings.TrimSpace(h.Get(key))
	return v == "1" || strings.EqualFold(v, "true")
}

// Frame is one protocol packet: a command line, headers, and an optional payload.
type Frame struct {
	Command string
	Headers Headers
	Payload []byte
}

func New(command string) Frame {
	return Frame{Command: command, Headers: Headers{}}
}

// WithPayload returns f carrying payload.
func (f Frame) WithPayload(payload []byte) Frame {
	f.Payload = payload
	return f
}

// WithText returns f carrying s as a UTF-8 payload.
func (f Frame) WithText(s string) Frame {
	f.Payload = []byte(s)
	return f
}

// WithHeader sets one header and returns f. Headers are allocated on demand.
func (f Frame) WithHeader(key, value string) Frame {
	if f.Headers == nil {
		f.Headers = Headers{}
	}
	f.Headers.Set(key, value)
	return f
}

func (f Frame) HasPayload() bool {
	return len(f.Payload) > 0
}

func (f Frame) PayloadString() string {
	return string(f.Payload)
}

// Is reports whether the frame carries command, ignoring case.
func (f Frame) Is(command string) bool {
	return strings.EqualFold(f.Command, command)
}

// IsFatal reports whether the frame is a stream-terminating ERROR.
func (f Frame) IsFatal() bool {
	return f.Is(CmdError)
}

// ErrorText returns the frame-scoped error header, if any.
func (f Frame) ErrorText() (string, bool) {
	if f.Headers == nil {
		return "", false
	}
	return f.Headers.Lookup(HeaderError)
}

// ContentLength parses the CONTENT-LENGTH header. ok is false when absent.
func (f Frame) ContentLength() (n int, ok bool, err error) {
	raw, ok := f.Headers.Lookup(HeaderContentLength)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, true, ErrMalformedFrame
	}
	return n, true, nil
}
