package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, raw []byte) Frame {
	t.Helper()
	f, err := Decode(bufio.NewReader(bytes.NewReader(raw)), DefaultLimits())
	require.NoError(t, err)
	return f
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	binary := make([]byte, 300)
	for i := range binary {
		binary[i] = byte(i)
	}
	cases := []Frame{
		New(CmdMyUploads),
		New(CmdLogin).WithText("alice"),
		New(CmdUpload).
			WithHeader(HeaderDisplayName, "shot.png").
			WithHeader(HeaderDataHash, "ABCDEF").
			WithHeader("X-Custom", "with: colon").
			WithPayload(binary),
		New(CmdChunk).WithHeader(HeaderLast, "true").WithPayload([]byte("line1\nline2\n\n")),
	}
	for _, in := range cases {
		t.Run(in.Command, func(t *testing.T) {
			raw, err := Marshal(in)
			require.NoError(t, err)

			out := decodeAll(t, raw)
			assert.Equal(t, in.Command, out.Command)
			assert.Equal(t, in.Payload, out.Payload)
			for k, v := range in.Headers {
				assert.Equal(t, v, out.Headers.Get(k), "header %s", k)
			}
			if in.HasPayload() {
				n, ok, err := out.ContentLength()
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, len(in.Payload), n)
				assert.Equal(t, in.Headers.Len()+1, out.Headers.Len())
			} else {
				assert.False(t, out.Headers.Has(HeaderContentLength))
				assert.Equal(t, in.Headers.Len(), out.Headers.Len())
			}
		})
	}
}

func TestEncodeWireLayout(t *testing.T) {
	raw, err := Marshal(New(CmdAuth).WithText("abc"))
	require.NoError(t, err)
	assert.Equal(t, "AUTH\nCONTENT-LENGTH: 3\n\nabc", string(raw))

	raw, err = Marshal(New(CmdSessionCKResp).WithHeader(HeaderValid, "true"))
	require.NoError(t, err)
	assert.Equal(t, "SESSIONCKRESP\nVALID: true\n\n", string(raw))
}

func TestEncodeRewritesStaleContentLength(t *testing.T) {
	in := New(CmdUpload).WithHeader("CONTENT-LENGTH", "999").WithPayload([]byte("four"))
	out := decodeAll(t, mustMarshal(t, in))
	assert.Equal(t, "4", out.Headers.Get(HeaderContentLength))
	assert.Equal(t, []byte("four"), out.Payload)

	empty := New(CmdUpload).WithHeader("content-length", "12")
	out = decodeAll(t, mustMarshal(t, empty))
	assert.False(t, out.Headers.Has(HeaderContentLength))
}

func TestEncodeSkipsEmptyHeaderValues(t *testing.T) {
	raw := mustMarshal(t, New(CmdUpload).WithHeader(HeaderDirect, "").WithHeader(HeaderDisplayName, "a"))
	assert.NotContains(t, string(raw), "DIRECT")
}

func TestRoundTripNormalizesHeaders(t *testing.T) {
	in := New(CmdUpload).
		WithHeader(HeaderDirect, "").
		WithHeader(HeaderDisplayName, "  padded  ")
	out := decodeAll(t, mustMarshal(t, in))
	assert.False(t, out.Headers.Has(HeaderDirect))
	assert.Equal(t, "padded", out.Headers.Get(HeaderDisplayName))
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	_, err := Marshal(Frame{})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = Marshal(New("BAD\nCMD"))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = Marshal(New(CmdUpload).WithHeader("a:b", "v"))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = Marshal(New(CmdUpload).WithHeader("k", "v\nINJECT: 1"))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestDecodeHeadersCaseInsensitiveLastWins(t *testing.T) {
	raw := "COMPLETE\nDisplay-Name: first\ndisplay-name :  second  \n\n"
	f := decodeAll(t, []byte(raw))
	assert.Equal(t, "second", f.Headers.Get("DISPLAY-NAME"))
	assert.Equal(t, 1, f.Headers.Len())
}

func TestDecodeSplitsOnFirstColon(t *testing.T) {
	f := decodeAll(t, []byte("CONTINUE\naction: http://host:8080/u/1\n\n"))
	assert.Equal(t, "http://host:8080/u/1", f.Headers.Get("action"))
}

func TestDecodeHeaderWithoutColonFails(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("LOGINRESP\nbroken header\n\n"))
	_, err := Decode(r, DefaultLimits())
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeBadContentLength(t *testing.T) {
	for _, raw := range []string{
		"AUTHRESP\nCONTENT-LENGTH: abc\n\n",
		"AUTHRESP\nCONTENT-LENGTH: -4\n\n",
	} {
		_, err := Decode(bufio.NewReader(strings.NewReader(raw)), DefaultLimits())
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestDecodeStreamEnd(t *testing.T) {
	for _, raw := range []string{"", "\n", "   \r\n", " \t\nLOGIN\n\n"} {
		_, err := Decode(bufio.NewReader(strings.NewReader(raw)), DefaultLimits())
		assert.ErrorIs(t, err, ErrStreamEnd, "%q", raw)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	for _, raw := range []string{
		"COMPLETE\nDISPLAY-NAME: x",
		"COMPLETE\nCONTENT-LENGTH: 10\n\nshort",
	} {
		_, err := Decode(bufio.NewReader(strings.NewReader(raw)), DefaultLimits())
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "%q: %v", raw, err)
	}
}

func TestDecodeLimits(t *testing.T) {
	limits := Limits{MaxLineBytes: 32, MaxPayloadBytes: 4}

	_, err := Decode(bufio.NewReader(strings.NewReader("COMPLETE\nCONTENT-LENGTH: 5\n\nhello")), limits)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	long := "COMPLETE\nDISPLAY-NAME: " + strings.Repeat("x", 64) + "\n\n"
	_, err = Decode(bufio.NewReader(strings.NewReader(long)), limits)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestDecodeSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, New(CmdContinue).WithText("link")))
	require.NoError(t, Encode(&buf, New(CmdComplete).WithHeader(HeaderDisplayName, "n").WithText("final")))

	r := bufio.NewReader(&buf)
	first, err := Decode(r, DefaultLimits())
	require.NoError(t, err)
	second, err := Decode(r, DefaultLimits())
	require.NoError(t, err)
	_, err = Decode(r, DefaultLimits())

	assert.Equal(t, CmdContinue, first.Command)
	assert.Equal(t, "final", second.PayloadString())
	assert.ErrorIs(t, err, ErrStreamEnd)
}

func TestFrameHelpers(t *testing.T) {
	f := New("error").WithHeader("Error", "bad thing")
	assert.True(t, f.IsFatal())
	text, ok := f.ErrorText()
	assert.True(t, ok)
	assert.Equal(t, "bad thing", text)

	_, ok = Frame{Command: CmdComplete}.ErrorText()
	assert.False(t, ok)

	h := Headers{}
	h.Set("Valid", "TRUE")
	assert.True(t, h.Bool(HeaderValid))
	h.Set(HeaderValid, "1")
	assert.True(t, h.Bool(HeaderValid))
	h.Set(HeaderValid, "false")
	assert.False(t, h.Bool(HeaderValid))
}

func mustMarshal(t *testing.T, f Frame) []byte {
	t.Helper()
	raw, err := Marshal(f)
	require.NoError(t, err)
	return raw
}
