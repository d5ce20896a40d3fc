package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Limits constrains frame decode memory use.
type Limits struct {
	MaxLineBytes    int
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes:    8 * 1024,
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxLineBytes <= 0 {
		l.MaxLineBytes = def.MaxLineBytes
	}
	if l.MaxPayloadBytes <= 0 {
		l.MaxPayloadBytes = def.MaxPayloadBytes
	}
	return l
}

// Marshal renders f in wire form.
func Marshal(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes f to w. CONTENT-LENGTH is derived from the payload, header
// keys are written upper-cased, and headers with empty values are skipped.
// Decode(Encode(f)) therefore drops empty-valued headers and loses padding
// around values; command, payload and non-empty trimmed headers survive.
func Encode(w io.Writer, f Frame) error {
	command := strings.TrimSpace(f.Command)
	if command == "" || strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, f.Command)
	}

	headers := f.Headers.Clone()
	if len(f.Payload) > 0 {
		headers.Set(HeaderContentLength, strconv.Itoa(len(f.Payload)))
	} else {
		headers.Del(HeaderContentLength)
	}

	keys := make([]string, 0, len(headers))
	for k, v := range headers {
		if v == "" {
			continue
		}
		if k == "" || strings.ContainsAny(k, ":\r\n") {
			return fmt.Errorf("%w: key %q", ErrInvalidHeader, k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: value for %q", ErrInvalidHeader, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var head strings.Builder
	head.WriteString(command)
	head.WriteByte('\n')
	for _, k := range keys {
		head.WriteString(strings.ToUpper(k))
		head.WriteString(": ")
		head.WriteString(headers[k])
		head.WriteByte('\n')
	}
	head.WriteByte('\n')

	if _, err := io.WriteString(w, head.String()); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads one frame from r. A blank command line or a clean EOF before
// any byte of the frame yields ErrStreamEnd. Header values are trimmed of
// surrounding whitespace.
func Decode(r *bufio.Reader, limits Limits) (Frame, error) {
	limits = limits.withDefaults()

	line, err := readLine(r, limits.MaxLineBytes)
	if err != nil {
		if errors.Is(err, io.EOF) && line == "" {
			return Frame{}, ErrStreamEnd
		}
		if !errors.Is(err, io.EOF) {
			return Frame{}, err
		}
	}
	command := strings.TrimSpace(line)
	if command == "" {
		return Frame{}, ErrStreamEnd
	}
	if !utf8.ValidString(command) {
		return Frame{}, fmt.Errorf("%w: command is not utf-8", ErrMalformedFrame)
	}

	f := New(command)
	for {
		line, err := readLine(r, limits.MaxLineBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("%w: header line %q has no ':'", ErrMalformedFrame, strings.TrimSpace(line))
		}
		f.Headers.Set(key, strings.TrimSpace(value))
	}

	n, ok, err := f.ContentLength()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: content-length %q", err, f.Headers.Get(HeaderContentLength))
	}
	if !ok {
		return f, nil
	}
	if n == 0 {
		f.Headers.Del(HeaderContentLength)
		return f, nil
	}
	if n > limits.MaxPayloadBytes {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	f.Payload = payload
	return f, nil
}

// readLine returns bytes up to (not including) the next '\n'. A partial
// line before EOF is returned together with io.EOF.
func readLine(r *bufio.Reader, max int) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(buf)+len(chunk) > max+1 {
			return "", ErrLineTooLong
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return string(buf[:len(buf)-1]), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return string(buf), err
		}
	}
}
