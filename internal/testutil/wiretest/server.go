// Package wiretest runs in-process protocol servers for tests. Handlers see
// each accepted connection as a Stream; every frame a client sends is
// recorded on the Server for later assertions.
package wiretest

import (
	"bufio"
	"crypto/tls"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/clowdctl/internal/protocol/frame"
)

// Handler serves one accepted connection. The stream is closed when it
// returns.
type Handler func(st *Stream)

type Server struct {
	ln      net.Listener
	handler Handler

	mu       sync.Mutex
	accepted int
	frames   []frame.Frame
	streams  []*Stream

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Start listens on a loopback port and serves h until the test ends.
func Start(t testing.TB, h Handler) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return serve(t, ln, h)
}

// StartTLS is Start behind a TLS listener.
func StartTLS(t testing.TB, cfg *tls.Config, h Handler) *Server {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("listen tls: %v", err)
	}
	return serve(t, ln, h)
}

func serve(t testing.TB, ln net.Listener, h Handler) *Server {
	s := &Server{ln: ln, handler: h}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepted++
		st := &Stream{ID: s.accepted, conn: conn, r: bufio.NewReader(conn), srv: s}
		s.streams = append(s.streams, st)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer st.Close()
			s.handler(st)
		}()
	}
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Accepted counts connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Frames returns every frame received, across all connections, in order.
func (s *Server) Frames() []frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Commands lists the command of every received frame.
func (s *Server) Commands() []string {
	frames := s.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Command
	}
	return out
}

// Close stops accepting, drops open streams, and waits for handlers.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		_ = s.ln.Close()
		s.mu.Lock()
		streams := append([]*Stream(nil), s.streams...)
		s.mu.Unlock()
		for _, st := range streams {
			_ = st.Close()
		}
		s.wg.Wait()
	})
}

func (s *Server) record(f frame.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

// Stream is the server side of one client connection.
type Stream struct {
	ID   int
	conn net.Conn
	r    *bufio.Reader
	srv  *Server
}

// Read decodes the next client frame and records it.
func (st *Stream) Read() (frame.Frame, error) {
	f, err := frame.Decode(st.r, frame.DefaultLimits())
	if err != nil {
		return frame.Frame{}, err
	}
	st.srv.record(f)
	return f, nil
}

func (st *Stream) Send(f frame.Frame) error {
	return frame.Encode(st.conn, f)
}

// SendRaw writes bytes verbatim, for malformed-input tests.
func (st *Stream) SendRaw(raw string) error {
	_, err := st.conn.Write([]byte(raw))
	return err
}

func (st *Stream) Close() error {
	return st.conn.Close()
}

// Serve answers each received frame with reply until reply returns false or
// the client goes away.
func (st *Stream) Serve(reply func(f frame.Frame) (frame.Frame, bool)) {
	for {
		f, err := st.Read()
		if err != nil {
			return
		}
		resp, ok := reply(f)
		if !ok {
			return
		}
		if resp.Command == "" {
			continue
		}
		if err := st.Send(resp); err != nil {
			return
		}
	}
}
