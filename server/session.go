package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mathmate/tmjlink/out"
	"github.com/mathmate/tmjlink/strcoll"
	"github.com/mathmate/tmjlink/store"
	"github.com/mathmate/tmjlink/util"
	"github.com/pkg/errors"
	"go.elastic.co/apm"
)

// State of the session protocol.
type State int

const (
	Unbound State = iota
	Bound
	Terminated
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "Unbound"
	case Bound:
		return "Bound"
	case Terminated:
		return "Terminated"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// blocks larger than this are refused
const maxBlockSize = 64 << 20

// Session runs the protocol over one client connection.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	server *Server

	// guards state and id, read by the status dump
	mu    sync.Mutex
	state State
	id    string
}

func newSession(server *Server, conn net.Conn) *Session {
	return &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		server: server,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID is the session id the connection is bound to, or "".
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Session) bind(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.state = Bound
}

func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Terminated
}

// Serve greets the client and handles its commands until it quits, the connection breaks, or
// the server stops running. The server is checked before each command. It closes the connection.
func (s *Session) Serve() {
	logger := s.server.logger
	defer s.conn.Close()
	defer s.terminate()

	logger.Debugf("connection from %s", s.RemoteAddr())
	if err := out.ReplyOkay(s.conn); err != nil {
		return
	}
	for s.State() != Terminated && s.server.Running() {
		line, err := s.readLine()
		if err != nil {
			if err != io.EOF {
				logger.Debugf("connection from %s: %s", s.RemoteAddr(), err.Error())
			}
			break
		}
		cmd, arg := splitCommand(line)
		if err := s.dispatch(cmd, arg); err != nil {
			logger.Debugf("connection from %s: %s", s.RemoteAddr(), err.Error())
			break
		}
	}
	logger.Debugf("connection from %s closed", s.RemoteAddr())
}

// splitCommand separates the command from its argument at the first space.
func splitCommand(line string) (string, string) {
	return strcoll.SplitKV(line, " ")
}

func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}

// retryable tells whether a read that timed out should be tried again.
func (s *Session) retryable(err error) bool {
	return isTimeout(err) && s.server.Running()
}

func (s *Session) deadline() {
	s.conn.SetReadDeadline(time.Now().Add(s.server.opts.ReadTimeout))
}

// readLine returns the next line without its terminator.
func (s *Session) readLine() (string, error) {
	var line []byte
	for {
		s.deadline()
		chunk, err := s.reader.ReadBytes('\n')
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if !s.retryable(err) {
			return "", err
		}
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

// readBlock returns exactly the next n bytes.
func (s *Session) readBlock(n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		s.deadline()
		m, err := s.reader.Read(buf[read:])
		read += m
		if err != nil && !s.retryable(err) {
			return nil, err
		}
	}
	return buf, nil
}

func parseLength(cmd, arg string) (int, error) {
	n, err := util.Aton(arg, nil)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidLength, "%s %s", cmd, arg)
	}
	if n > maxBlockSize {
		return 0, errors.Wrapf(ErrInvalidLength, "%s %s exceeds %d bytes", cmd, arg, maxBlockSize)
	}
	return n, nil
}

// dispatch handles one command. Failures are replied to the client, the returned error is only
// for a broken connection.
func (s *Session) dispatch(cmd, arg string) error {
	ctx := context.Background()
	if tracer := s.server.opts.Tracer; tracer != nil {
		tx := tracer.StartTransaction(cmd, "command")
		defer tx.End()
		ctx = apm.ContextWithTransaction(ctx, tx)
	}

	w := s.conn
	state := s.State()
	switch {
	case cmd == "quit":
		s.terminate()
		return out.ReplyOkay(w, "Good Bye")

	case cmd == "sessid" && state == Unbound:
		id := strings.TrimSpace(arg)
		st, err := s.server.registry.GetOrCreate(ctx, id)
		if err != nil {
			return out.ReplyException(w, err.Error())
		}
		if err := st.Reconnect(ctx); err != nil {
			return out.ReplyException(w, err.Error())
		}
		s.bind(id)
		s.server.logger.Infof("connection from %s bound to session %s", s.RemoteAddr(), id)
		return out.ReplyOkay(w, "Session ID set to: "+id)

	case (cmd == "execute" || cmd == "image" || cmd == "intexec") && state == Bound:
		n, err := parseLength(cmd, arg)
		if err != nil {
			return out.ReplyException(w, err.Error())
		}
		body, err := s.readBlock(n)
		if err != nil {
			return err
		}
		var html string
		err = s.withStore(ctx, func(st *store.Store) error {
			var err error
			html, err = st.Evaluate(ctx, string(body), cmd == "image")
			return err
		})
		if err != nil {
			return out.ReplyException(w, err.Error())
		}
		if cmd == "intexec" && html != "" {
			if err := out.ReplyInline(w, []byte(html)); err != nil {
				return err
			}
		}
		return out.ReplyOkay(w)

	case cmd == "header" && state == Bound:
		var doc string
		err := s.withStore(ctx, func(st *store.Store) error {
			var err error
			if doc, err = st.Render(); err != nil {
				return err
			}
			if _, err := st.Save(doc); err != nil {
				s.server.logger.Errorf("session %s: %s", s.ID(), err.Error())
			}
			return nil
		})
		if err != nil {
			return out.ReplyException(w, err.Error())
		}
		if err := out.ReplyInline(w, []byte(doc)); err != nil {
			return err
		}
		return out.ReplyOkay(w)

	case cmd == "clear" && state == Bound:
		var n int
		err := s.withStore(ctx, func(st *store.Store) error {
			n = st.Release()
			return nil
		})
		return out.ReplyEither(w, err, fmt.Sprintf("Resources released: %d", n))

	case cmd == "reset" && state == Bound:
		_, err := s.server.registry.Reset(ctx, s.ID())
		if err == nil {
			s.server.logger.Infof("session %s reset", s.ID())
		}
		return out.ReplyEither(w, err)

	case cmd == "suggest" && state == Bound:
		var names []string
		err := s.withStore(ctx, func(st *store.Store) error {
			var err error
			names, err = st.Suggestions(ctx)
			return err
		})
		if err != nil {
			return out.ReplyException(w, err.Error())
		}
		return out.ReplySuggestions(w, names)

	default:
		return out.ReplyException(w, fmt.Sprintf("Invalid command (%s): %s", state, cmd))
	}
}

// withStore calls fn with the store of the session. If another connection reset the session in
// the meantime, fn is retried once with the new store.
func (s *Session) withStore(ctx context.Context, fn func(*store.Store) error) error {
	for attempt := 0; ; attempt++ {
		st, err := s.server.registry.GetOrCreate(ctx, s.ID())
		if err != nil {
			return err
		}
		err = fn(st)
		if errors.Cause(err) == store.ErrClosed && attempt == 0 {
			continue
		}
		return err
	}
}
