package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heptio/workgroup"
	"github.com/mathmate/tmjlink/kernel"
	"github.com/mathmate/tmjlink/out"
	"github.com/mathmate/tmjlink/store"
	"github.com/pkg/errors"
	"go.elastic.co/apm"
	"golang.org/x/net/netutil"
)

var (
	ErrInvalidLength = errors.New("invalid byte count")
	ErrServerClosed  = errors.New("server closed")
)

type Options struct {
	// eg. "127.0.0.1:0" for an ephemeral port
	Listen   string
	CacheDir string
	// process that launched the server, 0 disables the probe
	HostPID int
	// how often the host process is probed
	AcceptTimeout time.Duration
	// how often sessions check whether the server is still running while waiting for input
	ReadTimeout time.Duration
	// 0 means no limit
	MaxConnections int

	Factory      kernel.Factory
	StoreOptions []store.Option
	Probe        HostProbe
	Logger       *out.Logger
	// optional
	Tracer *apm.Tracer
}

type Server struct {
	opts     Options
	logger   *out.Logger
	registry *Registry
	listener net.Listener

	running  int32
	stop     chan struct{}
	stopOnce sync.Once

	// running sessions
	wg       sync.WaitGroup
	sessions sync.Map
}

func New(opts Options) *Server {
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:0"
	}
	if opts.AcceptTimeout <= 0 {
		opts.AcceptTimeout = time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.Probe == nil {
		opts.Probe = PidProbe{}
	}
	return &Server{
		opts:     opts,
		logger:   opts.Logger,
		registry: NewRegistry(opts.CacheDir, opts.Factory, opts.Logger, opts.StoreOptions...),
		stop:     make(chan struct{}),
	}
}

// Start binds the listening socket and logs its port, which the launching process reads.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.opts.Listen)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if s.opts.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.opts.MaxConnections)
	}
	s.listener = l
	atomic.StoreInt32(&s.running, 1)
	s.logger.Infof("Server started on port: %d", port)
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Shutdown asks the server to stop, Run returns once every session ended. It can be called more than once.
func (s *Server) Shutdown() {
	atomic.StoreInt32(&s.running, 0)
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Run accepts connections until Shutdown is called or the host process is gone. Then it waits for all sessions
// to finish their current command and closes all stores.
func (s *Server) Run() error {
	if s.listener == nil {
		return errors.New("server not started")
	}

	var g workgroup.Group
	g.Add(s.acceptLoop)
	if s.opts.HostPID > 0 {
		g.Add(s.watchHost)
	}
	g.Add(func(stop <-chan struct{}) error {
		select {
		case <-stop:
		case <-s.stop:
		}
		return nil
	})
	err := g.Run()

	s.Shutdown()
	s.listener.Close()
	s.logger.Infof("waiting for %d connections to close", s.Connections())
	s.wg.Wait()
	n := s.registry.CloseAll()
	s.logger.Infof("shut down, %d stores closed", n)
	return err
}

func (s *Server) acceptLoop(stop <-chan struct{}) error {
	go func() {
		<-stop
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.Running() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				s.logger.Errorf("accept: %s", err.Error())
				time.Sleep(5 * time.Millisecond)
				continue
			}
			select {
			case <-stop:
				return nil
			default:
				return errors.Wrap(err, "accept")
			}
		}

		session := newSession(s, conn)
		s.sessions.Store(session, struct{}{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sessions.Delete(session)
			session.Serve()
		}()
	}
}

func (s *Server) watchHost(stop <-chan struct{}) error {
	ticker := time.NewTicker(s.opts.AcceptTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if !s.opts.Probe.Alive(s.opts.HostPID) {
				s.logger.Infof("host process %d is gone, shutting down", s.opts.HostPID)
				s.Shutdown()
				return nil
			}
		}
	}
}

// Connections is the number of open client connections.
func (s *Server) Connections() int {
	n := 0
	s.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Sessions returns the open sessions, in no particular order.
func (s *Server) Sessions() []*Session {
	var ss []*Session
	s.sessions.Range(func(k, _ interface{}) bool {
		ss = append(ss, k.(*Session))
		return true
	})
	return ss
}
