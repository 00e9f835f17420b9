package kernel

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/mathmate/tmjlink/out"
	"github.com/pkg/errors"
)

// how long the kernel has to exit on its own after its input is closed
const disconnectGrace = 2 * time.Second

// packets larger than this (eg. huge rasterized images) break the connection
const maxPacketSize = 64 << 20

// Process is an Engine backed by an external program speaking newline delimited JSON packets
// over its standard input and output. Anything the program writes to its standard error is logged.
type Process struct {
	name   string
	args   []string
	logger *out.Logger

	// guards everything below, only one request is in flight at a time
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	packets chan response
	exited  chan struct{}
	nextID  uint64
	handler func(Message)
}

func NewProcess(logger *out.Logger, name string, args ...string) *Process {
	return &Process{
		name:    name,
		args:    args,
		logger:  logger,
		handler: func(Message) {},
	}
}

// ProcessFactory returns a Factory launching a new kernel program for each Engine.
func ProcessFactory(logger *out.Logger, name string, args ...string) Factory {
	return func() (Engine, error) {
		if name == "" {
			return nil, errors.New("no kernel command configured")
		}
		return NewProcess(logger, name, args...), nil
	}
}

// Connect starts the kernel program, it does nothing if it is already running.
// A program that exited on its own is started again.
func (p *Process) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		select {
		case <-p.exited:
			p.logger.Infof("kernel %s exited, restarting it", p.name)
			p.stdin.Close()
			p.cmd = nil
		default:
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(p.name, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "kernel stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "kernel stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "kernel stderr")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting kernel %s", p.name)
	}
	p.logger.Debugf("kernel %s started with pid %d", p.name, cmd.Process.Pid)

	p.cmd = cmd
	p.stdin = stdin
	p.packets = make(chan response, 16)
	p.exited = make(chan struct{})

	var tail sync.WaitGroup
	tail.Add(1)
	go func() {
		defer tail.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			p.logger.Infof("kernel: %s", scanner.Text())
		}
	}()

	go p.readPackets(cmd, stdout, &tail, p.packets, p.exited)
	return nil
}

// readPackets decodes stdout until the program closes it, then reaps the process.
func (p *Process) readPackets(cmd *exec.Cmd, stdout io.Reader, tail *sync.WaitGroup, packets chan<- response, exited chan<- struct{}) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxPacketSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r response
		if err := r.UnmarshalJSON(line); err != nil {
			p.logger.Errorf("malformed kernel packet: %s", err.Error())
			continue
		}
		packets <- r
	}
	if err := scanner.Err(); err != nil {
		p.logger.Errorf("reading kernel output: %s", err.Error())
	}
	close(packets)
	tail.Wait()

	if err := cmd.Wait(); err != nil {
		p.logger.Errorf("kernel %s exited: %s", p.name, err.Error())
	} else {
		p.logger.Debugf("kernel %s exited", p.name)
	}
	close(exited)
}

// Disconnect closes the kernel input and waits for it to exit, killing it if it takes too long.
func (p *Process) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	p.stdin.Close()

	// keep draining output so the reader gets to the end of it
	packets := p.packets
	grace := time.NewTimer(disconnectGrace)
	defer grace.Stop()
	timeout := grace.C
	for {
		select {
		case <-p.exited:
			p.cmd = nil
			return nil
		case _, ok := <-packets:
			if !ok {
				packets = nil
			}
		case <-timeout:
			timeout = nil
			p.logger.Errorf("kernel %s did not exit, killing it", p.name)
			if err := p.cmd.Process.Kill(); err != nil {
				return errors.Wrap(err, "killing kernel")
			}
		}
	}
}

func (p *Process) SetHandler(fn func(Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		fn = func(Message) {}
	}
	p.handler = fn
}

func (p *Process) Evaluate(ctx context.Context, text string) (*Expr, error) {
	r, err := p.call(ctx, request{Op: opEvaluate, Text: text}, typeReturn)
	if err != nil {
		return nil, err
	}
	if r.Expr == nil || r.Expr.Head == "Null" {
		return nil, nil
	}
	return r.Expr, nil
}

func (p *Process) EvaluateToImage(ctx context.Context, source *Expr) ([]byte, error) {
	r, err := p.call(ctx, request{Op: opImage, Expr: source}, typeImage)
	if err != nil {
		return nil, err
	}
	if len(r.Data) == 0 {
		return nil, nil
	}
	return r.Data, nil
}

func (p *Process) Contexts(ctx context.Context) ([]string, error) {
	r, err := p.call(ctx, request{Op: opContexts}, typeList)
	return r.Items, err
}

func (p *Process) Names(ctx context.Context, prefix string) ([]string, error) {
	r, err := p.call(ctx, request{Op: opNames, Text: prefix}, typeList)
	return r.Items, err
}

// call sends a request and blocks until its completing packet arrives, forwarding any message
// packets to the handler in the meantime.
func (p *Process) call(ctx context.Context, req request, want string) (response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return response{}, ErrNotConnected
	}
	select {
	case <-p.exited:
		return response{}, ErrKernelExited
	default:
	}

	p.nextID++
	req.ID = p.nextID
	data, err := req.MarshalJSON()
	if err != nil {
		return response{}, errors.Wrap(err, "encoding kernel request")
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return response{}, errors.Wrap(ErrKernelExited, err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return response{}, ctx.Err()
		case r, ok := <-p.packets:
			if !ok {
				return response{}, ErrKernelExited
			}
			if r.async() {
				p.handler(r.message())
				continue
			}
			if r.ID != req.ID {
				// completion of a request abandoned earlier
				continue
			}
			if r.Type == typeError {
				return response{}, errors.New(r.Error)
			}
			if r.Type != want {
				return response{}, errors.Errorf("kernel answered %s with a %s packet", req.Op, r.Type)
			}
			return r, nil
		}
	}
}
