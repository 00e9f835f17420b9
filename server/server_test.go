package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mathmate/tmjlink/kernel"
	"github.com/mathmate/tmjlink/kernel/kerneltest"
	"github.com/mathmate/tmjlink/out"
	"github.com/mathmate/tmjlink/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// every store gets its own kernel, set up by fn
func factory(fn func(*kerneltest.Kernel)) kernel.Factory {
	return func() (kernel.Engine, error) {
		k := kerneltest.New()
		if fn != nil {
			fn(k)
		}
		return k, nil
	}
}

func testServer(t *testing.T, opts Options) (*Server, <-chan error) {
	if opts.CacheDir == "" {
		opts.CacheDir = t.TempDir()
	}
	if opts.Factory == nil {
		opts.Factory = factory(nil)
	}
	opts.ReadTimeout = 20 * time.Millisecond
	opts.Logger = out.NewLogger(ioutil.Discard, true)

	srv := New(opts)
	require.NoError(t, srv.Start())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- srv.Run()
		close(finished)
	}()
	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return srv, done
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *client {
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { conn.Close() })
	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	assert.Equal(t, "okay", c.line())
	return c
}

func (c *client) send(line string) {
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *client) sendBlock(cmd, body string) {
	_, err := io.WriteString(c.conn, fmt.Sprintf("%s %d\n%s", cmd, len(body), body))
	require.NoError(c.t, err)
}

func (c *client) line() string {
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *client) inline() string {
	header := strings.Fields(c.line())
	require.Len(c.t, header, 2)
	require.Equal(c.t, "inline", header[0])
	n, err := strconv.Atoi(header[1])
	require.NoError(c.t, err)
	buf := make([]byte, n)
	_, err = io.ReadFull(c.r, buf)
	require.NoError(c.t, err)
	return string(buf)
}

func (c *client) bind(id string) {
	c.send("sessid " + id)
	require.Equal(c.t, "okay -- Session ID set to: "+id, c.line())
}

func TestSessionEndToEnd(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)

	c.bind("demo")
	c.sendBlock("execute", "1+1;")
	assert.Equal(t, "okay", c.line())

	c.send("header")
	doc := c.inline()
	assert.Equal(t, "okay", c.line())
	assert.Equal(t, 1, strings.Count(doc, "class='cellgroup'"))
	assert.Contains(t, doc, "<div id='resource_0' class='cellgroup'><div class='cell input'><div class='margin'>In[0] := </div><div class='content'>1+1;</div></div></div>")
	assert.Contains(t, doc, "<span class='value'>demo</span>")

	c.send("quit")
	assert.Equal(t, "okay -- Good Bye", c.line())
	_, err := c.r.ReadString('\n')
	assert.Equal(t, io.EOF, err)
}

func TestSessionHeaderSavesSnapshot(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)
	c.bind("demo")

	c.send("header")
	doc := c.inline()
	assert.Equal(t, "okay", c.line())

	st, err := srv.Registry().GetOrCreate(context.Background(), "demo")
	require.NoError(t, err)
	require.NotEmpty(t, st.Snapshot())
	data, err := ioutil.ReadFile(st.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, doc, string(data))
}

func TestSessionInvalidCommands(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)

	c.send("header")
	assert.Equal(t, "exception -- Invalid command (Unbound): header", c.line())
	c.send("execute 3")
	assert.Equal(t, "exception -- Invalid command (Unbound): execute", c.line())

	c.bind("demo")
	c.send("bogus stuff")
	assert.Equal(t, "exception -- Invalid command (Bound): bogus", c.line())
	c.send("sessid other")
	assert.Equal(t, "exception -- Invalid command (Bound): sessid", c.line())
	c.send("execute x")
	assert.Equal(t, "exception -- execute x: invalid byte count", c.line())
	c.send("execute -1")
	assert.Equal(t, "exception -- execute -1: invalid byte count", c.line())

	// still bound to demo
	c.send("clear")
	assert.Equal(t, "okay -- Resources released: 0", c.line())
}

func TestSessionBadID(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)

	c.send("sessid ../etc")
	assert.True(t, strings.HasPrefix(c.line(), "exception -- invalid session id"))
	c.send("clear")
	assert.Equal(t, "exception -- Invalid command (Unbound): clear", c.line())
}

func TestSessionCarriageReturn(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)

	c.send("sessid demo\r")
	assert.Equal(t, "okay -- Session ID set to: demo", c.line())
	c.send("quit\r")
	assert.Equal(t, "okay -- Good Bye", c.line())
}

func TestSessionIntexec(t *testing.T) {
	srv, _ := testServer(t, Options{Factory: factory(func(k *kerneltest.Kernel) {
		k.Results["1+1"] = &kernel.Expr{Head: "Integer", Text: "2"}
	})})
	c := dial(t, srv)
	c.bind("demo")

	c.sendBlock("intexec", "1+1")
	html := c.inline()
	assert.Equal(t, "okay", c.line())
	assert.Equal(t, "<div id='resource_0' class='cellgroup'>"+
		"<div class='cell input'><div class='margin'>In[0] := </div><div class='content'>1+1</div></div>"+
		"<div class='cell return'><div class='margin'>Out[0] := </div><div class='content'>2</div></div>"+
		"</div>", html)
}

func TestSessionMultilineBody(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)
	c.bind("demo")

	c.sendBlock("execute", "f[x_] :=\n  x^2;\n")
	assert.Equal(t, "okay", c.line())
	c.send("header")
	assert.Contains(t, c.inline(), "f[x_] :=\n  x^2;\n")
	assert.Equal(t, "okay", c.line())
}

func TestSessionEngineError(t *testing.T) {
	srv, _ := testServer(t, Options{Factory: factory(func(k *kerneltest.Kernel) {
		k.Errors["Foo["] = errors.New("syntax error\nat line 1")
	})})
	c := dial(t, srv)
	c.bind("demo")

	c.sendBlock("execute", "Foo[")
	assert.Equal(t, "exception -- evaluation failed: syntax error at line 1", c.line())
	c.sendBlock("execute", "x")
	assert.Equal(t, "okay", c.line())
}

func TestSessionImageAndClear(t *testing.T) {
	srv, _ := testServer(t, Options{Factory: factory(func(k *kerneltest.Kernel) {
		k.DefaultImage = []byte("GIF89a")
	})})
	c := dial(t, srv)
	c.bind("demo")

	c.sendBlock("image", "x")
	assert.Equal(t, "okay", c.line())
	st, err := srv.Registry().GetOrCreate(context.Background(), "demo")
	require.NoError(t, err)
	files, err := ioutil.ReadDir(st.Dir())
	require.NoError(t, err)
	assert.Len(t, files, 1)

	c.send("clear")
	assert.Equal(t, "okay -- Resources released: 3", c.line())
	files, err = ioutil.ReadDir(st.Dir())
	require.NoError(t, err)
	assert.Empty(t, files)

	// turns keep counting after a clear
	c.sendBlock("intexec", "y")
	assert.Contains(t, c.inline(), "resource_1")
	assert.Equal(t, "okay", c.line())
}

func TestSessionSuggest(t *testing.T) {
	srv, _ := testServer(t, Options{Factory: factory(func(k *kerneltest.Kernel) {
		k.ContextList = []string{"Global`", "System`"}
		k.NameLists["Global`"] = []string{"f"}
		k.NameLists["System`"] = []string{"Sin", "Cos"}
	})})
	c := dial(t, srv)
	c.bind("demo")

	c.send("suggest")
	assert.Equal(t, `suggestions ["f","Sin","Cos"]`, c.line())
}

func TestSessionReattach(t *testing.T) {
	srv, _ := testServer(t, Options{})
	a := dial(t, srv)
	a.bind("demo")
	a.sendBlock("execute", "a")
	assert.Equal(t, "okay", a.line())
	a.send("quit")
	assert.Equal(t, "okay -- Good Bye", a.line())

	b := dial(t, srv)
	b.bind("demo")
	b.send("header")
	doc := b.inline()
	assert.Equal(t, "okay", b.line())
	assert.Contains(t, doc, "<div class='content'>a</div>")
	assert.Equal(t, 1, srv.Registry().Len())
}

func TestSessionReset(t *testing.T) {
	srv, _ := testServer(t, Options{Factory: factory(func(k *kerneltest.Kernel) {
		k.DefaultImage = []byte("GIF89a")
	})})
	a := dial(t, srv)
	a.bind("demo")
	b := dial(t, srv)
	b.bind("demo")

	a.sendBlock("image", "old")
	assert.Equal(t, "okay", a.line())
	before, err := srv.Registry().GetOrCreate(context.Background(), "demo")
	require.NoError(t, err)
	gif := before.Resources()[1].Path()
	assert.FileExists(t, gif)

	a.send("reset")
	assert.Equal(t, "okay", a.line())
	assert.NoFileExists(t, gif)

	// the other connection follows the reset
	b.sendBlock("intexec", "new")
	html := b.inline()
	assert.Equal(t, "okay", b.line())
	assert.Contains(t, html, "resource_0")
	assert.Contains(t, html, "In[0] := ")

	b.send("header")
	doc := b.inline()
	assert.Equal(t, "okay", b.line())
	assert.NotContains(t, doc, "old")
	assert.Equal(t, 1, strings.Count(doc, "class='cellgroup'"))
}

// evaluations from two connections bound to the same session don't interleave
func TestSessionConcurrentEvaluations(t *testing.T) {
	srv, _ := testServer(t, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		c := dial(t, srv)
		c.bind("demo")
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.sendBlock("execute", fmt.Sprintf("%d-%d", i, j))
				if line := c.line(); line != "okay" {
					t.Errorf("unexpected reply %q", line)
				}
			}
		}(i, c)
	}
	wg.Wait()

	st, err := srv.Registry().GetOrCreate(context.Background(), "demo")
	require.NoError(t, err)
	rs := st.Resources()
	require.Len(t, rs, 80)
	for i := 0; i < len(rs); i += 2 {
		assert.Equal(t, store.InputEcho, rs[i].Kind)
		assert.Equal(t, store.ReturnValue, rs[i+1].Kind)
		assert.Equal(t, i/2, rs[i].Turn)
		assert.Equal(t, rs[i].Turn, rs[i+1].Turn)
		assert.Equal(t, rs[i].Text, rs[i+1].Text)
	}
}

func TestServerShutdown(t *testing.T) {
	srv, done := testServer(t, Options{})
	c := dial(t, srv)
	c.bind("demo")
	st, err := srv.Registry().GetOrCreate(context.Background(), "demo")
	require.NoError(t, err)

	srv.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, srv.Running())
	assert.NoDirExists(t, st.Dir())
	_, err = c.r.ReadString('\n')
	assert.Error(t, err)

	_, err = net.Dial("tcp", srv.Addr().String())
	assert.Error(t, err)
	_, err = srv.Registry().GetOrCreate(context.Background(), "demo")
	assert.Equal(t, ErrServerClosed, err)
}

// a reset waiting on a long evaluation holds up only the connections of that session
func TestSessionResetDuringEvaluation(t *testing.T) {
	hold := make(chan struct{})
	srv, _ := testServer(t, Options{Factory: factory(func(k *kerneltest.Kernel) {
		k.Hold["slow"] = hold
	})})
	a := dial(t, srv)
	a.bind("x")
	b := dial(t, srv)
	b.bind("x")
	c := dial(t, srv)
	c.bind("y")

	a.sendBlock("execute", "slow")
	x, err := srv.Registry().GetOrCreate(context.Background(), "x")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return x.Len() == 1 }, time.Second, time.Millisecond)
	b.send("reset")
	require.Eventually(t, func() bool { return srv.Registry().isPending("x") }, time.Second, time.Millisecond)

	c.conn.SetDeadline(time.Now().Add(time.Second))
	c.sendBlock("execute", "1")
	assert.Equal(t, "okay", c.line())
	d := dial(t, srv)
	d.bind("z")

	close(hold)
	assert.Equal(t, "okay", a.line())
	assert.Equal(t, "okay", b.line())
}

func TestServerShutdownWithBusyClient(t *testing.T) {
	srv, done := testServer(t, Options{})
	c := dial(t, srv)
	c.bind("demo")

	go io.Copy(ioutil.Discard, c.conn)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := io.WriteString(c.conn, "clear\n"); err != nil {
					return
				}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	srv.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("commands arriving faster than the read timeout kept the server running")
	}
}

func TestSessionBindReconnectsKernel(t *testing.T) {
	k := kerneltest.New()
	srv, _ := testServer(t, Options{Factory: k.Factory()})
	a := dial(t, srv)
	a.bind("demo")
	a.sendBlock("execute", "a")
	assert.Equal(t, "okay", a.line())

	// the kernel went away behind the store's back
	require.NoError(t, k.Disconnect())
	a.sendBlock("execute", "b")
	assert.Equal(t, "exception -- evaluation failed: kernel not connected", a.line())

	b := dial(t, srv)
	b.bind("demo")
	b.sendBlock("execute", "c")
	assert.Equal(t, "okay", b.line())
	b.send("header")
	doc := b.inline()
	assert.Equal(t, "okay", b.line())
	assert.Contains(t, doc, "<div class='content'>a</div>")
}

func TestServerHostGone(t *testing.T) {
	var mu sync.Mutex
	alive := true
	srv, done := testServer(t, Options{
		HostPID:       4242,
		AcceptTimeout: 10 * time.Millisecond,
		Probe: ProbeFunc(func(pid int) bool {
			mu.Lock()
			defer mu.Unlock()
			return alive && pid == 4242
		}),
	})
	c := dial(t, srv)
	c.bind("demo")

	mu.Lock()
	alive = false
	mu.Unlock()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not notice the host is gone")
	}
	assert.False(t, srv.Running())
}

func TestServerStartFailure(t *testing.T) {
	srv, _ := testServer(t, Options{})
	other := New(Options{Listen: srv.Addr().String(), Logger: out.NewLogger(ioutil.Discard, false)})
	assert.Error(t, other.Start())
	assert.Error(t, other.Run())
}

func TestServerMaxConnections(t *testing.T) {
	srv, _ := testServer(t, Options{MaxConnections: 1})
	a := dial(t, srv)
	a.bind("demo")

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err = r.ReadString('\n')
	assert.True(t, isTimeout(err), "no greeting while the limit is reached")

	a.send("quit")
	assert.Equal(t, "okay -- Good Bye", a.line())
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "okay\n", line)
}

func TestServerStatus(t *testing.T) {
	srv, _ := testServer(t, Options{})
	c := dial(t, srv)
	c.bind("demo")
	c.sendBlock("execute", "a")
	assert.Equal(t, "okay", c.line())

	status := srv.Status()
	assert.Contains(t, status, "connections")
	assert.Contains(t, status, "Bound to demo")
	assert.Contains(t, status, "turn 1, 2 resources, 0 graphics, 0 b on disk")
}
