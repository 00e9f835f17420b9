package cli

import (
	"bufio"
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/mathmate/tmjlink/cli/fileio"
	"github.com/mathmate/tmjlink/config"
	"github.com/mathmate/tmjlink/out"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, flags []string, args []string) (config.Config, error) {
	opts := &serveOptions{}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags(flags))
	return loadConfig(cmd, opts, args)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := parse(t, []string{"--kernel", "adapter"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tmjlink", cfg.CacheDir)
	assert.Equal(t, "127.0.0.1:0", cfg.Listen)
	assert.Equal(t, "adapter", cfg.Kernel.Command)
	assert.Equal(t, "/tmp/tmjlink/layout.html.erb", cfg.LayoutPath())
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmjlink.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
cache_dir: /var/cache/tmjlink
listen: 127.0.0.1:7000
max_connections: 4
kernel:
  command: from-file
`), 0644))

	cfg, err := parse(t, []string{"--config", path, "--listen", "127.0.0.1:7001", "-v"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/tmjlink", cfg.CacheDir)
	assert.Equal(t, "127.0.0.1:7001", cfg.Listen)
	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, "from-file", cfg.Kernel.Command)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfigPositional(t *testing.T) {
	opts := &serveOptions{}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--cache-dir", "/ignored"}))
	cfg, err := loadConfig(cmd, opts, []string{"/tmp/session-cache", "4242", "adapter", "-mathlink", "-linkmode"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/session-cache", cfg.CacheDir)
	assert.Equal(t, 4242, cfg.HostPID)
	assert.Equal(t, "adapter", cfg.Kernel.Command)
	assert.Equal(t, []string{"-mathlink", "-linkmode"}, cfg.Kernel.Args)

	// an explicit kernel keeps every positional argument for itself
	opts = &serveOptions{}
	cmd = newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--kernel", "adapter"}))
	cfg, err = loadConfig(cmd, opts, []string{"/tmp/session-cache", "0", "-mathlink"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-mathlink"}, cfg.Kernel.Args)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := parse(t, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel.command")

	_, err = parse(t, []string{"--kernel", "adapter"}, []string{"/tmp", "not-a-pid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host pid")

	_, err = parse(t, []string{"--config", filepath.Join(t.TempDir(), "missing.yml")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

var startedRe = regexp.MustCompile(`Server started on port: (\d+)`)

func TestServe(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	logFile := filepath.Join(dir, "tmjlink.log")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewRootCommand()
	w := out.NewBufferWriter()
	cmd.SetOut(w)
	cmd.SetErr(w)
	cmd.SetArgs([]string{"serve", "--cache-dir", cacheDir, "--kernel", "/bin/cat", "--log-file", logFile})
	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	var port string
	require.Eventually(t, func() bool {
		b, err := ioutil.ReadFile(logFile)
		if err != nil {
			return false
		}
		m := startedRe.FindSubmatch(b)
		if m == nil {
			return false
		}
		port = string(m[1])
		return true
	}, 5*time.Second, 10*time.Millisecond)

	pid, err := fileio.ReadPid(filepath.Join(cacheDir, "tmjlink.pid"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "okay\n", line)
	fmt.Fprint(conn, "quit\n")
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "okay -- Good Bye\n", line)
	conn.Close()

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	_, err = os.Stat(filepath.Join(cacheDir, "tmjlink.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestServeStartFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cmd := NewRootCommand()
	w := out.NewBufferWriter()
	cmd.SetOut(w)
	cmd.SetErr(w)
	cmd.SetArgs([]string{"serve", "--cache-dir", t.TempDir(), "--kernel", "/bin/cat", "--listen", l.Addr().String()})
	require.Error(t, cmd.Execute())
	assert.Contains(t, w.String(), "[error]")
}
