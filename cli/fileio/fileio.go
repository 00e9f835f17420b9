package fileio

import (
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/mathmate/tmjlink/out"
	"github.com/mathmate/tmjlink/util"
	"github.com/pkg/errors"
)

// Bootstrap creates the cache folder, writable by everyone so that sessions launched by other users can share it.
func Bootstrap(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrap(err, "creating cache folder")
	}
	// umask applies to MkdirAll
	if err := os.Chmod(dir, 0777); err != nil {
		return errors.Wrap(err, "making cache folder writable")
	}
	return nil
}

// WritePid writes the current process id to path.
func WritePid(path string) error {
	_, err := out.FileWriter{Filename: path}.Write([]byte(strconv.Itoa(os.Getpid()) + "\n"))
	return errors.Wrap(err, "writing pid file")
}

// ReadPid returns the process id written to path.
func ReadPid(path string) (int, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "reading pid file")
	}
	return util.Aton(strings.TrimSpace(string(b)), nil)
}

// RemovePid removes the pid file, if it is still ours.
func RemovePid(path string) error {
	pid, err := ReadPid(path)
	if err != nil || pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// OpenLog opens path for appending log lines.
func OpenLog(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening log file")
	}
	return f, nil
}
