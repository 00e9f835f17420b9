package store

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// writes resources grouping them by turn, rs must be in log order
func renderGroups(b *strings.Builder, rs []*Resource) {
	open := false
	turn := 0
	for _, r := range rs {
		if open && r.Turn != turn {
			b.WriteString("</div>")
			open = false
		}
		if !open {
			turn = r.Turn
			fmt.Fprintf(b, "<div id='resource_%d' class='cellgroup'>", turn)
			open = true
		}
		r.render(b)
	}
	if open {
		b.WriteString("</div>")
	}
}

func (s *Store) renderTurn(turn int) string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	var rs []*Resource
	for _, r := range s.resources {
		if r.Turn == turn {
			rs = append(rs, r)
		}
	}
	var b strings.Builder
	renderGroups(&b, rs)
	return b.String()
}

// Render builds the html document of the whole history, embedded in the layout if there is one.
func (s *Store) Render() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	var b strings.Builder
	b.WriteString("<div class='session_id'><span class='label'>Session ID:</span> ")
	fmt.Fprintf(&b, "<span class='value'>%s</span></div>", Escape(s.id))
	s.logMu.Lock()
	renderGroups(&b, s.resources)
	s.logMu.Unlock()

	return s.applyLayout(b.String())
}

func (s *Store) applyLayout(content string) (string, error) {
	if s.layout == "" {
		return content, nil
	}
	layout, err := ioutil.ReadFile(s.layout)
	if os.IsNotExist(err) {
		return content, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "reading layout")
	}
	if !strings.Contains(string(layout), yieldToken) {
		s.logger.Errorf("layout %s has no %s", s.layout, yieldToken)
		return content, nil
	}
	return strings.Replace(string(layout), yieldToken, content, 1), nil
}

// Save writes doc as the session snapshot, replacing the previous one, and returns its path.
func (s *Store) Save(doc string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	name := uuid.New().String() + ".html"
	path := filepath.Join(s.dir, name)
	if err := ioutil.WriteFile(path, []byte(doc), 0644); err != nil {
		return "", errors.Wrap(err, "saving snapshot")
	}
	if s.snapshot != "" {
		os.Remove(filepath.Join(s.dir, s.snapshot))
	}
	s.snapshot = name
	return path, nil
}

// Snapshot is the path of the latest saved snapshot, or "".
func (s *Store) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == "" {
		return ""
	}
	return filepath.Join(s.dir, s.snapshot)
}
