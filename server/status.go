package server

import (
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/mathmate/tmjlink/conv"
	"github.com/mathmate/tmjlink/store"
	"github.com/mathmate/tmjlink/strcoll"
)

// Status describes open connections and allocated stores, one per line.
func (s *Server) Status() string {
	metrics := strcoll.NewTuples()
	metrics.Add("running", fmt.Sprintf("%t", s.Running()))

	sessions := s.Sessions()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].RemoteAddr() < sessions[j].RemoteAddr()
	})
	metrics.Add("connections", fmt.Sprintf("%d", len(sessions)))
	for _, session := range sessions {
		desc := session.State().String()
		if id := session.ID(); id != "" {
			desc += " to " + id
		}
		metrics.Add("  "+session.RemoteAddr(), desc)
	}

	metrics.Add("sessions", fmt.Sprintf("%d", s.registry.Len()))
	s.registry.Each(func(st *store.Store) {
		stats := st.Stats()
		metrics.Add("  "+stats.ID, fmt.Sprintf("turn %d, %d resources, %d graphics, %s on disk",
			stats.Turn, stats.Resources, stats.Graphics, conv.ByteCountDecimal(diskUsage(st.Dir()))))
	})
	return metrics.Format(24)
}

func diskUsage(dir string) int64 {
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		return 0
	}
	var size int64
	for _, f := range files {
		size += f.Size()
	}
	return size
}
