package server

import (
	"github.com/struCoder/pidusage"
)

// HostProbe tells whether the process that launched the server is still around.
type HostProbe interface {
	Alive(pid int) bool
}

// ProbeFunc adapts a function to a HostProbe.
type ProbeFunc func(pid int) bool

func (f ProbeFunc) Alive(pid int) bool {
	return f(pid)
}

// PidProbe looks the process up in the process table.
// Any failure counts as the process being gone.
type PidProbe struct{}

func (PidProbe) Alive(pid int) bool {
	info, err := pidusage.GetStat(pid)
	return err == nil && info != nil
}
