// Package discovery implements the OS Discovery component: listing
// processes by command-line substring or listening port, and delivering
// signals by pid to a process and its transitive descendants.
//
// Grounded on the teacher's internal/metrics/process_metrics.go use of
// github.com/shirou/gopsutil/v4/process for cross-platform process
// enumeration, extended with gopsutil's net.Connections for port lookup
// since the teacher's metrics package only ever looks up processes by pid.
package discovery

import (
	"fmt"
	"strconv"
	"strings"

	gpsnet "github.com/shirou/gopsutil/v4/net"
	gpsprocess "github.com/shirou/gopsutil/v4/process"
)

// ProcessMatch is one row of a search_by_name result.
type ProcessMatch struct {
	PID     int32  `json:"pid"`
	Command string `json:"command"`
}

// PortMatch is one row of a list_by_port result.
type PortMatch struct {
	PID     int32  `json:"pid"`
	Command string `json:"command"`
	Name    string `json:"name,omitempty"`
}

// SearchByName returns every OS process whose command line contains
// substring, case-insensitively (spec.md §4.7).
func SearchByName(substring string) ([]ProcessMatch, error) {
	procs, err := gpsprocess.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	needle := strings.ToLower(substring)
	out := make([]ProcessMatch, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(strings.ToLower(cmdline), needle) {
			out = append(out, ProcessMatch{PID: p.Pid, Command: cmdline})
		}
	}
	return out, nil
}

// ListByPort returns processes holding the given TCP/UDP port locally
// (spec.md §4.7).
func ListByPort(port int) ([]PortMatch, error) {
	conns, err := gpsnet.Connections("inet")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	seen := make(map[int32]bool)
	out := make([]PortMatch, 0, 4)
	for _, c := range conns {
		if int(c.Laddr.Port) != port || c.Pid == 0 {
			continue
		}
		if seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true
		match := PortMatch{PID: c.Pid}
		if p, err := gpsprocess.NewProcess(c.Pid); err == nil {
			if cmdline, err := p.Cmdline(); err == nil {
				match.Command = cmdline
			}
			if name, err := p.Name(); err == nil {
				match.Name = name
			}
		}
		out = append(out, match)
	}
	return out, nil
}

// Kill delivers signal (default SIGTERM) to pid and every descendant it can
// discover via gopsutil's process tree, returning an error only when the OS
// call against the root pid itself fails (spec.md §4.7).
func Kill(pid int32, signal string) error {
	p, err := gpsprocess.NewProcess(pid)
	if err != nil {
		return fmt.Errorf("pid %d not found: %w", pid, err)
	}

	var killDescendants func(*gpsprocess.Process)
	killDescendants = func(parent *gpsprocess.Process) {
		children, _ := parent.Children()
		for _, c := range children {
			killDescendants(c)
			_ = killOne(c.Pid, signal)
		}
	}
	killDescendants(p)

	return killOne(pid, signal)
}

func killOne(pid int32, signal string) error {
	p, err := gpsprocess.NewProcess(pid)
	if err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(signal)) {
	case "", "SIGTERM", "TERM":
		return p.Terminate()
	case "SIGKILL", "KILL":
		return p.Kill()
	default:
		return p.SendSignal(parseSyscallSignal(signal))
	}
}

// ParsePID validates and parses a pid path/query parameter.
func ParsePID(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return int32(n), nil
}

// ParsePort validates and parses a port path parameter.
func ParsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return n, nil
}
