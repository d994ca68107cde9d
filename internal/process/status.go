package process

import (
	"bufio"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"
)

// State of the scan slot: absent -> running -> draining -> absent.
type State int32

const (
	StateAbsent State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// LineKind tells a console consumer how to treat a Line.
type LineKind int

const (
	LineOutput   LineKind = iota // raw process output
	LineIdle                     // no scan in the slot
	LineBusy                     // another consumer is attached
	LineFinished                 // output ended and the scan was reaped
)

const (
	IdleMessage    = "No scan is currently running."
	BusyMessage    = "Console stream is already attached to another client."
	FinishedMarker = "--- CONSOLE STREAM FINISHED ---"
)

// Line is one item of a scan's output sequence.
type Line struct {
	Kind LineKind
	Raw  string
}

// Exit states reported in ExitStatus.
const (
	ExitRunning  = "running"
	ExitExited   = "exited"
	ExitSignaled = "signaled"
)

// ExitStatus is the termination status of a scan process.
type ExitStatus struct {
	State  string `json:"state"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

func (e ExitStatus) String() string {
	switch e.State {
	case ExitExited:
		return "exited(" + strconv.Itoa(e.Code) + ")"
	case ExitSignaled:
		return "signaled(" + e.Signal + ")"
	default:
		return e.State
	}
}

func exitStatusOf(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return ExitStatus{State: ExitExited, Code: -1}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{State: ExitSignaled, Code: -1, Signal: ws.Signal().String()}
	}
	return ExitStatus{State: ExitExited, Code: ps.ExitCode()}
}

// Status is a snapshot of the scan slot.
type Status struct {
	State      string      `json:"state"`
	ID         string      `json:"id,omitempty"`
	Target     string      `json:"target,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
	PID        int         `json:"pid,omitempty"`
	PGID       int         `json:"pgid,omitempty"`
	Args       []string    `json:"args,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitzero"`
	Exit       *ExitStatus `json:"exit,omitempty"`
}

// run is the process currently occupying the slot.
type run struct {
	id         string
	target     string
	outputPath string
	args       []string
	cmd        *exec.Cmd
	pid        int
	pgid       int
	startedAt  time.Time

	pipe    *os.File
	lines   chan string // fed by pump, closed at end of output
	reading atomic.Bool
}

// pump reads the combined output line by line until EOF. A line stays pending
// in the send until some consumer receives it, so a consumer that leaves
// mid-stream never loses output to the next one.
func (r *run) pump() {
	defer close(r.lines)
	br := bufio.NewReader(r.pipe)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			r.lines <- raw
		}
		if err != nil {
			return
		}
	}
}

func (r *run) status(st State, exit *ExitStatus) Status {
	return Status{
		State:      st.String(),
		ID:         r.id,
		Target:     r.target,
		OutputPath: r.outputPath,
		PID:        r.pid,
		PGID:       r.pgid,
		Args:       append([]string(nil), r.args...),
		StartedAt:  r.startedAt,
		Exit:       exit,
	}
}
