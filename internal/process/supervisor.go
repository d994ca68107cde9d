package process

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/reconsole/internal/metrics"
)

// Config describes how scans are launched.
type Config struct {
	ScriptPath string   // the only executable a scan may run, compared verbatim with argv[0]
	OutputRoot string   // scan output lands in OutputRoot/<target>
	WorkDir    string   // optional working directory for the scan process
	Env        []string // optional extra environment, appended to the daemon's
	// OnAdmit is called with the output directory after admission and before the
	// process is spawned. A returned error is logged and does not abort the launch.
	OnAdmit func(outputPath string) error
	// OnAbort is called with the same directory when the process could not be
	// spawned after OnAdmit ran.
	OnAbort func(outputPath string)
}

// Started is returned by a successful Start.
type Started struct {
	ID         string `json:"id"`
	Target     string `json:"target"`
	OutputPath string `json:"output_path"`
	BasePath   string `json:"base_path"`
	PID        int    `json:"pid"`
}

// Supervisor owns the single scan slot. At most one scan is running or
// draining at any time; the slot is taken with a compare-and-set on state and
// is released only by the consumer that drains the scan's output.
type Supervisor struct {
	cfg   Config
	state atomic.Int32

	mu   sync.Mutex
	run  *run
	last Status
}

func NewSupervisor(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg, last: Status{State: StateAbsent.String()}}
}

// Config returns the launch configuration.
func (s *Supervisor) Config() Config { return s.cfg }

// State returns the current slot state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Start admits and launches a scan. It fails with ErrAlreadyRunning when the
// slot is occupied, with an InvalidCommand AdmissionError when spec does not
// satisfy the launch rules, with *StorageError when the output directory
// cannot be created and with *LaunchError when the process cannot be spawned.
// The slot is released again on every failure.
func (s *Supervisor) Start(spec CommandSpec) (Started, error) {
	if !s.state.CompareAndSwap(int32(StateAbsent), int32(StateRunning)) {
		metrics.IncScanRejection(string(ReasonAlreadyRunning))
		return Started{}, ErrAlreadyRunning
	}
	started, err := s.launch(spec)
	if err != nil {
		s.state.Store(int32(StateAbsent))
		metrics.IncScanRejection(rejectionReason(err))
		return Started{}, err
	}
	metrics.IncScanStart()
	metrics.SetScanRunning(true)
	return started, nil
}

func rejectionReason(err error) string {
	var ae *AdmissionError
	var se *StorageError
	var le *LaunchError
	switch {
	case errors.As(err, &ae):
		return string(ae.Reason)
	case errors.As(err, &se):
		return "storage"
	case errors.As(err, &le):
		return "launch"
	default:
		return "other"
	}
}

func (s *Supervisor) launch(spec CommandSpec) (Started, error) {
	if err := spec.Validate(s.cfg.ScriptPath); err != nil {
		return Started{}, err
	}
	target, err := SafeTarget(spec.Target)
	if err != nil {
		return Started{}, err
	}
	outDir, err := OutputDir(s.cfg.OutputRoot, target)
	if err != nil {
		return Started{}, err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return Started{}, &StorageError{Path: outDir, Err: err}
	}
	if s.cfg.OnAdmit != nil {
		if err := s.cfg.OnAdmit(outDir); err != nil {
			slog.Warn("Failed to watch scan output", "path", outDir, "error", err)
		}
	}

	// #nosec G204 -- argv[0] is pinned to the configured script path by Validate
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	if s.cfg.WorkDir != "" {
		cmd.Dir = s.cfg.WorkDir
	}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	configureSysProcAttr(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		s.abort(outDir)
		return Started{}, &LaunchError{Args: spec.Args, Err: err}
	}
	// stdout and stderr share one pipe so the console sees them interleaved
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		s.abort(outDir)
		return Started{}, &LaunchError{Args: spec.Args, Err: err}
	}
	_ = pw.Close()

	r := &run{
		id:         uuid.NewString(),
		target:     target,
		outputPath: outDir,
		args:       append([]string(nil), spec.Args...),
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		pgid:       cmd.Process.Pid,
		startedAt:  time.Now(),
		pipe:       pr,
		lines:      make(chan string),
	}
	go r.pump()
	s.mu.Lock()
	s.run = r
	s.mu.Unlock()

	slog.Info("Scan started", "id", r.id, "target", target, "pid", r.pid, "args", r.args, "output", outDir)
	return Started{
		ID:         r.id,
		Target:     target,
		OutputPath: outDir,
		BasePath:   filepath.Join(s.cfg.OutputRoot, target),
		PID:        r.pid,
	}, nil
}

func (s *Supervisor) abort(outDir string) {
	if s.cfg.OnAbort != nil {
		s.cfg.OnAbort(outDir)
	}
}

func (s *Supervisor) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Stop sends SIGINT to the whole process group of the running scan and returns
// without waiting for it to exit. It returns ErrNoActiveScan when no scan is
// running and a *SignalError when the signal cannot be delivered.
func (s *Supervisor) Stop() error {
	r := s.current()
	if r == nil || s.State() != StateRunning {
		return ErrNoActiveScan
	}
	if err := signalGroup(r.pgid, syscall.SIGINT); err != nil {
		slog.Warn("Failed to signal scan", "id", r.id, "pgid", r.pgid, "error", err)
		return &SignalError{PGID: r.pgid, Err: err}
	}
	metrics.IncScanStop()
	slog.Info("Stop signal sent", "id", r.id, "pgid", r.pgid)
	return nil
}

// Output exposes the running scan's combined stdout and stderr, one line at a
// time. It is OutputContext with a context that is never done.
func (s *Supervisor) Output() iter.Seq[Line] {
	return s.OutputContext(context.Background())
}

// OutputContext yields the running scan's output until the output ends or ctx
// is done. Only one consumer reads at a time; a concurrent second consumer gets
// a single LineBusy line. With no scan in the slot it yields one LineIdle line.
//
// When the process closes its output the sequence reaps it, releases the slot
// and yields a final LineFinished line. A consumer that stops early, by
// breaking out or through ctx, releases the stream at once and leaves the scan
// in the slot; the next consumer continues where it left off.
func (s *Supervisor) OutputContext(ctx context.Context) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		r := s.current()
		if r == nil {
			yield(Line{Kind: LineIdle, Raw: IdleMessage})
			return
		}
		if !r.reading.CompareAndSwap(false, true) {
			yield(Line{Kind: LineBusy, Raw: BusyMessage})
			return
		}
		defer r.reading.Store(false)

		for {
			if ctx.Err() != nil {
				return
			}
			select {
			case raw, ok := <-r.lines:
				if !ok {
					s.finish(r)
					yield(Line{Kind: LineFinished, Raw: FinishedMarker})
					return
				}
				if !yield(Line{Kind: LineOutput, Raw: raw}) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// finish reaps the process after its output reached EOF and releases the slot.
func (s *Supervisor) finish(r *run) {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))

	err := r.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		slog.Warn("Scan wait failed", "id", r.id, "error", err)
	}
	_ = r.pipe.Close()
	exit := exitStatusOf(r.cmd.ProcessState)

	s.mu.Lock()
	if s.run == r {
		s.run = nil
	}
	s.last = r.status(StateAbsent, &exit)
	s.mu.Unlock()

	s.state.Store(int32(StateAbsent))
	metrics.SetScanRunning(false)
	metrics.ObserveScanDuration(time.Since(r.startedAt).Seconds())
	slog.Info("Scan finished", "id", r.id, "target", r.target, "exit", exit.String(), "duration", time.Since(r.startedAt))
}

// Status describes the slot. When it is absent the last finished scan, if any,
// is reported along with its exit status.
func (s *Supervisor) Status() Status {
	st := s.State()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		running := ExitStatus{State: ExitRunning}
		return s.run.status(st, &running)
	}
	last := s.last
	last.State = st.String()
	return last
}
