// Package worker supervises one external load-generation process per
// session and bridges its local stats endpoint onto a bounded stream.
//
// A Supervisor owns at most one live worker process at a time. Starting a
// new run first tears the previous one down, so a session can never leak a
// second process. The worker's control and stats surface is bound to
// loopback only; it must never be reachable from outside the host.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// State is the supervisor's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateLaunching State = "launching"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
)

// Config carries the policy knobs a supervisor runs under.
type Config struct {
	Bin           string        // worker executable
	DefaultScript string        // script used when a run supplies none
	Port          int           // loopback port the worker binds to
	PollInterval  time.Duration // stats poll cadence
	Warmup        time.Duration // wait after spawn before polling starts
	StopGrace     time.Duration // graceful termination window before kill
	StatsBuffer   int           // stats stream capacity
}

// StartOptions describe one load-test run.
type StartOptions struct {
	Host      string // target host URL
	Users     int    // max concurrent virtual users
	SpawnRate int    // users spawned per second
	Script    string // script body; empty uses Config.DefaultScript
}

// Supervisor manages a single worker subprocess through the
// Idle -> Launching -> Running -> Stopping -> Idle lifecycle.
type Supervisor struct {
	cfg Config

	mu         sync.Mutex
	state      State
	cmd        *exec.Cmd
	waitCh     chan error
	cancel     context.CancelFunc
	tasks      sync.WaitGroup
	stats      chan StatsPayload
	scriptPath string
}

// NewSupervisor creates an idle supervisor for the given configuration.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	if cfg.StatsBuffer <= 0 {
		cfg.StatsBuffer = 16
	}
	return &Supervisor{cfg: cfg, state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the loopback port this supervisor's workers bind to.
func (s *Supervisor) Port() int {
	return s.cfg.Port
}

// Stats returns the stream for the current run. The stream is closed when
// the run stops; a nil stream means no run is active.
func (s *Supervisor) Stats() <-chan StatsPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start launches a worker process for the given run, replacing any run
// already in flight. It returns once the worker has passed its warm-up
// window and the background drain and poll tasks are running.
func (s *Supervisor) Start(opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// At most one live process per session: tear down any previous run
	// before touching anything else.
	if err := s.stopLocked(); err != nil {
		log.Printf("failed to stop previous worker: %v", err)
	}

	scriptPath := s.cfg.DefaultScript
	if opts.Script != "" {
		path, err := s.writeScript(opts.Script)
		if err != nil {
			return err
		}
		s.scriptPath = path
		scriptPath = path
	}

	args := []string{
		"-f", scriptPath,
		"--host", opts.Host,
		"--users", strconv.Itoa(opts.Users),
		"--spawn-rate", strconv.Itoa(opts.SpawnRate),
		"--web-host", "127.0.0.1",
		"--web-port", strconv.Itoa(s.cfg.Port),
		"--autostart",
	}

	cmd := exec.Command(s.cfg.Bin, args...)

	// Hand the worker its own stderr pipe rather than letting exec manage
	// one, so Wait never races the drain goroutine.
	pr, pw, err := os.Pipe()
	if err != nil {
		s.removeScriptLocked()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stderr = pw

	log.Printf("launching worker: %s %s", s.cfg.Bin, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		s.removeScriptLocked()
		return fmt.Errorf("failed to start worker: %w", err)
	}
	pw.Close() // child holds the write end now

	s.cmd = cmd
	s.state = StateLaunching

	waitCh := make(chan error, 1)
	s.waitCh = waitCh
	go func() { waitCh <- cmd.Wait() }()

	// Give the worker's embedded stats server time to come up before the
	// poller starts hammering it.
	time.Sleep(s.cfg.Warmup)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stats = make(chan StatsPayload, s.cfg.StatsBuffer)

	s.tasks.Add(2)
	go func() {
		defer s.tasks.Done()
		drainStderr(pr)
	}()
	p := newPoller(s.cfg.Port, s.cfg.PollInterval, s.stats)
	go func() {
		defer s.tasks.Done()
		p.run(ctx)
	}()

	s.state = StateRunning
	return nil
}

// Stop terminates the current run, waiting for the worker to exit and the
// background tasks to wind down, then closes the stats stream and removes
// the run's temp script. Safe to call on an idle supervisor, and safe to
// call twice.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	if s.state == StateIdle && s.cmd == nil {
		return nil
	}
	s.state = StateStopping

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	var stopErr error
	if s.cmd != nil && s.cmd.Process != nil {
		log.Printf("terminating worker (pid=%d)", s.cmd.Process.Pid)
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.waitCh:
		case <-time.After(s.cfg.StopGrace):
			log.Printf("worker did not exit within %s; killing (pid=%d)", s.cfg.StopGrace, s.cmd.Process.Pid)
			if err := s.cmd.Process.Kill(); err != nil {
				stopErr = fmt.Errorf("failed to kill worker: %w", err)
			}
			<-s.waitCh
		}
	}

	// Drain exits on pipe EOF after the process dies; the poller exits on
	// cancellation. Both must be gone before the stream closes.
	s.tasks.Wait()

	s.cmd = nil
	s.waitCh = nil

	if s.stats != nil {
		close(s.stats)
		s.stats = nil
	}

	s.removeScriptLocked()
	s.state = StateIdle
	return stopErr
}

// writeScript persists a generated script body to a fresh temp file.
// A partial file left by a failed write is removed before returning.
func (s *Supervisor) writeScript(body string) (string, error) {
	f, err := os.CreateTemp("", "swarmbench_*.py")
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	log.Printf("created worker script: %s", f.Name())
	return f.Name(), nil
}

func (s *Supervisor) removeScriptLocked() {
	if s.scriptPath == "" {
		return
	}
	if err := os.Remove(s.scriptPath); err != nil {
		log.Printf("failed to remove worker script %s: %v", s.scriptPath, err)
	}
	s.scriptPath = ""
}

// drainStderr logs worker stderr line by line until the pipe closes.
// Without a drain the worker can block once the pipe buffer fills.
func drainStderr(r *os.File) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Printf("worker stderr: %s", scanner.Text())
	}
}
