// Package session coordinates per-client load-test sessions.
//
// Each connected client owns exactly one Session: a unique loopback port,
// a worker supervisor, an optional request log file and a one-shot safety
// watchdog. The Orchestrator is the registry tying session identifiers to
// that state; operations on distinct sessions run concurrently while
// operations on the same session serialize through its own lock.
package session

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/swarmbench/swarmbench/internal/config"
	"github.com/swarmbench/swarmbench/internal/ports"
	"github.com/swarmbench/swarmbench/internal/script"
	"github.com/swarmbench/swarmbench/internal/worker"
)

// maxLogLines bounds the log retrieval query.
const maxLogLines = 100

// timeoutMessage is sent to a client whose session hit the safety ceiling.
const timeoutMessage = "Timeout: stopping load test for safety reasons (maximum session lifetime reached). Contact the administrator to raise the limit."

// Emitter delivers orchestrator events to the transport layer.
type Emitter interface {
	// Stats delivers one normalized sample for a session.
	Stats(sessionID string, payload worker.StatsPayload)
	// Error reports a non-fatal failure to the session's client.
	Error(sessionID, message string)
	// TestStopped notifies the client that its run was stopped server-side.
	TestStopped(sessionID, message string)
	// Disconnected tells the transport to drop the session's connection.
	Disconnected(sessionID string)
}

// Session is one client's isolated use of the system.
type Session struct {
	ID        string
	Port      int
	Runner    *worker.Supervisor
	CreatedAt time.Time

	// mu serializes start/stop/teardown for this session so a manual stop
	// racing a watchdog stop tears the worker down exactly once.
	mu       sync.Mutex
	closed   bool
	logFile  string
	watchdog *time.Timer
}

// Orchestrator maps session identifiers to their port allocation, worker
// supervisor and watchdog, and exposes the operations the transport layer
// consumes.
type Orchestrator struct {
	cfg     *config.Config
	emitter Emitter
	ports   *ports.Allocator

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewOrchestrator creates an orchestrator with no live sessions.
func NewOrchestrator(cfg *config.Config, emitter Emitter) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		emitter:  emitter,
		ports:    ports.NewAllocator(cfg.BasePort),
		sessions: make(map[string]*Session),
	}
}

// Connect registers a session for id, allocating its port, creating its
// supervisor and arming the safety watchdog. Connecting an already-live id
// returns the existing session.
func (o *Orchestrator) Connect(id string) *Session {
	o.mu.Lock()
	if s, ok := o.sessions[id]; ok {
		o.mu.Unlock()
		return s
	}

	port := o.ports.Allocate(id)
	s := &Session{
		ID:   id,
		Port: port,
		Runner: worker.NewSupervisor(worker.Config{
			Bin:           o.cfg.WorkerBin,
			DefaultScript: o.cfg.DefaultScript,
			Port:          port,
			PollInterval:  o.cfg.PollInterval.Std(),
			Warmup:        o.cfg.Warmup.Std(),
			StopGrace:     o.cfg.StopGrace.Std(),
			StatsBuffer:   o.cfg.StatsBuffer,
		}),
		CreatedAt: time.Now(),
	}
	// One-shot ceiling on total session lifetime; deliberately not reset
	// by start/stop activity. The timer captures the session pointer so a
	// stale timer can never act on a successor registered under the same id.
	s.watchdog = time.AfterFunc(o.cfg.SessionTimeout.Std(), func() { o.expire(id, s) })
	o.sessions[id] = s
	o.mu.Unlock()

	log.Printf("session %s connected, port %d allocated", id, port)
	return s
}

// Disconnect tears a session down: watchdog cancelled, worker stopped,
// request log removed, port released, record dropped. Safe to call for an
// unknown id or for a session that never started a run.
func (o *Orchestrator) Disconnect(id string) {
	o.mu.Lock()
	s, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.sessions, id)
	o.mu.Unlock()

	s.mu.Lock()
	// A start that already resolved this session but has not yet taken its
	// lock must find it dead, not launch a worker nothing can reach.
	s.closed = true
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if err := s.Runner.Stop(); err != nil {
		log.Printf("session %s: stop during disconnect: %v", id, err)
	}
	s.removeLogFileLocked()
	s.mu.Unlock()

	o.ports.Release(id)
	log.Printf("session %s disconnected, port released", id)
}

// StartLoadTest validates params, generates the worker script, launches
// the worker and bridges its stats stream to the transport layer.
// Validation and resource failures surface as error events; no worker is
// left running after a failed start.
func (o *Orchestrator) StartLoadTest(id string, params StartParams) {
	s := o.get(id)
	if s == nil {
		o.emitter.Error(id, "session not found")
		return
	}

	payload, err := params.validate()
	if err != nil {
		o.emitter.Error(id, err.Error())
		return
	}

	logFile, err := os.CreateTemp("", fmt.Sprintf("port_%d_*.log", s.Port))
	if err != nil {
		o.emitter.Error(id, fmt.Sprintf("failed to create session log file: %v", err))
		return
	}
	logFile.Close()

	body, err := script.Generate(script.Params{
		Method:      params.HTTPMethod,
		Route:       params.Route,
		WaitTime:    params.WaitTime,
		JSONPayload: payload,
		BearerToken: strings.TrimSpace(params.BearerToken),
		LogFile:     logFile.Name(),
	})
	if err != nil {
		os.Remove(logFile.Name())
		o.emitter.Error(id, err.Error())
		return
	}

	s.mu.Lock()
	if s.closed {
		// The session was torn down between the registry lookup and here.
		s.mu.Unlock()
		os.Remove(logFile.Name())
		o.emitter.Error(id, "session not found")
		return
	}
	err = s.Runner.Start(worker.StartOptions{
		Host:      params.Host,
		Users:     params.NumUsers,
		SpawnRate: params.SpawnRate,
		Script:    body,
	})
	if err != nil {
		s.mu.Unlock()
		os.Remove(logFile.Name())
		log.Printf("session %s: start failed: %v", id, err)
		o.emitter.Error(id, err.Error())
		return
	}
	s.removeLogFileLocked()
	s.logFile = logFile.Name()
	stream := s.Runner.Stats()
	s.mu.Unlock()

	log.Printf("session %s: load test started against %s", id, params.Host)
	go o.bridge(id, stream)
}

// StopLoadTest stops the session's current run. Internal failures are
// reported as error events, never raised as a fatal fault.
func (o *Orchestrator) StopLoadTest(id string) {
	s := o.get(id)
	if s == nil {
		return
	}

	s.mu.Lock()
	err := s.Runner.Stop()
	s.mu.Unlock()
	if err != nil {
		log.Printf("session %s: stop failed: %v", id, err)
		o.emitter.Error(id, err.Error())
	}
}

// Logs returns up to the last 100 lines of the session's request log.
// An unknown session or a missing file yields an empty result.
func (o *Orchestrator) Logs(id string) []string {
	s := o.get(id)
	if s == nil {
		return []string{}
	}

	s.mu.Lock()
	path := s.logFile
	s.mu.Unlock()
	if path == "" {
		return []string{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("session %s: failed to read log file: %v", id, err)
		}
		return []string{}
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}
	}
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}

// List returns the ids of all live sessions.
func (o *Orchestrator) List() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown disconnects every live session.
func (o *Orchestrator) Shutdown() {
	for _, id := range o.List() {
		o.Disconnect(id)
	}
}

func (o *Orchestrator) get(id string) *Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sessions[id]
}

// expire enforces the session lifetime ceiling: notify, stop, disconnect.
// It acts only if id still maps to the session the watchdog was armed for.
func (o *Orchestrator) expire(id string, s *Session) {
	if o.get(id) != s {
		return
	}
	log.Printf("session %s timed out, force-stopping", id)
	o.emitter.TestStopped(id, timeoutMessage)
	o.StopLoadTest(id)
	o.Disconnect(id)
	o.emitter.Disconnected(id)
}

// bridge drains a run's stats stream and republishes each payload to the
// transport layer until the stream closes.
func (o *Orchestrator) bridge(id string, stream <-chan worker.StatsPayload) {
	if stream == nil {
		return
	}
	for payload := range stream {
		o.emitter.Stats(id, payload)
	}
}

// removeLogFileLocked deletes the session's request log, best effort.
// Callers must hold s.mu.
func (s *Session) removeLogFileLocked() {
	if s.logFile == "" {
		return
	}
	if err := os.Remove(s.logFile); err != nil {
		log.Printf("failed to remove session log file %s: %v", s.logFile, err)
	}
	s.logFile = ""
}
