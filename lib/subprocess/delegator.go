// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package subprocess

import (
	"bufio"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
)

type childState int

const (
	stateNotStarted childState = iota
	stateRunning
	stateKilled
)

// MaxUndeadChildren bounds how many killed-but-not-yet-reaped
// children the delegator tolerates before it refuses to spawn a
// replacement.
const MaxUndeadChildren = 5

// writerFailureBackoff is how long the delegator waits after a
// failed write to the child's stdin before trying to spawn a
// replacement.
const writerFailureBackoff = 30 * time.Second

// Delegator manages one helper subprocess at a time, delegating
// named actions to it over a length-prefixed stdin/stdout protocol.
type Delegator struct {
	filename string
	argv     []string
	env      []string
	clk      clock.Clock
	spawn    func(filename string, argv, env []string) (childProcess, error)

	mu               sync.Mutex
	state            childState
	proc             childProcess
	reaped           chan struct{}
	writeCh          chan []byte
	pending          map[uint64]chan Response
	nextID           uint64
	undead           []int
	lastWriteFailure time.Time
}

// New returns a Delegator that spawns filename with argv and env on
// its first Call.
func New(filename string, argv, env []string, clk clock.Clock) *Delegator {
	return &Delegator{
		filename: filename,
		argv:     argv,
		env:      env,
		clk:      clk,
		spawn: func(filename string, argv, env []string) (childProcess, error) {
			return newExecChildProcess(filename, argv, env)
		},
		pending: make(map[uint64]chan Response),
	}
}

// Call sends action and args to the helper process and waits up to
// timeout for a matching response. It spawns the helper on first use
// and after the previous one was discarded.
func (d *Delegator) Call(action string, args []byte, timeout time.Duration) ([]byte, error) {
	d.mu.Lock()
	if err := d.ensureChildLocked(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	id := d.nextID
	d.nextID++
	respCh := make(chan Response, 1)
	d.pending[id] = respCh
	writeCh := d.writeCh
	d.mu.Unlock()

	data, err := encodeRequest(Request{ID: id, Action: action, Args: args})
	if err != nil {
		d.removePending(id)
		return nil, fmt.Errorf("subprocess: encoding request for action %q: %w", action, err)
	}

	select {
	case writeCh <- data:
	case <-d.clk.After(timeout):
		d.removePending(id)
		return nil, fmt.Errorf("subprocess: timed out queuing action %q", action)
	}

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return nil, fmt.Errorf("subprocess: action %q failed: %s", action, resp.Error)
		}
		return resp.Result, nil
	case <-d.clk.After(timeout):
		d.removePending(id)
		return nil, fmt.Errorf("subprocess: timed out waiting for a reply to action %q", action)
	}
}

func (d *Delegator) removePending(id uint64) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// ensureChildLocked spawns a new helper if none is running, subject
// to the writer backoff and the undead-children cap. Callers must
// hold d.mu.
func (d *Delegator) ensureChildLocked() error {
	if d.state == stateRunning {
		return nil
	}
	if !d.lastWriteFailure.IsZero() && d.clk.Now().Sub(d.lastWriteFailure) < writerFailureBackoff {
		return fmt.Errorf("subprocess: backing off spawning a replacement helper after a write failure")
	}
	if len(d.undead) >= MaxUndeadChildren {
		return fmt.Errorf("subprocess: %d undead children have not been reaped, refusing to spawn another", len(d.undead))
	}

	proc, err := d.spawn(d.filename, d.argv, d.env)
	if err != nil {
		return fmt.Errorf("subprocess: creating helper process: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("subprocess: starting helper process: %w", err)
	}

	reaped := make(chan struct{})
	go func() {
		proc.Wait()
		close(reaped)
	}()

	d.proc = proc
	d.state = stateRunning
	d.reaped = reaped
	d.writeCh = make(chan []byte, 16)
	d.pending = make(map[uint64]chan Response)
	d.nextID = 1

	go d.runWriter(proc, d.writeCh, reaped)
	go d.runReader(proc, reaped)
	go d.runErrorLog(proc)

	return nil
}

func (d *Delegator) runWriter(proc childProcess, writeCh chan []byte, reaped <-chan struct{}) {
	stdin := proc.Stdin()
	for {
		select {
		case data, ok := <-writeCh:
			if !ok {
				return
			}
			if err := WriteFrame(stdin, data); err != nil {
				slog.Error("subprocess writer failed, discarding helper", "error", err)
				d.mu.Lock()
				d.lastWriteFailure = d.clk.Now()
				d.mu.Unlock()
				d.discard(proc, reaped)
				return
			}
		case <-reaped:
			return
		}
	}
}

func (d *Delegator) runReader(proc childProcess, reaped <-chan struct{}) {
	stdout := proc.Stdout()
	for {
		frame, err := ReadFrame(stdout)
		if err != nil {
			slog.Warn("subprocess reader stopped", "error", err)
			d.discard(proc, reaped)
			return
		}
		resp, err := decodeResponse(frame)
		if err != nil {
			slog.Error("subprocess reader could not decode response", "error", err)
			continue
		}
		d.mu.Lock()
		ch, ok := d.pending[resp.ID]
		if ok {
			delete(d.pending, resp.ID)
		}
		d.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (d *Delegator) runErrorLog(proc childProcess) {
	scanner := bufio.NewScanner(proc.Stderr())
	for scanner.Scan() {
		slog.Info("subprocess helper stderr", "line", scanner.Text())
	}
}

// discard marks the current child as no longer usable and runs the
// kill sequence against it, unless it has already exited on its own
// (reaped already closed).
func (d *Delegator) discard(proc childProcess, reaped <-chan struct{}) {
	d.mu.Lock()
	if d.proc != proc || d.state != stateRunning {
		d.mu.Unlock()
		return
	}
	d.state = stateKilled
	d.proc = nil
	close(d.writeCh)
	for id, ch := range d.pending {
		close(ch)
		delete(d.pending, id)
	}
	d.mu.Unlock()

	d.killSequence(proc, reaped)
}

// killSequence implements SIGTERM, wait up to 4s, SIGKILL, wait up to
// 1s, then waitpid -- the last step is simply observing reaped, which
// closes when the single background Wait() call started in
// ensureChildLocked returns. If the child still has not exited after
// both signals, its pid is tracked on the undead list until reaped.
func (d *Delegator) killSequence(proc childProcess, reaped <-chan struct{}) {
	select {
	case <-reaped:
		return
	default:
	}

	proc.Signal(syscall.SIGTERM)
	select {
	case <-reaped:
		return
	case <-d.clk.After(4 * time.Second):
	}

	proc.Signal(syscall.SIGKILL)
	select {
	case <-reaped:
		return
	case <-d.clk.After(1 * time.Second):
	}

	pid := proc.Pid()
	d.mu.Lock()
	d.undead = append(d.undead, pid)
	d.mu.Unlock()

	<-reaped
	d.removeUndead(pid)
}

func (d *Delegator) removeUndead(pid int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.undead {
		if p == pid {
			d.undead = append(d.undead[:i], d.undead[i+1:]...)
			return
		}
	}
}

// UndeadCount reports how many killed children have not yet been
// reaped.
func (d *Delegator) UndeadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.undead)
}

// Close kills the current child, if any, and waits for the kill
// sequence to finish.
func (d *Delegator) Close() {
	d.mu.Lock()
	proc := d.proc
	state := d.state
	reaped := d.reaped
	d.mu.Unlock()
	if proc == nil || state != stateRunning {
		return
	}
	d.discard(proc, reaped)
}
