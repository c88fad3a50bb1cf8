package session

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sshmcp/internal/metrics"
	"sshmcp/internal/transport"
	"sshmcp/util"
)

// printfLine matches the status line WrapCommand appends.
var printfLine = regexp.MustCompile(`^printf '\\n%s%s:%s\\n' '([^']*)' '([^']*)' "\$\?"$`)

// handlerFunc runs one command line.  emit writes shell output; the
// return value becomes $?.
type handlerFunc func(cmd string, emit func(string)) int

// fakeShell is an in-memory transport.Channel that behaves like a shell
// with echo off: each written line is run through a handler, and the
// status printf is answered with the marker line.
type fakeShell struct {
	handler handlerFunc

	// statusStyle controls how the marker line is delivered.
	statusStyle string // "" (one chunk), "split", "unterminated", "garbage", "unterminated-garbage"

	outR *io.PipeReader
	outW *io.PipeWriter

	mu       sync.Mutex
	pending  string
	written  []string
	writeErr error
	closed   bool
	lastExit int

	lines     chan string
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeShell(h handlerFunc) *fakeShell {
	if h == nil {
		h = func(string, func(string)) int { return 0 }
	}
	r, w := io.Pipe()
	f := &fakeShell{handler: h, outR: r, outW: w, lines: make(chan string, 64)}
	go f.run()
	return f
}

func (f *fakeShell) Read(p []byte) (int, error) { return f.outR.Read(p) }

func (f *fakeShell) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	f.pending += string(p)
	for {
		i := strings.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}
		line := f.pending[:i]
		f.pending = f.pending[i+1:]
		f.written = append(f.written, line)
		f.lines <- line
	}
	return len(p), nil
}

func (f *fakeShell) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		f.outW.Close()
		close(f.lines)
	})
	return nil
}

// hangup simulates the remote side ending the shell.
func (f *fakeShell) hangup() { f.outW.Close() }

// fail simulates a transport error on the stream.
func (f *fakeShell) fail(err error) { f.outW.CloseWithError(err) }

func (f *fakeShell) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeShell) writtenLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeShell) emit(s string) { f.outW.Write([]byte(s)) } //nolint:errcheck

func (f *fakeShell) run() {
	for line := range f.lines {
		if m := printfLine.FindStringSubmatch(line); m != nil {
			f.answerStatus(m[1] + m[2])
			continue
		}
		if line == "" || strings.HasPrefix(line, "export HISTFILE") {
			continue
		}
		if line == "exit" {
			f.hangup()
			continue
		}
		f.lastExit = f.handler(line, f.emit)
	}
}

func (f *fakeShell) answerStatus(marker string) {
	code := strconv.Itoa(f.lastExit)
	switch f.statusStyle {
	case "split":
		f.emit("\n" + marker + ":")
		time.Sleep(120 * time.Millisecond)
		f.emit(code + "\r\n")
	case "unterminated":
		f.emit("\n" + marker + ":" + code)
	case "garbage":
		f.emit("\n" + marker + ":oops\n")
	case "unterminated-garbage":
		f.emit("\n" + marker + ":oops")
	default:
		f.emit("\n" + marker + ":" + code + "\n")
	}
}

// ── fixtures ─────────────────────────────────────────────────────────

type fixture struct {
	manager  *Manager
	registry *Registry
	metrics  *metrics.Collector
	shells   []*fakeShell
	dials    atomic.Int32
	mu       sync.Mutex
}

// newFixture returns a manager whose dialer hands out fake shells built
// by mk.  A nil mk uses an always-succeeding shell.
func newFixture(t *testing.T, mk func() *fakeShell) *fixture {
	t.Helper()
	if mk == nil {
		mk = func() *fakeShell { return newFakeShell(nil) }
	}
	fx := &fixture{metrics: metrics.New()}
	logger := util.Nop()
	fx.registry = NewRegistry(logger, fx.metrics)
	dialer := transport.DialerFunc(func(ctx context.Context, target transport.Target) (transport.Channel, error) {
		fx.dials.Add(1)
		sh := mk()
		fx.mu.Lock()
		fx.shells = append(fx.shells, sh)
		fx.mu.Unlock()
		return sh, nil
	})
	fx.manager = NewManager(dialer, fx.registry, Options{
		CommandTimeout: 2 * time.Second,
		Logger:         logger,
		Metrics:        fx.metrics,
	})
	t.Cleanup(func() { fx.manager.CloseAll() })
	return fx
}

func (fx *fixture) shell(i int) *fakeShell {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.shells[i]
}

func (fx *fixture) open(t *testing.T) string {
	t.Helper()
	id, err := fx.manager.Open(context.Background(), transport.Target{Host: "fake", User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return id
}

var errBroken = errors.New("broken pipe")
