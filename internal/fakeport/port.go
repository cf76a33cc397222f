// Package fakeport is an in-memory bootloader channel for tests.
package fakeport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("fakeport: closed")

// Port scripts what a device sends back. Lines queued with Line are handed out
// by ReadLine; an exhausted queue reads as a timeout. Bytes queued with Bytes
// are handed out by Read. OnWrite, when set, sees every write and may queue
// replies.
type Port struct {
	OnWrite func(p *Port, data []byte)

	mu       sync.Mutex
	lines    [][]byte
	rx       bytes.Buffer
	tx       bytes.Buffer
	writes   [][]byte
	timeout  time.Duration
	timeouts []time.Duration
	reads    int
	closed   bool
}

// New returns a port with the given read timeout.
func New(timeout time.Duration) *Port {
	return &Port{timeout: timeout}
}

// Line queues lines for ReadLine. An empty line reads as a timeout.
func (p *Port) Line(lines ...string) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.lines = append(p.lines, []byte(l))
	}
	return p
}

// Bytes queues raw bytes for Read.
func (p *Port) Bytes(b ...byte) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx.Write(b)
	return p
}

// Written returns everything written so far.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx.Bytes()...)
}

// Writes returns each Write call separately.
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

// LineReads counts ReadLine calls.
func (p *Port) LineReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// Timeouts lists every SetTimeout value in order.
func (p *Port) Timeouts() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.timeouts...)
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if p.rx.Len() == 0 {
		return 0, nil
	}
	return p.rx.Read(b)
}

func (p *Port) ReadLine() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	p.reads++
	if len(p.lines) == 0 {
		return nil, nil
	}
	l := p.lines[0]
	p.lines = p.lines[1:]
	if len(l) == 0 {
		return nil, nil
	}
	return append(l, '\r', '\n'), nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.tx.Write(b)
	data := append([]byte(nil), b...)
	p.writes = append(p.writes, data)
	hook := p.OnWrite
	p.mu.Unlock()

	if hook != nil {
		hook(p, data)
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Port) Timeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

func (p *Port) SetTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.timeout = d
	p.timeouts = append(p.timeouts, d)
	return nil
}
