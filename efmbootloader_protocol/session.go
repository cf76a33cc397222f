package efmbootloader_protocol

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State of a command exchange.
type State int

const (
	Idle State = iota
	WaitingEcho
	WaitingResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingEcho:
		return "waiting-echo"
	case WaitingResponse:
		return "waiting-response"
	}
	return "unknown"
}

// DefaultMaxRetries is the retry budget of one exchange.
const DefaultMaxRetries = 10

// Session drives command exchanges with the bootloader over a Channel.
// Only one command is in flight at a time; a Session must not be shared
// between goroutines.
type Session struct {
	// MaxRetries is the budget every SendCmd starts with.
	MaxRetries int
	Log        log.FieldLogger

	ch       Channel
	state    State
	cmd      Command
	response []byte
	budget   int

	baseline time.Duration
	armed    bool
	sticky   bool
}

// NewSession wraps ch. The current channel timeout becomes the baseline
// restored before each exchange.
func NewSession(ch Channel) *Session {
	return &Session{
		MaxRetries: DefaultMaxRetries,
		Log:        log.StandardLogger(),
		ch:         ch,
		budget:     DefaultMaxRetries,
		baseline:   ch.Timeout(),
	}
}

// Channel returns the wrapped channel.
func (s *Session) Channel() Channel { return s.ch }

// State returns the state of the current exchange.
func (s *Session) State() State { return s.state }

// Budget returns the remaining retry budget.
func (s *Session) Budget() int { return s.budget }

// Response returns the response of the last completed exchange.
func (s *Session) Response() []byte { return s.response }

// Baseline returns the timeout restored at the start of an exchange.
func (s *Session) Baseline() time.Duration { return s.baseline }

// SendCmd writes cmd and waits for its response line. It fails with
// ErrRetriesExhausted once the retry budget is used up.
func (s *Session) SendCmd(cmd Command) ([]byte, error) {
	if s.state != Idle {
		return nil, &ExchangeError{Cmd: cmd, State: s.state, Err: ErrBusy}
	}
	if err := s.restoreTimeout(); err != nil {
		return nil, &ExchangeError{Cmd: cmd, State: s.state, Err: err}
	}

	prev := s.budget
	s.budget = s.MaxRetries
	s.response = nil

	if _, err := s.ch.Write(cmd); err != nil {
		return nil, &ExchangeError{Cmd: cmd, State: s.state, Err: errors.Wrap(err, "write")}
	}
	s.cmd = cmd
	s.state = WaitingEcho

	for s.state != Idle {
		if s.budget <= 0 {
			st := s.state
			s.state = Idle
			return nil, &ExchangeError{Cmd: cmd, State: st, Err: ErrRetriesExhausted}
		}
		if err := s.step(); err != nil {
			st := s.state
			s.state = Idle
			return nil, &ExchangeError{Cmd: cmd, State: st, Err: err}
		}
	}

	s.budget = prev
	s.Log.WithFields(log.Fields{
		"cmd":      cmd.String(),
		"response": string(s.response),
	}).Debug("exchange complete")
	return s.response, nil
}

// Send writes cmd without waiting for anything back.
func (s *Session) Send(cmd Command) error {
	if s.state != Idle {
		return &ExchangeError{Cmd: cmd, State: s.state, Err: ErrBusy}
	}
	if _, err := s.ch.Write(cmd); err != nil {
		return &ExchangeError{Cmd: cmd, State: s.state, Err: errors.Wrap(err, "write")}
	}
	s.Log.WithField("cmd", cmd.String()).Debug("sent")
	return nil
}

func (s *Session) step() error {
	raw, err := s.ch.ReadLine()
	if err != nil {
		return errors.Wrap(err, "read line")
	}
	line := bytes.TrimRight(raw, "\r\n")

	s.Log.WithFields(log.Fields{
		"cmd":    s.cmd.String(),
		"state":  s.state.String(),
		"budget": s.budget,
		"line":   string(line),
	}).Trace("step")

	switch s.state {
	case WaitingEcho:
		s.onEcho(line)
	case WaitingResponse:
		s.onResponse(line)
	}
	return nil
}

func (s *Session) onEcho(line []byte) {
	switch {
	case s.cmd.IsAutoBaud():
		s.state = WaitingResponse
	case s.cmd.Equal(line):
		// The echo itself costs a retry. Whether the device can repeat an
		// echo is unknown, so this is kept as the firmware tools do it.
		s.budget--
	default:
		s.state = WaitingResponse
		s.onResponse(line)
	}
}

func (s *Session) onResponse(line []byte) {
	if len(line) == 0 {
		s.budget--
		return
	}
	s.response = append([]byte(nil), line...)
	s.state = Idle
}

// OverrideTimeout raises the channel timeout. A one-shot override holds for
// the next SendCmd only; a sticky one holds until ClearOverride.
func (s *Session) OverrideTimeout(d time.Duration, sticky bool) error {
	if err := s.setTimeout(d); err != nil {
		return err
	}
	s.armed = !sticky
	s.sticky = sticky
	return nil
}

// ClearOverride puts the baseline timeout back.
func (s *Session) ClearOverride() error {
	s.armed = false
	s.sticky = false
	return s.setTimeout(s.baseline)
}

// SetBaseline changes the timeout restored before each exchange.
func (s *Session) SetBaseline(d time.Duration) error {
	s.baseline = d
	return s.ClearOverride()
}

func (s *Session) restoreTimeout() error {
	switch {
	case s.armed:
		s.armed = false
		return nil
	case s.sticky:
		return nil
	}
	return s.setTimeout(s.baseline)
}

func (s *Session) setTimeout(d time.Duration) error {
	if d <= 0 || d == s.ch.Timeout() {
		return nil
	}
	return errors.Wrapf(s.ch.SetTimeout(d), "set timeout %v", d)
}

// Getc reads up to size bytes, stopping early on timeout.
func (s *Session) Getc(size int, timeout time.Duration) ([]byte, error) {
	if err := s.setTimeout(timeout); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n := 0
	for n < size {
		m, err := s.ch.Read(buf[n:])
		n += m
		if err != nil {
			return buf[:n], errors.Wrap(err, "getc")
		}
		if m == 0 {
			break
		}
	}
	return buf[:n], nil
}

// Putc writes data to the channel.
func (s *Session) Putc(data []byte, timeout time.Duration) (int, error) {
	if err := s.setTimeout(timeout); err != nil {
		return 0, err
	}
	n, err := s.ch.Write(data)
	return n, errors.Wrap(err, "putc")
}
