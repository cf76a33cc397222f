package programmer

// Result is the outcome of one programming session.
type Result int

const (
	Success Result = iota
	ImageLoadFailure
	ChannelFailure
	AutoBaudFailure
	ModeCommandFailure
	TransferFailure
	CrcMismatch
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ImageLoadFailure:
		return "image load failure"
	case ChannelFailure:
		return "channel failure"
	case AutoBaudFailure:
		return "auto-baud failure"
	case ModeCommandFailure:
		return "mode command failure"
	case TransferFailure:
		return "transfer failure"
	case CrcMismatch:
		return "CRC mismatch"
	}
	return "unknown"
}

// ExitCode maps the result to a process exit status, zero on success.
func (r Result) ExitCode() int {
	return int(r)
}
