package program

import (
	"io"
	"log/slog"
	"time"
)

// Effects is the effects value handed to program handlers. It carries the
// side effects the effect step may reach.
type Effects struct {
	Logger *slog.Logger
	Out    io.Writer
	Now    func() int64
}

// NewEffects returns Effects that log to logger, print to out and read
// the wall clock in Unix milliseconds.
func NewEffects(logger *slog.Logger, out io.Writer) Effects {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return Effects{
		Logger: logger,
		Out:    out,
		Now:    func() int64 { return time.Now().UnixMilli() },
	}
}
