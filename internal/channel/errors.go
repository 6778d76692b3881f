package channel

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/agent/internal/disk"
)

var (
	// ErrInvalidCommand reports an unknown command or event name
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInvalidArgument reports a missing or malformed positional argument
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports a missing session or watch request
	ErrNotFound = errors.New("not found")

	// ErrUnimplemented reports a declared command with no implementation
	ErrUnimplemented = errors.New("unimplemented")
)

// Wire codes reported alongside error messages
const (
	CodeInvalidCommand  = "InvalidCommand"
	CodeInvalidArgument = "InvalidArgument"
	CodeNotFound        = "NotFound"
	CodeUnimplemented   = "Unimplemented"
	CodeUnknown         = "Unknown"
)

// Code classifies err for the client. Disk failures keep their own code.
func Code(err error) string {
	var de *disk.Error
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return CodeInvalidCommand
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnimplemented):
		return CodeUnimplemented
	case errors.As(err, &de):
		return string(de.Code)
	}
	return CodeUnknown
}
