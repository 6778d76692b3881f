package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Code identifies a class of disk failure. Values are sent to clients.
type Code string

const (
	CodeFileNotFound      Code = "FileNotFound"
	CodeFileExists        Code = "FileExists"
	CodeFileIsADirectory  Code = "FileIsADirectory"
	CodeFileNotADirectory Code = "FileNotADirectory"
	CodeNoPermissions     Code = "NoPermissions"
	CodeUnavailable       Code = "Unavailable"
	CodeUnknown           Code = "Unknown"
)

// Sentinels for errors.Is checks against an *Error
var (
	ErrFileNotFound      = &Error{Code: CodeFileNotFound}
	ErrFileExists        = &Error{Code: CodeFileExists}
	ErrFileIsADirectory  = &Error{Code: CodeFileIsADirectory}
	ErrFileNotADirectory = &Error{Code: CodeFileNotADirectory}
	ErrNoPermissions     = &Error{Code: CodeNoPermissions}
	ErrUnavailable       = &Error{Code: CodeUnavailable}
)

// Error is a failure of the disk primitive
type Error struct {
	Code Code
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s (%s)", e.Code, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap classifies err and attaches the path it occurred on
func Wrap(path string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Code: classify(err), Path: path, Err: err}
}

func classify(err error) Code {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CodeFileNotFound
	case errors.Is(err, fs.ErrExist):
		return CodeFileExists
	case errors.Is(err, fs.ErrPermission):
		return CodeNoPermissions
	case errors.Is(err, syscall.EISDIR):
		return CodeFileIsADirectory
	case errors.Is(err, syscall.ENOTDIR):
		return CodeFileNotADirectory
	case errors.Is(err, fs.ErrClosed):
		return CodeUnavailable
	}
	return CodeUnknown
}
