package process

import (
	"errors"
	"fmt"
)

// Reason classifies an AdmissionError.
type Reason string

const (
	ReasonAlreadyRunning Reason = "already_running"
	ReasonInvalidCommand Reason = "invalid_command"
)

// AdmissionError reports a start request that was refused before anything was
// launched. Its message is meant for the operator verbatim.
type AdmissionError struct {
	Reason Reason
	Msg    string
}

func (e *AdmissionError) Error() string { return e.Msg }

// Is matches any AdmissionError with the same Reason, so callers can write
// errors.Is(err, ErrAlreadyRunning).
func (e *AdmissionError) Is(target error) bool {
	var t *AdmissionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrAlreadyRunning = &AdmissionError{Reason: ReasonAlreadyRunning, Msg: "A scan is already in progress."}
	ErrInvalidCommand = &AdmissionError{Reason: ReasonInvalidCommand, Msg: "invalid command"}

	ErrNoActiveScan = errors.New("No active scan to stop.")
)

func invalidCommand(msg string) error {
	return &AdmissionError{Reason: ReasonInvalidCommand, Msg: msg}
}

// StorageError reports a failure to prepare the scan output directory.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("Could not create directory: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// LaunchError reports that the scan process could not be started.
type LaunchError struct {
	Args []string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch scan: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// SignalError reports that the interrupt could not be delivered to the scan's
// process group.
type SignalError struct {
	PGID int
	Err  error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("failed to signal process group %d: %v", e.PGID, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }
