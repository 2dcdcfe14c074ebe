package core

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindValidation
	KindConfiguration
	KindUnknownTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConfiguration:
		return "configuration_error"
	case KindUnknownTransport:
		return "unknown_transport"
	default:
		return "transport_error"
	}
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrTransport        = &Error{Kind: KindTransport}
	ErrUnknownTransport = &Error{Kind: KindUnknownTransport}
)

// Error is the only error shape that leaves the dispatch core.
type Error struct {
	Kind      ErrorKind
	Transport TransportKind
	Target    string
	Message   string
	Hint      string
	Timeout   bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Transport != TransportUnknown {
		fmt.Fprintf(&b, " [%s]", e.Transport)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (%s)", e.Hint)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func validationError(kind TransportKind, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Transport: kind, Message: fmt.Sprintf(format, args...)}
}

func configurationError(kind TransportKind, err error, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Transport: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func transportError(kind TransportKind, target string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransport, Transport: kind, Target: target, Message: fmt.Sprintf(format, args...), Err: err}
}

// classify makes sure err is a *Error, wrapping anything else as a transport failure.
func classify(kind TransportKind, target string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return transportError(kind, target, err, "failed to send to %s", target)
}

func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindTransport, false
}

func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Timeout
}
