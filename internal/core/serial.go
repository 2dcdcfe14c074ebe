package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const SerialBaudRate = 9600

var (
	ErrSerialUnavailable = errors.New("serial I/O is not available on this host")
	errSerialTimeout     = errors.New("serial write timed out")
)

var DefaultSerialPrefixes = []string{"COM"}

type SerialPort interface {
	Write(p []byte) (int, error)
	// Drain blocks until everything written has been transmitted.
	Drain() error
	Close() error
}

// SerialOpener is the host's serial-I/O capability.
type SerialOpener interface {
	Available() error
	Open(name string, baud int) (SerialPort, error)
	ListPorts() ([]SerialPortDescriptor, error)
}

type SerialTransport struct {
	opener   SerialOpener
	prefixes []string
}

// NewSerialTransport accepts only port names beginning with one of prefixes
// (case-insensitive). A nil or empty prefix list means DefaultSerialPrefixes.
func NewSerialTransport(opener SerialOpener, prefixes []string) *SerialTransport {
	if len(prefixes) == 0 {
		prefixes = DefaultSerialPrefixes
	}
	upper := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			upper = append(upper, p)
		}
	}
	return &SerialTransport{opener: opener, prefixes: upper}
}

func (t *SerialTransport) Kind() TransportKind {
	return TransportSerial
}

func (t *SerialTransport) hasPrefix(port string) bool {
	port = strings.ToUpper(port)
	for _, p := range t.prefixes {
		if strings.HasPrefix(port, p) {
			return true
		}
	}
	return false
}

func (t *SerialTransport) Validate(job *PrintJob) error {
	job.Target.SerialPort = strings.TrimSpace(job.Target.SerialPort)
	port := job.Target.SerialPort
	if port == "" {
		return validationError(TransportSerial, "COM port is required (e.g. COM1)")
	}
	if !t.hasPrefix(port) {
		return validationError(TransportSerial, "invalid COM port %q (must start with %s)", port, strings.Join(t.prefixes, " or "))
	}
	if t.opener == nil {
		return configurationError(TransportSerial, ErrSerialUnavailable, "serial support is not configured")
	}
	if err := t.opener.Available(); err != nil {
		return configurationError(TransportSerial, err, "serial support is not available")
	}
	return nil
}

// Send opens the port, writes the whole payload once, drains and closes it. The
// port is closed exactly once, also when the write times out.
func (t *SerialTransport) Send(ctx context.Context, job *PrintJob) error {
	name := job.Target.SerialPort

	port, err := t.opener.Open(name, SerialBaudRate)
	if err != nil {
		return transportError(TransportSerial, name, err, "failed to open %s", name)
	}

	var once sync.Once
	closePort := func() error {
		var cerr error
		once.Do(func() { cerr = port.Close() })
		return cerr
	}
	defer closePort()

	done := make(chan error, 1)
	go func() {
		if _, werr := port.Write(job.Payload); werr != nil {
			done <- werr
			return
		}
		done <- port.Drain()
	}()

	timer := time.NewTimer(job.EffectiveTimeout())
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		// Closing the port unblocks the pending write.
		closePort()
		e := transportError(TransportSerial, name, errSerialTimeout, "failed to send to %s", name)
		e.Timeout = true
		return e
	case <-ctx.Done():
		closePort()
		return transportError(TransportSerial, name, ctx.Err(), "failed to send to %s", name)
	}
	if err != nil {
		return transportError(TransportSerial, name, err, "failed to send to %s", name)
	}

	if err := closePort(); err != nil {
		return transportError(TransportSerial, name, err, "failed to close %s", name)
	}
	return nil
}
