package core

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// lprHeader is the control frame sent before the payload on the LPD port.
var lprHeader = []byte{0x02, 'l', 'p', '\n'}

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// NetworkTransport sends a label over one TCP connection, RAW on any port and
// LPR-framed on port 515. It never retries.
type NetworkTransport struct {
	dial DialFunc
}

func NewNetworkTransport() *NetworkTransport {
	return &NetworkTransport{}
}

// NewNetworkTransportWithDialer replaces the TCP dialer, mostly for tests.
func NewNetworkTransportWithDialer(dial DialFunc) *NetworkTransport {
	return &NetworkTransport{dial: dial}
}

func (t *NetworkTransport) Kind() TransportKind {
	return TransportNetwork
}

func (t *NetworkTransport) Validate(job *PrintJob) error {
	job.Target.Host = strings.TrimSpace(job.Target.Host)
	if job.Target.Host == "" {
		return validationError(TransportNetwork, "printer IP address is required")
	}
	if job.Target.Port < 1 || job.Target.Port > 65535 {
		return validationError(TransportNetwork, "invalid port %d (must be between 1 and 65535)", job.Target.Port)
	}
	return nil
}

// Frame returns the exact bytes written to the socket for the given port.
func Frame(port int, payload []byte) []byte {
	if port != LPRPort {
		return payload
	}
	framed := make([]byte, 0, len(lprHeader)+len(payload))
	framed = append(framed, lprHeader...)
	return append(framed, payload...)
}

func (t *NetworkTransport) Send(ctx context.Context, job *PrintJob) error {
	timeout := job.EffectiveTimeout()
	address := net.JoinHostPort(job.Target.Host, strconv.Itoa(job.Target.Port))

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := t.dialer(timeout)(dialCtx, "tcp", address)
	if err != nil {
		return t.sendError(address, err, "connection failed")
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))

	data := Frame(job.Target.Port, job.Payload)
	n, err := conn.Write(data)
	if err != nil {
		return t.sendError(address, err, "write failed after %d of %d bytes", n, len(data))
	}
	return nil
}

func (t *NetworkTransport) dialer(timeout time.Duration) DialFunc {
	if t.dial != nil {
		return t.dial
	}
	d := &net.Dialer{Timeout: timeout}
	return d.DialContext
}

func (t *NetworkTransport) sendError(address string, err error, format string, args ...any) *Error {
	e := transportError(TransportNetwork, address, err, "failed to send to %s: %s", address, fmt.Sprintf(format, args...))
	e.Timeout = isTimeout(err)
	return e
}
