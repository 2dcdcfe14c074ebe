package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
	"syscall"
	"time"
)

const (
	DefaultProxyURL     = "http://127.0.0.1:9001"
	DefaultProxyTimeout = 5 * time.Second
)

// ProxyRequest is the body of POST /print on the print service.
type ProxyRequest struct {
	Printer string `json:"printer"`
	Data    string `json:"data"`
}

type ProxyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

type proxyErrorBody struct {
	Error string `json:"error"`
}

// ProxyTransport forwards jobs to the loopback print service. Its own timeout
// applies regardless of the job timeout.
type ProxyTransport struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func NewProxyTransport(baseURL string, timeout time.Duration) *ProxyTransport {
	if baseURL == "" {
		baseURL = DefaultProxyURL
	}
	if timeout <= 0 {
		timeout = DefaultProxyTimeout
	}
	return &ProxyTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (t *ProxyTransport) Kind() TransportKind {
	return TransportProxy
}

func (t *ProxyTransport) URL() string {
	return t.baseURL
}

func (t *ProxyTransport) Validate(job *PrintJob) error {
	job.Target.PrinterName = strings.TrimSpace(job.Target.PrinterName)
	if job.Target.PrinterName == "" {
		return validationError(TransportProxy, "printer name is required")
	}
	if len(job.Payload) == 0 {
		return validationError(TransportProxy, "TSPL payload is empty")
	}
	// The proxy carries the payload as a JSON string.
	if !utf8.Valid(job.Payload) {
		return &Error{
			Kind:      KindValidation,
			Transport: TransportProxy,
			Message:   "payload is not valid UTF-8",
			Hint:      "use a direct transport for binary TSPL",
		}
	}
	return nil
}

func (t *ProxyTransport) Send(ctx context.Context, job *PrintJob) error {
	printer := job.Target.PrinterName

	body, err := json.Marshal(ProxyRequest{Printer: printer, Data: string(job.Payload)})
	if err != nil {
		return transportError(TransportProxy, printer, err, "failed to encode print request")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/print", bytes.NewReader(body))
	if err != nil {
		return transportError(TransportProxy, printer, err, "failed to build print request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return t.requestError(printer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transportError(TransportProxy, printer, nil, "print service rejected job for %s: %s", printer, proxyErrorMessage(resp))
	}
	return nil
}

// Status probes GET /status on the print service.
func (t *ProxyTransport) Status(ctx context.Context) (*ProxyStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/status", nil)
	if err != nil {
		return nil, transportError(TransportProxy, t.baseURL, err, "failed to build status request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.requestError(t.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportError(TransportProxy, t.baseURL, nil, "print service status check failed: %s", proxyErrorMessage(resp))
	}

	var status ProxyStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, transportError(TransportProxy, t.baseURL, err, "invalid status response")
	}
	return &status, nil
}

func (t *ProxyTransport) requestError(target string, err error) *Error {
	switch {
	case isConnRefused(err):
		e := transportError(TransportProxy, target, err, "print service is not running at %s", t.baseURL)
		e.Hint = "start the local print service (printservice) and try again"
		return e
	case isTimeout(err):
		e := transportError(TransportProxy, target, err, "print service did not respond within %s", t.timeout)
		e.Timeout = true
		return e
	default:
		return transportError(TransportProxy, target, err, "failed to reach print service at %s", t.baseURL)
	}
}

func proxyErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body proxyErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	// Windows reports WSAECONNREFUSED, which syscall does not map.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
