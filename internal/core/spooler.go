package core

import (
	"context"
	"errors"
	"runtime"
	"strings"
)

// ErrSpoolerUnavailable is returned by Spooler.Available on hosts without a
// usable OS print API.
var ErrSpoolerUnavailable = errors.New("OS print spooler is not available on this host")

const DefaultDocumentName = "TSPL label"

// SpoolHandle is an open printer owned by a single job.
type SpoolHandle interface {
	StartRawDocument(name string) error
	Write(b []byte) (int, error)
	EndDocument() error
	Close() error
}

type Spooler interface {
	Available() error
	Open(name string) (SpoolHandle, error)
	ListPrinters() ([]PrinterDescriptor, error)
}

// SpoolerTransport writes raw documents through the OS spooler. Its jobs run
// detached on the router's background pool.
type SpoolerTransport struct {
	spooler Spooler
	writer  *ChunkedWriter
	docName string
	goos    string
}

type SpoolerOption func(*SpoolerTransport)

func WithDocumentName(name string) SpoolerOption {
	return func(t *SpoolerTransport) {
		if name != "" {
			t.docName = name
		}
	}
}

func WithChunkedWriter(w *ChunkedWriter) SpoolerOption {
	return func(t *SpoolerTransport) { t.writer = w }
}

// WithGOOS overrides the platform used for the shared-printer check.
func WithGOOS(goos string) SpoolerOption {
	return func(t *SpoolerTransport) { t.goos = goos }
}

func NewSpoolerTransport(spooler Spooler, opts ...SpoolerOption) *SpoolerTransport {
	t := &SpoolerTransport{
		spooler: spooler,
		writer:  NewChunkedWriter(DefaultChunkPolicy),
		docName: DefaultDocumentName,
		goos:    runtime.GOOS,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SpoolerTransport) Kind() TransportKind {
	return TransportSpooler
}

func (t *SpoolerTransport) Detached() bool {
	return true
}

// IsUNCPath reports whether target names a printer shared by another host.
func IsUNCPath(target string) bool {
	return strings.HasPrefix(target, `\\`) || strings.HasPrefix(target, "//")
}

func (t *SpoolerTransport) Validate(job *PrintJob) error {
	job.Target.PrinterPath = strings.TrimSpace(job.Target.PrinterPath)
	job.Target.PrinterName = strings.TrimSpace(job.Target.PrinterName)

	target := spoolerTarget(job)
	if target == "" {
		return validationError(TransportSpooler, "shared printer path is required")
	}
	if IsUNCPath(target) && t.goos != "windows" {
		return validationError(TransportSpooler, "shared Windows printers only work on Windows (running on %s)", t.goos)
	}
	if t.spooler == nil {
		return configurationError(TransportSpooler, ErrSpoolerUnavailable, "OS print API is not configured")
	}
	if err := t.spooler.Available(); err != nil {
		return configurationError(TransportSpooler, err, "OS print API is not available")
	}
	return nil
}

func (t *SpoolerTransport) Send(_ context.Context, job *PrintJob) (err error) {
	target := spoolerTarget(job)

	h, openErr := t.spooler.Open(target)
	if openErr != nil {
		return transportError(TransportSpooler, target, openErr, "failed to open printer %s", target)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = transportError(TransportSpooler, target, cerr, "failed to release printer %s", target)
		}
	}()

	return WriteRawDocument(h, t.writer, t.docName, target, job.Payload)
}

// WriteRawDocument sends payload as one RAW document on an already open handle.
// The handle is not closed.
func WriteRawDocument(h SpoolHandle, w *ChunkedWriter, docName, target string, payload []byte) error {
	if err := h.StartRawDocument(docName); err != nil {
		return transportError(TransportSpooler, target, err, "failed to start document on %s", target)
	}

	n, err := w.WriteAll(h, payload)
	if err != nil {
		return transportError(TransportSpooler, target, err, "write to %s failed after %d of %d bytes", target, n, len(payload))
	}

	if err := h.EndDocument(); err != nil {
		return transportError(TransportSpooler, target, err, "failed to finish document on %s", target)
	}
	return nil
}

func spoolerTarget(job *PrintJob) string {
	if job.Target.PrinterPath != "" {
		return job.Target.PrinterPath
	}
	return job.Target.PrinterName
}
