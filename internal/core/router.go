package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orrn/labelgate/internal/logging"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/orrn/labelgate/internal/core Transport

// Transport is one physical delivery channel. Implementations return only *Error values.
type Transport interface {
	Kind() TransportKind
	// Validate checks the transport-specific target fields and host capabilities
	// without performing any I/O on the target.
	Validate(job *PrintJob) error
	Send(ctx context.Context, job *PrintJob) error
}

// Detacher is implemented by transports whose Send must not block the caller.
type Detacher interface {
	Detached() bool
}

// DispatchOutcome describes a finished (or failed) dispatch for observers.
type DispatchOutcome struct {
	Job        *PrintJob
	Status     ResultStatus
	Err        *Error
	Background bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Target returns the printable destination of the outcome's job.
func (o *DispatchOutcome) Target() string {
	return describeTarget(o.Job)
}

type Recorder interface {
	RecordDispatch(ctx context.Context, outcome *DispatchOutcome) error
}

type Notifier interface {
	NotifyBackgroundOutcome(outcome *DispatchOutcome)
}

type Router struct {
	transports map[TransportKind]Transport
	pool       *BackgroundPool
	recorder   Recorder
	notifier   Notifier
	minTimeout int
}

type RouterOption func(*Router)

func WithRecorder(r Recorder) RouterOption {
	return func(rt *Router) { rt.recorder = r }
}

func WithNotifier(n Notifier) RouterOption {
	return func(rt *Router) { rt.notifier = n }
}

// WithMinTimeout raises the timeout floor applied to every job. Values below
// MinTimeoutMs are ignored.
func WithMinTimeout(d time.Duration) RouterOption {
	return func(rt *Router) {
		if ms := int(d / time.Millisecond); ms > rt.minTimeout {
			rt.minTimeout = ms
		}
	}
}

func NewRouter(pool *BackgroundPool, opts ...RouterOption) *Router {
	r := &Router{
		transports: make(map[TransportKind]Transport),
		pool:       pool,
		minTimeout: MinTimeoutMs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a transport, replacing any previous one of the same kind.
func (r *Router) Register(t Transport) {
	r.transports[t.Kind()] = t
}

// Dispatch validates the job, hands it to the selected transport and returns the
// classified result. Spooler jobs are accepted and written on the background pool.
func (r *Router) Dispatch(ctx context.Context, job *PrintJob) (*Result, error) {
	if job == nil || len(job.Payload) == 0 {
		return nil, validationError(TransportUnknown, "TSPL payload is empty")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.TimeoutMs < r.minTimeout {
		job.TimeoutMs = r.minTimeout
	}

	if job.Kind == TransportUnknown {
		return nil, &Error{
			Kind:    KindUnknownTransport,
			Message: fmt.Sprintf("unknown printer transport: %q", job.Tag),
		}
	}
	t, ok := r.transports[job.Kind]
	if !ok {
		return nil, configurationError(job.Kind, nil, "%s transport is disabled", job.Kind)
	}

	log := logging.WithComponent("router")
	target := describeTarget(job)

	if err := r.validate(t, job); err != nil {
		log.Warn().Str("job_id", job.ID).Str("transport", job.Kind.String()).Str("target", target).Err(err).Msg("print job rejected")
		return nil, err
	}

	result := &Result{
		JobID:     job.ID,
		Transport: job.Kind,
		Target:    target,
		Bytes:     len(job.Payload),
	}

	if d, ok := t.(Detacher); ok && d.Detached() {
		if err := r.detach(t, job); err != nil {
			return nil, err
		}
		result.Status = ResultAccepted
		log.Info().Str("job_id", job.ID).Str("transport", job.Kind.String()).Str("target", target).Int("bytes", len(job.Payload)).Msg("print job accepted")
		return result, nil
	}

	// Dispatched jobs are not cancellable; only the job timeout bounds the send.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	err := r.send(ctx, t, job)
	r.finish(ctx, job, err, false, started)
	if err != nil {
		log.Error().Str("job_id", job.ID).Str("transport", job.Kind.String()).Str("target", target).Err(err).Msg("print job failed")
		return nil, err
	}

	result.Status = ResultSent
	log.Info().Str("job_id", job.ID).Str("transport", job.Kind.String()).Str("target", target).Int("bytes", len(job.Payload)).Dur("elapsed", time.Since(started)).Msg("print job sent")
	return result, nil
}

func (r *Router) validate(t Transport, job *PrintJob) (err *Error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = transportError(job.Kind, describeTarget(job), fmt.Errorf("%v", rec), "transport validation panicked")
		}
	}()
	return classify(job.Kind, describeTarget(job), t.Validate(job))
}

// send runs the transport and guarantees a classified error, panics included.
func (r *Router) send(ctx context.Context, t Transport, job *PrintJob) (err *Error) {
	target := describeTarget(job)
	defer func() {
		if rec := recover(); rec != nil {
			err = transportError(job.Kind, target, fmt.Errorf("%v", rec), "transport panicked")
		}
	}()
	return classify(job.Kind, target, t.Send(ctx, job))
}

func (r *Router) detach(t Transport, job *PrintJob) *Error {
	if r.pool == nil {
		return configurationError(job.Kind, nil, "no background pool configured")
	}

	accepted := time.Now()
	r.record(context.Background(), &DispatchOutcome{
		Job:        job,
		Status:     ResultAccepted,
		Background: true,
		StartedAt:  accepted,
	})

	submitErr := r.pool.Submit("print:"+job.ID, func(ctx context.Context) error {
		started := time.Now()
		err := r.send(ctx, t, job)
		r.finish(ctx, job, err, true, started)
		if err != nil {
			return err
		}
		logging.WithComponent("router").Info().Str("job_id", job.ID).Str("transport", job.Kind.String()).
			Str("target", describeTarget(job)).Dur("elapsed", time.Since(started)).Msg("background print job finished")
		return nil
	})
	if submitErr != nil {
		err := transportError(job.Kind, describeTarget(job), submitErr, "print job not accepted")
		r.finish(context.Background(), job, err, false, accepted)
		return err
	}
	return nil
}

func (r *Router) finish(ctx context.Context, job *PrintJob, err *Error, background bool, started time.Time) {
	outcome := &DispatchOutcome{
		Job:        job,
		Status:     ResultSent,
		Background: background,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Err:        err,
	}

	r.record(ctx, outcome)
	if background && r.notifier != nil {
		r.notifier.NotifyBackgroundOutcome(outcome)
	}
}

func (r *Router) record(ctx context.Context, outcome *DispatchOutcome) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordDispatch(ctx, outcome); err != nil && !errors.Is(err, context.Canceled) {
		logging.WithComponent("router").Warn().Str("job_id", outcome.Job.ID).Err(err).Msg("failed to record dispatch")
	}
}

func describeTarget(job *PrintJob) string {
	switch job.Kind {
	case TransportNetwork:
		return fmt.Sprintf("%s:%d", job.Target.Host, job.Target.Port)
	case TransportSerial:
		return job.Target.SerialPort
	case TransportSpooler:
		return spoolerTarget(job)
	case TransportProxy:
		return job.Target.PrinterName
	default:
		return ""
	}
}
