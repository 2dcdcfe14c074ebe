package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/core/mocks"
)

type detachedTransport struct {
	*mocks.MockTransport
}

func (detachedTransport) Detached() bool { return true }

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []core.DispatchOutcome
}

func (r *memoryRecorder) RecordDispatch(_ context.Context, o *core.DispatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, *o)
	return nil
}

func (r *memoryRecorder) snapshot() []core.DispatchOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.DispatchOutcome(nil), r.outcomes...)
}

type chanNotifier chan *core.DispatchOutcome

func (n chanNotifier) NotifyBackgroundOutcome(o *core.DispatchOutcome) { n <- o }

func newMockTransport(ctrl *gomock.Controller, kind core.TransportKind) *mocks.MockTransport {
	m := mocks.NewMockTransport(ctrl)
	m.EXPECT().Kind().Return(kind).AnyTimes()
	return m
}

func networkJob(payload string) *core.PrintJob {
	return &core.PrintJob{
		Kind:      core.TransportNetwork,
		Tag:       "rede_ip",
		Payload:   []byte(payload),
		Target:    core.Target{Host: "10.0.0.5", Port: 9100},
		TimeoutMs: 3000,
	}
}

func TestDispatchEmptyPayloadNeverReachesTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	for _, kind := range []core.TransportKind{core.TransportNetwork, core.TransportSerial, core.TransportSpooler, core.TransportProxy} {
		m := newMockTransport(ctrl, kind)
		router := core.NewRouter(nil)
		router.Register(m)

		res, err := router.Dispatch(context.Background(), &core.PrintJob{Kind: kind, Tag: kind.String()})
		assert.Nil(t, res)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrValidation), "kind %s: %v", kind, err)
	}
}

func TestDispatchClampsTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	for _, ms := range []int{-5, 0, 1, 249} {
		m := newMockTransport(ctrl, core.TransportNetwork)
		m.EXPECT().Validate(gomock.Any()).Return(nil)
		m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job *core.PrintJob) error {
			assert.Equal(t, core.MinTimeoutMs, job.TimeoutMs)
			assert.Equal(t, 250*time.Millisecond, job.EffectiveTimeout())
			return nil
		})

		router := core.NewRouter(nil)
		router.Register(m)

		job := networkJob("SIZE 50,30\r\nPRINT 1\r\n")
		job.TimeoutMs = ms
		_, err := router.Dispatch(context.Background(), job)
		require.NoError(t, err)
	}
}

func TestDispatchKeepsTimeoutAboveFloor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportNetwork)
	m.EXPECT().Validate(gomock.Any()).Return(nil)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job *core.PrintJob) error {
		assert.Equal(t, 3000, job.TimeoutMs)
		return nil
	})

	router := core.NewRouter(nil)
	router.Register(m)

	res, err := router.Dispatch(context.Background(), networkJob("X"))
	require.NoError(t, err)
	assert.Equal(t, core.ResultSent, res.Status)
	assert.Equal(t, "10.0.0.5:9100", res.Target)
	assert.Equal(t, 1, res.Bytes)
	assert.NotEmpty(t, res.JobID)
}

func TestDispatchUnknownTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := core.NewRouter(nil)
	router.Register(newMockTransport(ctrl, core.TransportNetwork))

	job := &core.PrintJob{Kind: core.ParseTransportKind("fax"), Tag: "fax", Payload: []byte("X")}
	_, err := router.Dispatch(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownTransport))
	assert.Contains(t, err.Error(), "fax")
}

func TestDispatchDisabledTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := core.NewRouter(nil)
	router.Register(newMockTransport(ctrl, core.TransportNetwork))

	for _, job := range []*core.PrintJob{
		{Kind: core.ParseTransportKind("usb_com"), Tag: "usb_com", Payload: []byte("X"), Target: core.Target{SerialPort: "COM9"}},
		{Kind: core.ParseTransportKind("compartilhada_windows"), Tag: "compartilhada_windows", Payload: []byte("X"), Target: core.Target{PrinterPath: `\\srv\tsc`}},
	} {
		res, err := router.Dispatch(context.Background(), job)
		assert.Nil(t, res)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrConfiguration), "%s: %v", job.Tag, err)
		assert.False(t, errors.Is(err, core.ErrUnknownTransport))
		assert.Contains(t, err.Error(), "transport is disabled")
	}
}

func TestDispatchConfiguredMinTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var seen []int
	m := newMockTransport(ctrl, core.TransportNetwork)
	m.EXPECT().Validate(gomock.Any()).Return(nil).Times(2)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job *core.PrintJob) error {
		seen = append(seen, job.TimeoutMs)
		return nil
	}).Times(2)

	router := core.NewRouter(nil, core.WithMinTimeout(time.Second))
	router.Register(m)

	job := networkJob("X")
	job.TimeoutMs = 300
	_, err := router.Dispatch(context.Background(), job)
	require.NoError(t, err)

	job = networkJob("X")
	job.TimeoutMs = 5000
	_, err = router.Dispatch(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []int{1000, 5000}, seen)
}

func TestWithMinTimeoutNeverLowersFloor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportNetwork)
	m.EXPECT().Validate(gomock.Any()).Return(nil)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job *core.PrintJob) error {
		assert.Equal(t, core.MinTimeoutMs, job.TimeoutMs)
		return nil
	})

	router := core.NewRouter(nil, core.WithMinTimeout(10*time.Millisecond))
	router.Register(m)

	job := networkJob("X")
	job.TimeoutMs = 0
	_, err := router.Dispatch(context.Background(), job)
	require.NoError(t, err)
}

func TestDispatchEmptyPayloadCheckedBeforeTag(t *testing.T) {
	router := core.NewRouter(nil)
	_, err := router.Dispatch(context.Background(), &core.PrintJob{Tag: "fax"})
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestDispatchValidationFailureSkipsSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportNetwork)
	m.EXPECT().Validate(gomock.Any()).Return(&core.Error{Kind: core.KindValidation, Message: "bad port"})

	router := core.NewRouter(nil)
	router.Register(m)

	_, err := router.Dispatch(context.Background(), networkJob("X"))
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestDispatchReclassifiesErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("plain error", func(t *testing.T) {
		m := newMockTransport(ctrl, core.TransportNetwork)
		m.EXPECT().Validate(gomock.Any()).Return(nil)
		m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("connection reset by peer"))

		router := core.NewRouter(nil)
		router.Register(m)

		_, err := router.Dispatch(context.Background(), networkJob("X"))
		require.Error(t, err)
		var e *core.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, core.KindTransport, e.Kind)
		assert.Equal(t, "10.0.0.5:9100", e.Target)
		assert.Contains(t, err.Error(), "connection reset by peer")
	})

	t.Run("panic in send", func(t *testing.T) {
		m := newMockTransport(ctrl, core.TransportNetwork)
		m.EXPECT().Validate(gomock.Any()).Return(nil)
		m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *core.PrintJob) error {
			panic("driver exploded")
		})

		router := core.NewRouter(nil)
		router.Register(m)

		_, err := router.Dispatch(context.Background(), networkJob("X"))
		assert.True(t, errors.Is(err, core.ErrTransport))
		assert.Contains(t, err.Error(), "driver exploded")
	})

	t.Run("panic in validate", func(t *testing.T) {
		m := newMockTransport(ctrl, core.TransportNetwork)
		m.EXPECT().Validate(gomock.Any()).DoAndReturn(func(*core.PrintJob) error {
			panic("nil target")
		})

		router := core.NewRouter(nil)
		router.Register(m)

		_, err := router.Dispatch(context.Background(), networkJob("X"))
		assert.True(t, errors.Is(err, core.ErrTransport))
	})
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportNetwork)
	m.EXPECT().Validate(gomock.Any()).Return(nil)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ *core.PrintJob) error {
		return ctx.Err()
	})

	router := core.NewRouter(nil)
	router.Register(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := router.Dispatch(ctx, networkJob("X"))
	assert.NoError(t, err)
}

func TestDispatchDetachedTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pool := core.NewBackgroundPool(core.PoolConfig{WorkerCount: 1, QueueSize: 4})
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	m := newMockTransport(ctrl, core.TransportSpooler)
	m.EXPECT().Validate(gomock.Any()).Return(nil)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *core.PrintJob) error {
		<-release
		return errors.New("printer jammed")
	})

	recorder := &memoryRecorder{}
	notified := make(chanNotifier, 1)
	router := core.NewRouter(pool, core.WithRecorder(recorder), core.WithNotifier(notified))
	router.Register(detachedTransport{m})

	job := &core.PrintJob{
		Kind:    core.TransportSpooler,
		Tag:     "compartilhada_windows",
		Payload: []byte("SIZE 50,30\r\nPRINT 1\r\n"),
		Target:  core.Target{PrinterPath: `\\srv\zebra`},
	}
	res, err := router.Dispatch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, core.ResultAccepted, res.Status)
	assert.Equal(t, `\\srv\zebra`, res.Target)

	// The caller got its answer before the physical write finished.
	close(release)

	select {
	case outcome := <-notified:
		require.NotNil(t, outcome.Err)
		assert.Equal(t, core.KindTransport, outcome.Err.Kind)
		assert.True(t, outcome.Background)
		assert.Equal(t, job.ID, outcome.Job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("background outcome was not reported")
	}

	outcomes := recorder.snapshot()
	require.Len(t, outcomes, 2)
	assert.Equal(t, core.ResultAccepted, outcomes[0].Status)
	assert.Nil(t, outcomes[0].Err)
	assert.NotNil(t, outcomes[1].Err)
}

func TestDispatchDetachedPoolStopped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportSpooler)
	m.EXPECT().Validate(gomock.Any()).Return(nil)

	router := core.NewRouter(core.NewBackgroundPool(core.PoolConfig{}))
	router.Register(detachedTransport{m})

	job := &core.PrintJob{Kind: core.TransportSpooler, Payload: []byte("X"), Target: core.Target{PrinterName: "TSC"}}
	_, err := router.Dispatch(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))
	assert.True(t, errors.Is(err, core.ErrPoolStopped))
}

func TestDispatchDetachedWithoutPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportSpooler)
	m.EXPECT().Validate(gomock.Any()).Return(nil)

	router := core.NewRouter(nil)
	router.Register(detachedTransport{m})

	job := &core.PrintJob{Kind: core.TransportSpooler, Payload: []byte("X"), Target: core.Target{PrinterName: "TSC"}}
	_, err := router.Dispatch(context.Background(), job)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestDispatchRecordsSyncOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newMockTransport(ctrl, core.TransportNetwork)
	m.EXPECT().Validate(gomock.Any()).Return(nil)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	recorder := &memoryRecorder{}
	router := core.NewRouter(nil, core.WithRecorder(recorder))
	router.Register(m)

	job := networkJob("X")
	job.ID = "fixed-id"
	_, err := router.Dispatch(context.Background(), job)
	require.NoError(t, err)

	outcomes := recorder.snapshot()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "fixed-id", outcomes[0].Job.ID)
	assert.Equal(t, core.ResultSent, outcomes[0].Status)
	assert.False(t, outcomes[0].Background)
	assert.False(t, outcomes[0].FinishedAt.IsZero())
}
