// Package webhook notifies external endpoints about background print outcomes.
// Webhook deliveries are retried; print jobs never are.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/logging"
)

type WebhookEvent string

const (
	EventPrintCompleted WebhookEvent = "print.completed"
	EventPrintFailed    WebhookEvent = "print.failed"
)

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type PrintEventData struct {
	JobID        string `json:"job_id"`
	Transport    string `json:"transport"`
	Target       string `json:"target"`
	Bytes        int    `json:"bytes"`
	Status       string `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Duration     int64  `json:"duration_ms"`
}

// Endpoint is one configured receiver. An empty Events list subscribes to all events.
type Endpoint struct {
	Name   string
	URL    string
	Secret string
	Events []string
}

func (e Endpoint) wants(event WebhookEvent) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, ev := range e.Events {
		if ev == string(event) {
			return true
		}
	}
	return false
}

type WebhookConfig struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type webhookTask struct {
	endpoint Endpoint
	event    WebhookEvent
	payload  *WebhookPayload
	attempt  int
}

type httpError struct {
	status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http error: %d", e.status)
}

type WebhookSender struct {
	endpoints   []Endpoint
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewWebhookSender(endpoints []Endpoint, config WebhookConfig) *WebhookSender {
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	return &WebhookSender{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryCount:  config.RetryCount,
		retryDelay:  config.RetryDelay,
		workerCount: config.WorkerCount,
		queue:       make(chan *webhookTask, config.QueueSize),
		stopCh:      make(chan struct{}),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// NotifyBackgroundOutcome implements core.Notifier.
func (s *WebhookSender) NotifyBackgroundOutcome(outcome *core.DispatchOutcome) {
	data := &PrintEventData{
		JobID:     outcome.Job.ID,
		Transport: outcome.Job.Kind.String(),
		Target:    outcome.Target(),
		Bytes:     len(outcome.Job.Payload),
		Status:    string(outcome.Status),
		Duration:  outcome.FinishedAt.Sub(outcome.StartedAt).Milliseconds(),
	}

	event := EventPrintCompleted
	if outcome.Err != nil {
		event = EventPrintFailed
		data.Status = "failed"
		data.ErrorKind = outcome.Err.Kind.String()
		data.ErrorMessage = outcome.Err.Error()
	}
	s.enqueue(event, data)
}

func (s *WebhookSender) enqueue(event WebhookEvent, data interface{}) {
	log := logging.WithComponent("webhook")

	for _, endpoint := range s.endpoints {
		if !endpoint.wants(event) {
			continue
		}

		task := &webhookTask{
			endpoint: endpoint,
			event:    event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: time.Now().UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			log.Warn().Str("webhook", endpoint.Name).Str("event", string(event)).Msg("queue full, dropping webhook")
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			// Deliver what was already queued before exiting.
			for {
				select {
				case task := <-s.queue:
					s.deliver(id, task)
				default:
					return
				}
			}
		case task := <-s.queue:
			s.deliver(id, task)
		}
	}
}

func (s *WebhookSender) deliver(id int, task *webhookTask) {
	if err := s.sendWithRetry(task); err != nil {
		logging.WithComponent("webhook").Error().Int("worker", id).Str("webhook", task.endpoint.Name).
			Str("event", string(task.event)).Int("attempts", task.attempt).Err(err).Msg("failed to deliver webhook")
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	log := logging.WithComponent("webhook")

	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(task.endpoint, task.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			log.Warn().Str("webhook", task.endpoint.Name).Err(err).Msg("client error, not retrying")
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			log.Debug().Str("webhook", task.endpoint.Name).Int("attempt", task.attempt).Dur("backoff", backoff).Err(err).Msg("retrying webhook")

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *WebhookSender) sendRequest(endpoint Endpoint, payload *WebhookPayload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if endpoint.Secret != "" {
		payload.Signature = Sign(dataBytes, endpoint.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", payload.Event)
	if payload.Signature != "" {
		req.Header.Set("X-Webhook-Signature", payload.Signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpError{status: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of the event data under secret.
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var he *httpError
	return errors.As(err, &he) && he.status >= 400 && he.status < 500
}
