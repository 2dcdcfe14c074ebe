package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proxyJob(printer, payload string) *PrintJob {
	return &PrintJob{Kind: TransportProxy, Payload: []byte(payload), Target: Target{PrinterName: printer}}
}

func TestProxyTransportValidate(t *testing.T) {
	tr := NewProxyTransport("", 0)
	assert.Equal(t, DefaultProxyURL, tr.URL())

	assert.NoError(t, tr.Validate(proxyJob("TSC-TE200", "A")))
	assert.True(t, errors.Is(tr.Validate(proxyJob(" ", "A")), ErrValidation))
	assert.True(t, errors.Is(tr.Validate(proxyJob("TSC-TE200", "")), ErrValidation))
}

func TestProxyTransportRejectsBinaryPayload(t *testing.T) {
	tr := NewProxyTransport("", 0)

	err := tr.Validate(proxyJob("TSC-TE200", "BITMAP 0,0,1,1,0,\xff\xfe\r\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "not valid UTF-8")

	assert.NoError(t, tr.Validate(proxyJob("TSC-TE200", "TEXT 10,10,\"3\",0,1,1,\"AÇÚCAR\"\r\n")))
}

func TestProxyTransportSend(t *testing.T) {
	var got ProxyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/print", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","message":"print sent"}`))
	}))
	defer srv.Close()

	tr := NewProxyTransport(srv.URL+"/", time.Second)
	require.NoError(t, tr.Send(context.Background(), proxyJob("TSC-TE200", "SIZE 50,30\r\nPRINT 1\r\n")))
	assert.Equal(t, "TSC-TE200", got.Printer)
	assert.Equal(t, "SIZE 50,30\r\nPRINT 1\r\n", got.Data)
}

func TestProxyTransportRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"printer TSC-TE200 is offline"}`))
	}))
	defer srv.Close()

	err := NewProxyTransport(srv.URL, time.Second).Send(context.Background(), proxyJob("TSC-TE200", "A"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "printer TSC-TE200 is offline")
	assert.False(t, IsTimeout(err))
}

func TestProxyTransportRejectedWithoutJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewProxyTransport(srv.URL, time.Second).Send(context.Background(), proxyJob("TSC", "A"))
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestProxyTransportNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewProxyTransport(url, time.Second).Send(context.Background(), proxyJob("TSC-TE200", "A"))
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindTransport, e.Kind)
	assert.NotEmpty(t, e.Hint)
	assert.False(t, e.Timeout)
}

func TestProxyTransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	err := NewProxyTransport(srv.URL, 100*time.Millisecond).Send(context.Background(), proxyJob("TSC-TE200", "A"))
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindTransport, e.Kind)
	assert.True(t, e.Timeout)
	assert.Empty(t, e.Hint)
}

func TestProxyTransportIgnoresJobTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	job := proxyJob("TSC", "A")
	job.TimeoutMs = MinTimeoutMs
	assert.NoError(t, NewProxyTransport(srv.URL, 2*time.Second).Send(context.Background(), job))
}

func TestProxyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Write([]byte(`{"status":"ok","message":"print service running","version":"1.2.0"}`))
	}))
	defer srv.Close()

	status, err := NewProxyTransport(srv.URL, time.Second).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.2.0", status.Version)
}
