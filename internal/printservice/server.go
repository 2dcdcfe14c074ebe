// Package printservice is the loopback HTTP service that writes RAW documents to
// the local OS spooler on behalf of browser clients and the remote-proxy transport.
package printservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelgate/internal/api/middleware"
	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/logging"
)

const Version = "2026.10.1"

type Server struct {
	spooler core.Spooler
	writer  *core.ChunkedWriter
	pool    *core.BackgroundPool
	docName string
}

type Option func(*Server)

func WithChunkedWriter(w *core.ChunkedWriter) Option {
	return func(s *Server) { s.writer = w }
}

func WithDocumentName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.docName = name
		}
	}
}

// New builds a server that prints through spooler on pool. The pool must be
// started by the caller.
func New(spooler core.Spooler, pool *core.BackgroundPool, opts ...Option) *Server {
	s := &Server{
		spooler: spooler,
		writer:  core.NewChunkedWriter(core.DefaultChunkPolicy),
		pool:    pool,
		docName: core.DefaultDocumentName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler serves exact paths only; every other request gets a JSON 404.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Recovery(), middleware.CORS())

	r.NoRoute(notFound)

	r.GET("/status", s.status)
	r.GET("/printers", s.printers)
	r.POST("/print", s.print)
	return r
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, core.ProxyStatus{Status: "ok", Message: "print service running", Version: Version})
}

func (s *Server) printers(c *gin.Context) {
	if err := s.spooler.Available(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	list, err := s.spooler.ListPrinters()
	if err != nil {
		logging.WithComponent("printservice").Error().Err(err).Msg("failed to list printers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []core.PrinterDescriptor{}
	}
	c.JSON(http.StatusOK, gin.H{"printers": list})
}

// print answers before the document is written. Failures after that point are
// only logged.
func (s *Server) print(c *gin.Context) {
	var req core.ProxyRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if req.Printer == "" || req.Data == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields: printer, data"})
		return
	}
	if err := s.spooler.Available(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log := logging.WithComponent("printservice")
	requestID := middleware.GetRequestID(c)
	payload := []byte(req.Data)

	err := s.pool.Submit("printservice:"+requestID, func(context.Context) error {
		if err := s.write(req.Printer, payload); err != nil {
			return err
		}
		log.Info().Str("request_id", requestID).Str("printer", req.Printer).Int("bytes", len(payload)).Msg("document sent to spooler")
		return nil
	})
	if err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, core.ErrPoolFull) && !errors.Is(err, core.ErrPoolStopped) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "print sent"})
}

func (s *Server) write(printer string, payload []byte) (err error) {
	h, err := s.spooler.Open(printer)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return core.WriteRawDocument(h, s.writer, s.docName, printer, payload)
}
