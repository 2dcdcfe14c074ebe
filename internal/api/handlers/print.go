package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/label"
	"github.com/orrn/labelgate/internal/logging"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PrintRequest is the printer descriptor plus the TSPL program. Field names
// follow the label frontends that post to this endpoint.
type PrintRequest struct {
	Tipo                 string `json:"tipo"`
	IP                   string `json:"ip"`
	Porta                *int   `json:"porta"`
	PortaCOM             string `json:"porta_com"`
	CaminhoCompartilhada string `json:"caminho_compartilhada"`
	NomeImpressora       string `json:"nome_impressora"`
	TSPL                 string `json:"tspl"`
	TimeoutMs            *int   `json:"timeout_ms"`
	Titulo               string `json:"titulo,omitempty"`
}

type PrintResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Target string `json:"target,omitempty"`
	Bytes  int    `json:"bytes"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job *core.PrintJob) (*core.Result, error)
}

type Discoverer interface {
	SerialPorts() ([]core.SerialPortDescriptor, error)
	Printers() ([]core.PrinterDescriptor, error)
	USBPrinters() ([]core.USBPrinterDescriptor, error)
}

type ServiceProber interface {
	URL() string
	Status(ctx context.Context) (*core.ProxyStatus, error)
}

// Defaults fill descriptor fields the request leaves out.
type Defaults struct {
	Port    int
	Timeout time.Duration
}

type PrintHandler struct {
	dispatcher Dispatcher
	discoverer Discoverer
	prober     ServiceProber
	defaults   Defaults
	now        func() time.Time
}

func NewPrintHandler(dispatcher Dispatcher, discoverer Discoverer, prober ServiceProber, defaults Defaults) *PrintHandler {
	if defaults.Port == 0 {
		defaults.Port = core.DefaultNetworkPort
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = core.DefaultTimeoutMs * time.Millisecond
	}
	return &PrintHandler{
		dispatcher: dispatcher,
		discoverer: discoverer,
		prober:     prober,
		defaults:   defaults,
		now:        time.Now,
	}
}

// Job maps the request onto a PrintJob. Missing port and timeout take the
// configured defaults; explicit values, zero included, are kept as sent.
func (h *PrintHandler) Job(req *PrintRequest) *core.PrintJob {
	port := h.defaults.Port
	if req.Porta != nil {
		port = *req.Porta
	}
	timeout := int(h.defaults.Timeout / time.Millisecond)
	if req.TimeoutMs != nil {
		timeout = *req.TimeoutMs
	}

	return &core.PrintJob{
		Kind:    core.ParseTransportKind(req.Tipo),
		Tag:     req.Tipo,
		Payload: []byte(req.TSPL),
		Target: core.Target{
			Host:        req.IP,
			Port:        port,
			SerialPort:  req.PortaCOM,
			PrinterPath: req.CaminhoCompartilhada,
			PrinterName: req.NomeImpressora,
		},
		TimeoutMs: timeout,
	}
}

func (h *PrintHandler) PrintTSPL(c *gin.Context) {
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   core.KindValidation.String(),
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}
	h.dispatch(c, h.Job(&req))
}

// PrintTest sends the built-in calibration label to the described printer.
// A tspl field in the request overrides the generated label.
func (h *PrintHandler) PrintTest(c *gin.Context) {
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   core.KindValidation.String(),
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	job := h.Job(&req)
	if len(job.Payload) == 0 {
		job.Payload = label.TestLabel(req.Titulo, job.Kind.String(), h.now())
	}
	h.dispatch(c, job)
}

func (h *PrintHandler) dispatch(c *gin.Context, job *core.PrintJob) {
	result, err := h.dispatcher.Dispatch(c.Request.Context(), job)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, PrintResponse{
		OK:     true,
		Status: string(result.Status),
		JobID:  result.JobID,
		Target: result.Target,
		Bytes:  result.Bytes,
	})
}

func (h *PrintHandler) ListSerialPorts(c *gin.Context) {
	ports, err := h.discoverer.SerialPorts()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portas": ports})
}

func (h *PrintHandler) ListSpoolerPrinters(c *gin.Context) {
	printers, err := h.discoverer.Printers()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"impressoras": printers})
}

func (h *PrintHandler) ListUSBPrinters(c *gin.Context) {
	devices, err := h.discoverer.USBPrinters()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispositivos": devices})
}

// ServiceStatus reports whether the loopback print service answers.
func (h *PrintHandler) ServiceStatus(c *gin.Context) {
	status, err := h.prober.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"online":  false,
			"url":     h.prober.URL(),
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online":  true,
		"url":     h.prober.URL(),
		"message": status.Message,
		"version": status.Version,
	})
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	code := "internal_error"
	if kind, ok := core.KindOf(err); ok {
		code = kind.String()
	}

	if status >= http.StatusInternalServerError {
		logging.WithComponent("api").Error().Str("path", c.Request.URL.Path).Int("status", status).Err(err).Msg("request failed")
	}

	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

// statusForError is the single mapping from error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrUnknownTransport):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrTransport):
		if core.IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type RenderRequest struct {
	Schema    *label.Schema     `json:"schema" binding:"required"`
	Variables map[string]string `json:"variables"`
}

type RenderResponse struct {
	TSPL string `json:"tspl"`
}

// RenderLabel turns a label schema into TSPL without printing it.
func (h *PrintHandler) RenderLabel(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: core.KindValidation.String(), Message: err.Error()})
		return
	}

	out, err := label.Render(req.Schema, req.Variables)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: core.KindValidation.String(), Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, RenderResponse{TSPL: string(out)})
}
