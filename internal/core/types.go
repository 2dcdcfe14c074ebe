package core

import (
	"strings"
	"time"
)

// TransportKind identifies one of the physical channels a label can be sent through.
type TransportKind int

const (
	TransportUnknown TransportKind = iota
	TransportNetwork
	TransportSerial
	TransportSpooler
	TransportProxy
)

var transportNames = map[TransportKind]string{
	TransportUnknown: "unknown",
	TransportNetwork: "network-raw-lpr",
	TransportSerial:  "serial-com",
	TransportSpooler: "os-spooler",
	TransportProxy:   "remote-proxy",
}

var transportTags = map[string]TransportKind{
	"rede_ip":               TransportNetwork,
	"network-raw-lpr":       TransportNetwork,
	"usb_com":               TransportSerial,
	"serial-com":            TransportSerial,
	"compartilhada_windows": TransportSpooler,
	"os-spooler":            TransportSpooler,
	"local_print_service":   TransportProxy,
	"remote-proxy":          TransportProxy,
}

func (k TransportKind) String() string {
	if name, ok := transportNames[k]; ok {
		return name
	}
	return transportNames[TransportUnknown]
}

// ParseTransportKind maps a request tag onto a TransportKind. Unrecognized tags
// yield TransportUnknown so the router can reject them after payload validation.
func ParseTransportKind(tag string) TransportKind {
	if kind, ok := transportTags[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return kind
	}
	return TransportUnknown
}

const (
	DefaultNetworkPort = 9100
	LPRPort            = 515
	DefaultTimeoutMs   = 3000
	MinTimeoutMs       = 250
)

type Target struct {
	Host        string
	Port        int
	SerialPort  string
	PrinterPath string
	PrinterName string
}

type PrintJob struct {
	ID        string
	Kind      TransportKind
	Tag       string
	Payload   []byte
	Target    Target
	TimeoutMs int
}

// EffectiveTimeout returns the job timeout clamped to the minimum floor.
func (j *PrintJob) EffectiveTimeout() time.Duration {
	return time.Duration(ClampTimeoutMs(j.TimeoutMs)) * time.Millisecond
}

func ClampTimeoutMs(ms int) int {
	if ms < MinTimeoutMs {
		return MinTimeoutMs
	}
	return ms
}

type ResultStatus string

const (
	ResultSent     ResultStatus = "sent"
	ResultAccepted ResultStatus = "accepted"
)

type Result struct {
	JobID     string        `json:"job_id"`
	Transport TransportKind `json:"-"`
	Target    string        `json:"target"`
	Status    ResultStatus  `json:"status"`
	Bytes     int           `json:"bytes"`
}

type PrinterDescriptor struct {
	Name        string `json:"nome"`
	Path        string `json:"caminho,omitempty"`
	Description string `json:"descricao"`
	Flags       uint32 `json:"flags"`
}

type SerialPortDescriptor struct {
	Port        string `json:"porta"`
	Description string `json:"descricao"`
	HardwareID  string `json:"hwid"`
}

type USBPrinterDescriptor struct {
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Product      string `json:"product,omitempty"`
	Bus          int    `json:"bus"`
	Address      int    `json:"address"`
}
