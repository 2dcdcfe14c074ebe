package core

import "errors"

var ErrUSBUnavailable = errors.New("USB discovery is not available on this host")

// USBLister discovers USB printer-class devices.
type USBLister interface {
	ListPrinters() ([]USBPrinterDescriptor, error)
}

// Enumerator answers read-only discovery queries. Results are never cached and
// a missing capability is a configuration error, never an empty list.
type Enumerator struct {
	serial  SerialOpener
	spooler Spooler
	usb     USBLister
}

func NewEnumerator(serial SerialOpener, spooler Spooler, usb USBLister) *Enumerator {
	return &Enumerator{serial: serial, spooler: spooler, usb: usb}
}

func (e *Enumerator) SerialPorts() ([]SerialPortDescriptor, error) {
	if e.serial == nil {
		return nil, configurationError(TransportSerial, ErrSerialUnavailable, "serial support is not configured")
	}
	if err := e.serial.Available(); err != nil {
		return nil, configurationError(TransportSerial, err, "serial support is not available")
	}

	ports, err := e.serial.ListPorts()
	if err != nil {
		return nil, configurationError(TransportSerial, err, "failed to list COM ports")
	}
	if ports == nil {
		ports = []SerialPortDescriptor{}
	}
	return ports, nil
}

func (e *Enumerator) Printers() ([]PrinterDescriptor, error) {
	if e.spooler == nil {
		return nil, configurationError(TransportSpooler, ErrSpoolerUnavailable, "OS print API is not configured")
	}
	if err := e.spooler.Available(); err != nil {
		return nil, configurationError(TransportSpooler, err, "OS print API is not available")
	}

	printers, err := e.spooler.ListPrinters()
	if err != nil {
		return nil, configurationError(TransportSpooler, err, "failed to list printers")
	}
	if printers == nil {
		printers = []PrinterDescriptor{}
	}
	return printers, nil
}

func (e *Enumerator) USBPrinters() ([]USBPrinterDescriptor, error) {
	if e.usb == nil {
		return nil, configurationError(TransportUnknown, ErrUSBUnavailable, "USB discovery is not configured")
	}

	devices, err := e.usb.ListPrinters()
	if err != nil {
		return nil, configurationError(TransportUnknown, err, "failed to list USB printers")
	}
	if devices == nil {
		devices = []USBPrinterDescriptor{}
	}
	return devices, nil
}
