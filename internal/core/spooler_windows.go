//go:build windows

package core

import (
	"github.com/alexbrainman/printer"
)

type winSpooler struct{}

// NewSystemSpooler returns the Windows print spooler.
func NewSystemSpooler() Spooler {
	return winSpooler{}
}

func (winSpooler) Available() error {
	return nil
}

func (winSpooler) Open(name string) (SpoolHandle, error) {
	p, err := printer.Open(name)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (winSpooler) ListPrinters() ([]PrinterDescriptor, error) {
	names, err := printer.ReadNames()
	if err != nil {
		return nil, err
	}

	printers := make([]PrinterDescriptor, 0, len(names))
	for _, name := range names {
		d := PrinterDescriptor{Name: name, Path: name}
		if p, err := printer.Open(name); err == nil {
			if info, err := p.DriverInfo(); err == nil {
				d.Description = info.Name
				d.Flags = info.Attributes
			}
			p.Close()
		}
		printers = append(printers, d)
	}
	return printers, nil
}
