//go:build !windows

package core

type unavailableSpooler struct{}

// NewSystemSpooler returns a spooler that reports ErrSpoolerUnavailable; RAW
// spooling is only implemented for Windows.
func NewSystemSpooler() Spooler {
	return unavailableSpooler{}
}

func (unavailableSpooler) Available() error {
	return ErrSpoolerUnavailable
}

func (unavailableSpooler) Open(string) (SpoolHandle, error) {
	return nil, ErrSpoolerUnavailable
}

func (unavailableSpooler) ListPrinters() ([]PrinterDescriptor, error) {
	return nil, ErrSpoolerUnavailable
}
