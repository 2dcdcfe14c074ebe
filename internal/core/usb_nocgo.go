//go:build !cgo

package core

type unavailableUSB struct{}

func NewSystemUSB() USBLister {
	return unavailableUSB{}
}

func (unavailableUSB) ListPrinters() ([]USBPrinterDescriptor, error) {
	return nil, ErrUSBUnavailable
}
