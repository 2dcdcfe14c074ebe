//go:build !linux && !darwin && !windows && !freebsd && !openbsd

package core

type unavailableSerial struct{}

func NewSystemSerial() SerialOpener {
	return unavailableSerial{}
}

func (unavailableSerial) Available() error {
	return ErrSerialUnavailable
}

func (unavailableSerial) Open(string, int) (SerialPort, error) {
	return nil, ErrSerialUnavailable
}

func (unavailableSerial) ListPorts() ([]SerialPortDescriptor, error) {
	return nil, ErrSerialUnavailable
}
