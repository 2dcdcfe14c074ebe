//go:build linux || darwin || windows || freebsd || openbsd

package core

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

type systemSerial struct{}

// NewSystemSerial returns the serial capability backed by go.bug.st/serial.
func NewSystemSerial() SerialOpener {
	return systemSerial{}
}

func (systemSerial) Available() error {
	return nil
}

func (systemSerial) Open(name string, baud int) (SerialPort, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

func (systemSerial) ListPorts() ([]SerialPortDescriptor, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]SerialPortDescriptor, 0, len(details))
	for _, d := range details {
		desc := SerialPortDescriptor{Port: d.Name, Description: d.Name}
		if d.Product != "" {
			desc.Description = d.Product
		}
		if d.IsUSB {
			desc.HardwareID = fmt.Sprintf("USB VID:PID=%s:%s", d.VID, d.PID)
			if d.SerialNumber != "" {
				desc.HardwareID += " SER=" + d.SerialNumber
			}
		}
		ports = append(ports, desc)
	}
	return ports, nil
}
