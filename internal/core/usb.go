//go:build cgo

package core

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/orrn/labelgate/internal/logging"
)

type gousbLister struct{}

// NewSystemUSB returns a libusb-backed lister of printer-class devices.
func NewSystemUSB() USBLister {
	return gousbLister{}
}

// isPrinterDesc reports whether any interface setting of the device is of the
// printer class (0x07).
func isPrinterDesc(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

func (gousbLister) ListPrinters() (printers []USBPrinterDescriptor, err error) {
	// gousb panics when libusb cannot be initialised.
	defer func() {
		if r := recover(); r != nil {
			printers = nil
			err = fmt.Errorf("%w: %v", ErrUSBUnavailable, r)
		}
	}()

	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := ctx.OpenDevices(isPrinterDesc)
	defer func() {
		for _, dev := range devices {
			dev.Close()
		}
	}()
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	log := logging.WithComponent("usb")
	printers = make([]USBPrinterDescriptor, 0, len(devices))
	for _, dev := range devices {
		d := USBPrinterDescriptor{
			VendorID:  dev.Desc.Vendor.String(),
			ProductID: dev.Desc.Product.String(),
			Bus:       dev.Desc.Bus,
			Address:   dev.Desc.Address,
		}
		if s, serr := dev.Manufacturer(); serr == nil {
			d.Manufacturer = s
		}
		if s, serr := dev.Product(); serr == nil {
			d.Product = s
		}
		log.Debug().Str("vendor_id", d.VendorID).Str("product_id", d.ProductID).Msg("found USB printer")
		printers = append(printers, d)
	}
	return printers, nil
}
