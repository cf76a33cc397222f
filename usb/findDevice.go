package usb

import (
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// Silicon Labs vendor ID and the EFM32 USB bootloader product ID.
	VendorId  = 0x10c4
	ProductId = 0x0003
)

var ErrNotFound = errors.New("no matching device")

// FindDevice waits up to ten polls for a device with vid:pid and, when
// serial is not empty, that serial number, then opens it with config.
func FindDevice(vid, pid gousb.ID, serial string, config DeviceConfig) (*Device, error) {
	ticker := time.NewTicker(time.Millisecond * 200)
	defer ticker.Stop()

	for i := 0; i < 10; i++ {
		if i > 0 {
			<-ticker.C
		}

		ctx := gousb.NewContext()
		dev, err := openMatching(ctx, vid, pid, serial)
		if err != nil {
			log.WithError(err).Debug("OpenDevices()")
		}
		if dev != nil {
			return NewDevice(ctx, dev, config)
		}
		ctx.Close()
	}

	return nil, errors.Wrap(ErrNotFound, describe(vid, pid, serial))
}

func openMatching(ctx *gousb.Context, vid, pid gousb.ID, serial string) (*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})

	var found *gousb.Device
	for _, d := range devs {
		if found != nil {
			d.Close()
			continue
		}
		if serial == "" {
			found = d
			continue
		}
		if s, e := d.SerialNumber(); e == nil && s == serial {
			found = d
			continue
		} else if e != nil {
			log.WithError(e).Debug("read serial number")
		}
		d.Close()
	}
	return found, err
}

func describe(vid, pid gousb.ID, serial string) string {
	if serial == "" {
		return fmt.Sprintf("VID %s PID %s", vid, pid)
	}
	return fmt.Sprintf("VID %s PID %s serial %s", vid, pid, serial)
}
