package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/gousb"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/imageParse"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/programmer"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/uart"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/usb"
)

func main() {
	port := flag.String("p", "", "Serial port to use")
	imagePath := flag.String("i", "", "Path to image (.bin or .hex)")
	address := flag.String("a", "0x0", "Address the image is programmed at (HEX images)")
	overwrite := flag.Bool("o", true, "Overwrite bootloader (false: update application only)")
	verify := flag.Bool("verify", false, "Compare the device CRC with the image after programming")
	appOnly := flag.Bool("app", false, "Verify the application region only")
	baud := flag.Int("b", 115200, "Baud rate")
	parity := flag.String("parity", "N", "Parity: N, E or O")
	dataBits := flag.Int("databits", 8, "Data bits")
	stopBits := flag.Float64("stopbits", 1, "Stop bits: 1, 1.5 or 2")
	timeout := flag.Duration("t", time.Second, "Read timeout")
	retries := flag.Int("retries", proto.DefaultMaxRetries, "Retries per bootloader command")
	useUSB := flag.Bool("usb", false, "Use the USB bootloader instead of a serial port")
	usbSerial := flag.String("usb-serial", "", "USB serial number to match")
	list := flag.Bool("list", false, "List serial ports and exit")
	verbose := flag.Bool("v", false, "Debug output")
	trace := flag.Bool("vv", false, "Trace output")
	flag.Parse()

	switch {
	case *trace:
		log.SetLevel(log.TraceLevel)
	case *verbose:
		log.SetLevel(log.DebugLevel)
	}

	if *list {
		ports, err := uart.Ports()
		if err != nil {
			log.Fatalf("list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if *imagePath == "" || (*port == "" && !*useUSB) {
		flag.PrintDefaults()
		log.Fatal("Please provide -i and either -p or -usb")
	}

	base, err := strconv.ParseUint(*address, 0, 32)
	if err != nil {
		log.Fatalf("invalid address %q: %v", *address, err)
	}

	open := func() (proto.Channel, error) {
		if *useUSB {
			cfg := usb.DefaultConfig()
			cfg.ReadTimeout = *timeout
			dev, err := usb.FindDevice(gousb.ID(usb.VendorId), gousb.ID(usb.ProductId), *usbSerial, cfg)
			if err != nil {
				return nil, err
			}
			return dev, nil
		}
		dev, err := uart.NewDevice(*port,
			uart.WithBaud(*baud),
			uart.WithReadTimeout(*timeout),
			uart.WithFraming((*parity + "N")[0], *dataBits, *stopBits),
		)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}

	mode := programmer.Overwrite
	if !*overwrite {
		mode = programmer.Update
	}
	scope := programmer.ScopeFlash
	if *appOnly {
		scope = programmer.ScopeApplication
	}

	var bar *progressbar.ProgressBar
	progress := func(sent, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total*128,
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Writing"),
				progressbar.OptionShowBytes(true),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		bar.Set(sent * 128)
	}

	prog := programmer.New(open, imageParse.NewImage(*imagePath, uint32(base)),
		programmer.WithMode(mode),
		programmer.WithVerify(*verify),
		programmer.WithVerifyScope(scope),
		programmer.WithMaxRetries(*retries),
		programmer.WithProgress(progress),
	)

	result, err := prog.Program()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		log.WithError(err).Errorf("programming failed: %s", result)
	} else {
		log.Info("programming complete")
	}
	os.Exit(result.ExitCode())
}
