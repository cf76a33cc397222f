package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	log "github.com/sirupsen/logrus"

	"cellgain.ddns.net/cellgain-public/bootloader-efm/crc"
	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/imageParse"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/uart"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/xmodem"
)

const (
	consoleKey        = "$console"
	unconnectedPrompt = "[none] > "
)

// Console is the state shared by shell commands.
type Console struct {
	Shell   *ishell.Shell
	Session *proto.Session
	Port    string
}

var (
	portName = flag.String("p", "", "Serial port to open at start")
	baud     = flag.Int("b", 115200, "Baud rate")
	evalOnly = flag.Bool("e", false, "Run the command given as arguments and exit")
	verbose  = flag.Bool("v", false, "Debug output")
)

func consoleFrom(c *ishell.Context) *Console {
	return c.Get(consoleKey).(*Console)
}

func mustBeConnected(fn func(c *ishell.Context, s *proto.Session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		con := consoleFrom(c)
		if con.Session == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c, con.Session)
	}
}

func (con *Console) open(port string, baud int) error {
	con.close()
	dev, err := uart.NewDevice(port, uart.WithBaud(baud))
	if err != nil {
		return err
	}
	con.Session = proto.NewSession(dev)
	con.Port = port
	con.Shell.SetPrompt(fmt.Sprintf("[%s] > ", port))
	return nil
}

func (con *Console) close() {
	if con.Session == nil {
		return
	}
	if err := con.Session.Channel().Close(); err != nil {
		log.WithError(err).Debug("close")
	}
	con.Session = nil
	con.Port = ""
	con.Shell.SetPrompt(unconnectedPrompt)
}

func exchange(cmd proto.Command) func(c *ishell.Context) {
	return mustBeConnected(func(c *ishell.Context, s *proto.Session) {
		r, err := s.SendCmd(cmd)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(r))
	})
}

func checksum(cmd proto.Command) func(c *ishell.Context) {
	return mustBeConnected(func(c *ishell.Context, s *proto.Session) {
		if err := s.OverrideTimeout(10*time.Second, false); err != nil {
			c.Err(err)
			return
		}
		r, err := s.SendCmd(cmd)
		if err != nil {
			c.Err(err)
			return
		}
		v, err := proto.ParseCRC(r)
		if err != nil {
			c.Err(err)
			return
		}
		c.Printf("0x%04X\n", v)
	})
}

var commands = []*ishell.Cmd{
	{
		Name: "open",
		Help: "PORT [BAUD]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PORT required"))
				return
			}
			rate := *baud
			if len(c.Args) > 1 {
				v, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("invalid BAUD: %v", err))
					return
				}
				rate = v
			}
			if err := consoleFrom(c).open(c.Args[0], rate); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "close",
		Help: "close the port",
		Func: func(c *ishell.Context) { consoleFrom(c).close() },
	},
	{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := uart.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	},
	{Name: "probe", Aliases: []string{"U"}, Help: "auto-baud and print the banner", Func: exchange(proto.CmdAutoBaud)},
	{Name: "overwrite", Aliases: []string{"d"}, Help: "destructive upload command", Func: exchange(proto.CmdOverwrite)},
	{Name: "update", Aliases: []string{"u"}, Help: "application upload command", Func: exchange(proto.CmdUpdate)},
	{Name: "crc.flash", Aliases: []string{"v"}, Help: "whole flash CRC", Func: checksum(proto.CmdVerifyFlash)},
	{Name: "crc.app", Aliases: []string{"c"}, Help: "application CRC", Func: checksum(proto.CmdVerifyApplication)},
	{Name: "crc.user", Aliases: []string{"n"}, Help: "user page CRC", Func: checksum(proto.CmdVerifyUserPage)},
	{Name: "crc.lock", Aliases: []string{"m"}, Help: "lock page CRC", Func: checksum(proto.CmdVerifyLockPage)},
	{
		Name:    "boot",
		Aliases: []string{"b"},
		Help:    "start the application",
		Func: mustBeConnected(func(c *ishell.Context, s *proto.Session) {
			if err := s.Send(proto.CmdBoot); err != nil {
				c.Err(err)
			}
		}),
	},
	{
		Name:    "reset",
		Aliases: []string{"r"},
		Help:    "reset the device",
		Func: mustBeConnected(func(c *ishell.Context, s *proto.Session) {
			if err := s.Send(proto.CmdReset); err != nil {
				c.Err(err)
			}
		}),
	},
	{
		Name: "hex",
		Help: "HEXBYTES - send raw bytes",
		Func: mustBeConnected(func(c *ishell.Context, s *proto.Session) {
			data, err := hex.DecodeString(strings.Join(c.Args, ""))
			if err != nil {
				c.Err(err)
				return
			}
			if _, err := s.Putc(data, 0); err != nil {
				c.Err(err)
			}
		}),
	},
	{
		Name: "send",
		Help: "FILE - XMODEM an image after overwrite/update",
		Func: mustBeConnected(func(c *ishell.Context, s *proto.Session) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			content, err := imageParse.NewImage(c.Args[0], 0).Load()
			if err != nil {
				c.Err(err)
				return
			}
			c.ProgressBar().Start()
			x := xmodem.New(s.Getc, s.Putc)
			x.Progress = func(sent, total int) {
				c.ProgressBar().Progress(sent * 100 / total)
			}
			err = x.Send(xmodem.Pad(content, xmodem.BlockSize, xmodem.Filler))
			c.ProgressBar().Stop()
			if err != nil {
				c.Err(err)
			}
		}),
	},
	{
		Name: "crc.file",
		Help: "FILE - expected flash and application CRC of an image",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			content, err := imageParse.NewImage(c.Args[0], 0).Load()
			if err != nil {
				c.Err(err)
				return
			}
			calc := crc.Default()
			flash, err := calc.Image(content)
			if err != nil {
				c.Err(err)
				return
			}
			app, err := calc.Application(content)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("flash 0x%04X application 0x%04X\n", flash, app)
		},
	},
	{
		Name: "timeout",
		Help: "DURATION - set the read timeout",
		Func: mustBeConnected(func(c *ishell.Context, s *proto.Session) {
			if len(c.Args) < 1 {
				c.Println(s.Channel().Timeout())
				return
			}
			d, err := time.ParseDuration(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.SetBaseline(d); err != nil {
				c.Err(err)
			}
		}),
	},
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	con := &Console{Shell: ishell.New()}
	con.Shell.Set(consoleKey, con)
	con.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		con.Shell.AddCmd(cmd)
	}
	defer con.close()

	if *portName != "" {
		if err := con.open(*portName, *baud); err != nil {
			log.Fatal(err)
		}
	}

	if *evalOnly || flag.NArg() > 0 {
		if err := con.Shell.Process(flag.Args()...); err != nil {
			log.Fatal(err)
		}
		return
	}
	con.Shell.Run()
}
