// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command seio-echo is a small application running on the seio engine. It
// answers over a serial, SPI or I2C link to the MCU.
//
// Instructions (class 0xE0 by default):
//
//	0x01  echo the data field
//	0x02  return a 32 bit counter and increment it
//	0x03  wait for a button confirmation: right approves, left rejects
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-seio"
	"github.com/ZaparooProject/go-seio/transport/i2c"
	"github.com/ZaparooProject/go-seio/transport/spi"
	"github.com/ZaparooProject/go-seio/transport/uart"
)

type instruction byte

const (
	insEcho    instruction = 0x01
	insCounter instruction = 0x02
	insConfirm instruction = 0x03
)

type config struct {
	link     string
	port     string
	name     string
	version  string
	logDir   string
	baudRate int
	cla      uint
	ble      bool
	debug    bool
	list     bool
}

// Package-level flag variables
var (
	flagLink     string
	flagPort     string
	flagName     string
	flagVersion  string
	flagLogDir   string
	flagBaudRate int
	flagCLA      uint
	flagBLE      bool
	flagDebug    bool
	flagList     bool
)

func init() {
	flag.StringVar(&flagLink, "link", "uart", "MCU link: uart, spi or i2c")
	flag.StringVar(&flagPort, "port", "", "Serial port, SPI device or I2C bus (UART auto-detects if empty)")
	flag.StringVar(&flagName, "name", "seio-echo", "Application name reported by app info")
	flag.StringVar(&flagVersion, "version", "0.1.0", "Application version reported by app info")
	flag.StringVar(&flagLogDir, "log-dir", "", "Write a session log to this directory")
	flag.IntVar(&flagBaudRate, "baud", uart.DefaultBaudRate, "UART baud rate")
	flag.UintVar(&flagCLA, "cla", 0xE0, "Application class byte")
	flag.BoolVar(&flagBLE, "ble", false, "Accept commands over BLE")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagList, "list", false, "List serial ports and exit")
}

func parseConfig() (*config, error) {
	cfg := &config{
		link:     flagLink,
		port:     flagPort,
		name:     flagName,
		version:  flagVersion,
		logDir:   flagLogDir,
		baudRate: flagBaudRate,
		cla:      flagCLA,
		ble:      flagBLE,
		debug:    flagDebug,
		list:     flagList,
	}
	if cfg.port == "" && cfg.link != "uart" && !cfg.list {
		return nil, fmt.Errorf("-port is required for %s", cfg.link)
	}
	if cfg.cla > 0xFF {
		return nil, fmt.Errorf("invalid -cla 0x%x", cfg.cla)
	}
	if cfg.debug {
		seio.SetDebugEnabled(true)
	}
	return cfg, nil
}

// linkCloser is a seio.Link that owns a device handle.
type linkCloser interface {
	seio.Link
	Close() error
	Type() seio.LinkType
}

func listPorts() error {
	ports, err := uart.ListPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		if p.IsUSB {
			_, _ = fmt.Printf("%s\t%s\t%s\n", p.Name, p.VIDPID(), p.Product)
		} else {
			_, _ = fmt.Println(p.Name)
		}
	}
	return nil
}

// detectPort picks a USB serial port when none was given.
func detectPort() (string, error) {
	ports, err := uart.ListPorts()
	if err != nil {
		return "", err
	}
	p, ok := uart.FindPort(ports)
	if !ok {
		return "", errors.New("no USB serial port found, use -port")
	}
	seio.Debugf("auto-detected %s (%s)", p.Name, p.VIDPID())
	return p.Name, nil
}

func newLink(cfg *config) (linkCloser, error) {
	switch cfg.link {
	case "uart":
		if cfg.port == "" {
			port, err := detectPort()
			if err != nil {
				return nil, err
			}
			cfg.port = port
		}
		link, err := uart.New(cfg.port, uart.WithBaudRate(cfg.baudRate))
		if err != nil {
			return nil, fmt.Errorf("failed to create UART link: %w", err)
		}
		return link, nil
	case "spi":
		link, err := spi.New(cfg.port)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI link: %w", err)
		}
		return link, nil
	case "i2c":
		link, err := i2c.New(cfg.port)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C link: %w", err)
		}
		return link, nil
	default:
		return nil, fmt.Errorf("unsupported link type: %s", cfg.link)
	}
}

func decodeInstruction(h seio.Header) (instruction, error) {
	switch instruction(h.INS) {
	case insEcho, insCounter:
	case insConfirm:
		if h.P1 != 0 || h.P2 != 0 {
			return 0, seio.StatusBadP1P2
		}
	default:
		return 0, seio.StatusBadIns
	}
	return instruction(h.INS), nil
}

type app struct {
	comm    *seio.Comm
	counter uint32
}

// confirm waits for a button release. Pressing both counts as approval.
func (a *app) confirm(ctx context.Context) (seio.Replier, error) {
	for {
		ev, err := a.comm.NextButton(ctx)
		if err != nil {
			return nil, err
		}
		switch ev {
		case seio.RightButtonRelease, seio.BothButtonsRelease:
			return seio.StatusOk, nil
		case seio.LeftButtonRelease:
			return seio.StatusUserCancelled, nil
		}
	}
}

func (a *app) handle(ctx context.Context, ins instruction) error {
	switch ins {
	case insEcho:
		data, err := a.comm.Data()
		if err != nil {
			return a.comm.ReplyError(ctx, err)
		}
		a.comm.Append(append([]byte(nil), data...))
	case insCounter:
		a.comm.Append(binary.BigEndian.AppendUint32(nil, a.counter))
		a.counter++
	case insConfirm:
		r, err := a.confirm(ctx)
		if err != nil {
			return err
		}
		return a.comm.Reply(ctx, r)
	}
	return a.comm.ReplyOK(ctx)
}

// serve runs the command loop until the link fails or ctx is done.
// Retryable link errors are logged and the loop carries on.
func (a *app) serve(ctx context.Context) error {
	for {
		ins, err := seio.NextCommand(ctx, a.comm, decodeInstruction)
		if err != nil {
			if ctx.Err() == nil && !seio.IsFatal(err) && seio.IsRetryable(err) {
				seio.Debugf("link error, continuing: %v", err)
				continue
			}
			return err
		}
		if err := a.handle(ctx, ins); err != nil {
			return err
		}
	}
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return listPorts()
	}
	if cfg.logDir != "" {
		path, err := seio.InitSessionLog(cfg.logDir)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		_, _ = fmt.Printf("Session log: %s\n", path)
		defer func() {
			_ = seio.CloseSessionLog()
		}()
	}

	link, err := newLink(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := link.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close link: %v\n", err)
		}
	}()

	seio.SessionLink(link.Type(), cfg.port)

	opts := []seio.Option{seio.WithExpectedCLA(byte(cfg.cla))}
	if cfg.ble {
		opts = append(opts, seio.WithBLE())
	}
	comm, err := seio.New(link, seio.StaticHost{Name: cfg.name, Version: cfg.version}, opts...)
	if err != nil {
		return err
	}

	_, _ = fmt.Printf("Serving %s on %s. Press Ctrl+C to stop...\n", cfg.name, cfg.port)
	a := &app{comm: comm}
	return a.serve(ctx)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if te := seio.GetTrace(err); te != nil && cfg.debug {
			_, _ = fmt.Fprint(os.Stderr, te.FormatTrace())
		}
		return 1
	}
	return 0
}
