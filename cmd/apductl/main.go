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

// Command apductl sends APDUs to a device running the seio engine.
//
// Usage:
//
//	apductl [flags] send <hex>
//	apductl [flags] info
//	apductl [flags] quit
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-seio"
	"github.com/ZaparooProject/go-seio/client"
	"github.com/ZaparooProject/go-seio/client/hid"
	"github.com/ZaparooProject/go-seio/client/pcsc"
	"github.com/ZaparooProject/go-seio/client/rawusb"
)

const defaultVID = 0x2c97

type config struct {
	backend string
	reader  string
	command string
	args    []string
	timeout time.Duration
	iface   int
	vid     uint16
	pid     uint16
	tlv     bool
	debug   bool
}

var errUsage = errors.New("usage: apductl [flags] send <hex> | info | quit")

// exchangeCloser is what every backend returns.
type exchangeCloser interface {
	client.Exchanger
	Close() error
}

func parseConfig(fs *flag.FlagSet, args []string) (*config, error) {
	var (
		cfg     config
		vid     string
		pid     string
		timeout time.Duration
	)
	fs.StringVar(&cfg.backend, "backend", "hid", "Transport backend: hid, rawusb or pcsc")
	fs.StringVar(&vid, "vid", fmt.Sprintf("0x%04x", defaultVID), "USB vendor ID")
	fs.StringVar(&pid, "pid", "0", "USB product ID (0 matches any)")
	fs.StringVar(&cfg.reader, "reader", "", "PC/SC reader name substring")
	fs.IntVar(&cfg.iface, "iface", -1, "USB interface for rawusb (-1 matches any)")
	fs.BoolVar(&cfg.tlv, "tlv", false, "Describe response data as BER-TLV")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "Exchange timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v, err := strconv.ParseUint(vid, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid -vid %q: %w", vid, err)
	}
	p, err := strconv.ParseUint(pid, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid -pid %q: %w", pid, err)
	}
	cfg.vid, cfg.pid, cfg.timeout = uint16(v), uint16(p), timeout

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, errUsage
	}
	cfg.command, cfg.args = rest[0], rest[1:]
	switch cfg.command {
	case "send":
		if len(cfg.args) == 0 {
			return nil, errUsage
		}
	case "info", "quit":
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, cfg.command)
	}
	return &cfg, nil
}

func openBackend(cfg *config) (exchangeCloser, error) {
	switch cfg.backend {
	case "hid":
		return hid.Open(cfg.vid, cfg.pid)
	case "rawusb":
		ex, err := rawusb.Open(cfg.vid, cfg.pid, cfg.iface)
		if err != nil {
			return nil, err
		}
		if _, err := ex.PowerOn(context.Background()); err != nil {
			_ = ex.Close()
			return nil, fmt.Errorf("power on: %w", err)
		}
		return ex, nil
	case "pcsc":
		return pcsc.Open(cfg.reader)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.backend)
	}
}

// parseHex accepts hex with optional spaces or colons between bytes.
func parseHex(parts []string) ([]byte, error) {
	s := strings.Join(parts, "")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex APDU: %w", err)
	}
	if len(b) < seio.HeaderSize {
		return nil, fmt.Errorf("APDU must be at least %d bytes", seio.HeaderSize)
	}
	return b, nil
}

func run(ctx context.Context, cfg *config, ex client.Exchanger, out io.Writer) error {
	c := client.New(ex)
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	switch cfg.command {
	case "info":
		info, err := c.AppInfo(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "name: %s\nversion: %s\n", info.Name, info.Version)
		return nil
	case "quit":
		return c.Quit(ctx)
	}

	capdu, err := parseHex(cfg.args)
	if err != nil {
		return err
	}
	seio.Debugf("=> %X", capdu)
	resp, err := c.SendRaw(ctx, capdu)
	if err != nil {
		return err
	}
	seio.Debugf("<= %X %04X", resp.Data, uint16(resp.Status))
	_, _ = fmt.Fprintf(out, "%X\nstatus: %04X (%s)\n", resp.Data, uint16(resp.Status), resp.Status.String())
	if cfg.tlv && len(resp.Data) > 0 {
		desc, err := client.DescribeTLV(resp.Data)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, desc)
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	fs := flag.NewFlagSet("apductl", flag.ContinueOnError)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.debug {
		seio.SetDebugEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex, err := openBackend(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := ex.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	if err := run(ctx, cfg, ex, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
