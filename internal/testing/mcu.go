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

package testing

import (
	"context"
	"errors"
	"io"

	"github.com/ZaparooProject/go-seio/internal/ccid"
	"github.com/ZaparooProject/go-seio/internal/hidframe"
	"github.com/ZaparooProject/go-seio/internal/seph"
	"github.com/ZaparooProject/go-seio/internal/syncutil"
)

// Default endpoint addresses, matching seio.DefaultEndpoints.
const (
	HIDOut  = 0x02
	HIDIn   = 0x82
	CCIDOut = 0x03
	CCIDIn  = 0x83
)

// DefaultIdleTicks is the number of ticker events synthesized once the event
// queue is empty, before Recv reports io.EOF.
const DefaultIdleTicks = 16

// maxMessage bounds a reassembled response.
const maxMessage = 4096

var (
	// ErrNoStatus is returned when the secure element reads an event without
	// having sent a status first.
	ErrNoStatus = errors.New("virtual mcu: receive without pending status")
	// ErrBufferTooSmall is returned when an event does not fit the receive buffer.
	ErrBufferTooSmall = errors.New("virtual mcu: receive buffer too small")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("virtual mcu: closed")
)

// Command is a command sent by the secure element.
type Command struct {
	Payload []byte
	Tag     byte
}

// Response is an APDU response reassembled from the commands the secure
// element sent.
type Response struct {
	Media string // raw, hid, ccid or ble
	Data  []byte
	// CCIDType is the CCID message type of ccid responses.
	CCIDType byte
}

type queued struct {
	pkt []byte
	// gate holds the packet back while a delivered command is unanswered.
	gate bool
	// opens marks the last packet of a command.
	opens bool
}

// VirtualMCU simulates the MCU side of the secure element link.
//
// It speaks the event/status handshake: every status sent by the secure
// element is answered with exactly one queued event. Host commands are held
// back until the previous response has been sent, like a real host that
// waits for its answer. Once the queue is empty, ticker events are
// synthesized until the idle budget is spent, then Recv returns io.EOF.
//
// VirtualMCU satisfies seio.Link through Recv/Send/StatusSent/
// SendGeneralStatus, and io.ReadWriter for byte stream links.
type VirtualMCU struct {
	recvErr     error
	hid         *hidframe.Reassembler
	ble         *hidframe.Reassembler
	events      []queued
	commands    []Command
	responses   []Response
	wire        []byte
	stream      []byte
	ccidBulk    []byte
	hidMsg      []byte
	bleMsg      []byte
	mu          syncutil.Mutex
	idleLeft    int
	outstanding int
	hidIn       byte
	ccidIn      byte
	hidOut      byte
	ccidOut     byte
	pending     bool
	autoAck     bool
	closed      bool
}

// NewVirtualMCU creates a simulator with the default endpoints, automatic
// IN transfer acknowledgements and DefaultIdleTicks.
func NewVirtualMCU() *VirtualMCU {
	return &VirtualMCU{
		hid:      hidframe.NewReassembler(true),
		ble:      hidframe.NewReassembler(false),
		hidMsg:   make([]byte, maxMessage),
		bleMsg:   make([]byte, maxMessage),
		idleLeft: DefaultIdleTicks,
		hidIn:    HIDIn,
		hidOut:   HIDOut,
		ccidIn:   CCIDIn,
		ccidOut:  CCIDOut,
		autoAck:  true,
	}
}

// SetIdleTicks sets how many tickers are synthesized after the queue drains.
func (v *VirtualMCU) SetIdleTicks(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.idleLeft = n
}

// SetAutoAck controls whether endpoint IN prepares are acknowledged.
func (v *VirtualMCU) SetAutoAck(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.autoAck = on
}

// SetEndpoints changes the endpoint addresses used by the Push helpers and
// the response decoder.
func (v *VirtualMCU) SetEndpoints(hidOut, hidIn, ccidOut, ccidIn byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hidOut, v.hidIn, v.ccidOut, v.ccidIn = hidOut, hidIn, ccidOut, ccidIn
}

// InjectRecvError makes the next Recv fail with err.
func (v *VirtualMCU) InjectRecvError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recvErr = err
}

// Close makes every later call fail with ErrClosed.
func (v *VirtualMCU) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// =============================================================================
// Event queue
// =============================================================================

func packet(tag byte, payload []byte) []byte {
	pkt := make([]byte, seph.HeaderSize+len(payload))
	_ = seph.PutHeader(pkt, tag, len(payload))
	copy(pkt[seph.HeaderSize:], payload)
	return pkt
}

func (v *VirtualMCU) push(q ...queued) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, q...)
}

// PushPacket queues a raw event packet.
func (v *VirtualMCU) PushPacket(pkt []byte) {
	v.push(queued{pkt: append([]byte(nil), pkt...)})
}

// PushEvent queues an event with the given tag and payload.
func (v *VirtualMCU) PushEvent(tag byte, payload []byte) {
	v.push(queued{pkt: packet(tag, payload)})
}

// PushCAPDU queues a raw APDU command.
func (v *VirtualMCU) PushCAPDU(apdu []byte) {
	v.push(queued{pkt: packet(seph.TagCAPDUEvent, apdu), gate: true, opens: true})
}

// PushButton queues a button sample. Bit 0 is the left line, bit 1 the right.
func (v *VirtualMCU) PushButton(sample byte) {
	v.PushEvent(seph.TagButtonPush, []byte{sample << 1})
}

// PushTicker queues a ticker event.
func (v *VirtualMCU) PushTicker() {
	v.PushEvent(seph.TagTicker, nil)
}

// PushUSBEvent queues a USB state event.
func (v *VirtualMCU) PushUSBEvent(code byte) {
	v.PushEvent(seph.TagUSBEvent, []byte{code})
}

func xferPayload(ep, kind byte, data []byte) []byte {
	p := make([]byte, 3+len(data))
	p[0], p[1], p[2] = ep, kind, byte(len(data))
	copy(p[3:], data)
	return p
}

// PushXfer queues an endpoint transfer event.
func (v *VirtualMCU) PushXfer(ep, kind byte, data []byte) {
	v.PushEvent(seph.TagUSBEPXferEvent, xferPayload(ep, kind, data))
}

// pushCommand queues the packets of one host command.
func (v *VirtualMCU) pushCommand(pkts [][]byte) {
	q := make([]queued, len(pkts))
	for i, p := range pkts {
		q[i] = queued{pkt: p}
	}
	q[0].gate = true
	q[len(q)-1].opens = true
	v.push(q...)
}

// PushHIDCommand queues an APDU framed as USB-HID reports on channel.
func (v *VirtualMCU) PushHIDCommand(apdu []byte, channel uint16) error {
	reports, err := hidframe.Wrap(apdu, channel, true, hidframe.ReportSize)
	if err != nil {
		return err
	}
	v.mu.Lock()
	ep := v.hidOut
	v.mu.Unlock()

	pkts := make([][]byte, len(reports))
	for i, r := range reports {
		pkts[i] = packet(seph.TagUSBEPXferEvent, xferPayload(ep, seph.XferOut, r))
	}
	v.pushCommand(pkts)
	return nil
}

// PushBLECommand queues an APDU framed as BLE writes of chunkSize bytes.
func (v *VirtualMCU) PushBLECommand(apdu []byte, chunkSize int) error {
	chunks, err := hidframe.Wrap(apdu, 0, false, chunkSize)
	if err != nil {
		return err
	}
	pkts := make([][]byte, len(chunks))
	for i, c := range chunks {
		pkts[i] = packet(seph.TagBLEReceive, c)
	}
	v.pushCommand(pkts)
	return nil
}

// PushCCIDCommand queues an APDU wrapped in a PC_to_RDR_XfrBlock.
func (v *VirtualMCU) PushCCIDCommand(seq byte, apdu []byte) {
	v.pushCommand(v.bulkPackets(ccid.WrapXfrBlock(0, seq, apdu)))
}

// PushCCIDControl queues a data-less CCID message such as IccPowerOn.
func (v *VirtualMCU) PushCCIDControl(msgType, seq byte) {
	msg := ccid.WrapXfrBlock(0, seq, nil)
	msg[0] = msgType
	v.pushCommand(v.bulkPackets(msg))
}

func (v *VirtualMCU) bulkPackets(msg []byte) [][]byte {
	v.mu.Lock()
	ep := v.ccidOut
	v.mu.Unlock()

	var pkts [][]byte
	for off := 0; off < len(msg); off += ccid.MaxPacket {
		end := min(off+ccid.MaxPacket, len(msg))
		pkts = append(pkts, packet(seph.TagUSBEPXferEvent, xferPayload(ep, seph.XferOut, msg[off:end])))
	}
	return pkts
}

// Pending returns the number of queued events.
func (v *VirtualMCU) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.events)
}

// nextEvent picks the event answering the pending status. Called with mu held.
func (v *VirtualMCU) nextEvent() (queued, error) {
	if len(v.events) > 0 && !(v.events[0].gate && v.outstanding > 0) {
		q := v.events[0]
		v.events = v.events[1:]
		if q.opens {
			v.outstanding++
		}
		return q, nil
	}
	if v.idleLeft > 0 {
		v.idleLeft--
		return queued{pkt: packet(seph.TagTicker, nil)}, nil
	}
	return queued{}, io.EOF
}

// =============================================================================
// Link side
// =============================================================================

// Recv delivers the event answering the last status.
func (v *VirtualMCU) Recv(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, ErrClosed
	}
	if v.recvErr != nil {
		err := v.recvErr
		v.recvErr = nil
		return 0, err
	}
	if !v.pending {
		return 0, ErrNoStatus
	}
	q, err := v.nextEvent()
	if err != nil {
		return 0, err
	}
	v.pending = false
	if len(q.pkt) > len(buf) {
		// The command is lost, so the host stops waiting for its answer.
		if q.opens && v.outstanding > 0 {
			v.outstanding--
		}
		return copy(buf, q.pkt), ErrBufferTooSmall
	}
	return copy(buf, q.pkt), nil
}

// Send accepts command bytes from the secure element. Commands may be split
// across calls.
func (v *VirtualMCU) Send(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.feed(p)
	return nil
}

// SendGeneralStatus sends the general status command.
func (v *VirtualMCU) SendGeneralStatus(ctx context.Context) error {
	return v.Send(ctx, seph.GeneralStatus[:])
}

// StatusSent reports whether a status is waiting for its event.
func (v *VirtualMCU) StatusSent() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// =============================================================================
// Byte stream side
// =============================================================================

// Write implements io.Writer for byte stream links.
func (v *VirtualMCU) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrClosed
	}
	v.feed(p)
	return len(p), nil
}

// Read implements io.Reader for byte stream links. It returns 0, nil when no
// status is pending, like a serial read timing out.
func (v *VirtualMCU) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrClosed
	}
	if len(v.stream) == 0 {
		if !v.pending {
			return 0, nil
		}
		q, err := v.nextEvent()
		if err != nil {
			return 0, err
		}
		v.pending = false
		v.stream = append(v.stream, q.pkt...)
	}
	n := copy(buf, v.stream)
	v.stream = v.stream[n:]
	return n, nil
}

// =============================================================================
// Command decoding
// =============================================================================

// feed appends bytes to the command stream and decodes whole commands.
// Called with mu held.
func (v *VirtualMCU) feed(p []byte) {
	v.wire = append(v.wire, p...)
	for len(v.wire) >= seph.HeaderSize {
		pkt, err := seph.Parse(v.wire, len(v.wire))
		if err != nil || pkt.Truncated {
			return
		}
		cmd := Command{Tag: pkt.Tag, Payload: append([]byte(nil), pkt.Payload...)}
		v.wire = v.wire[seph.HeaderSize+pkt.Len:]
		v.commands = append(v.commands, cmd)
		v.handleCommand(cmd)
	}
}

func (v *VirtualMCU) handleCommand(cmd Command) {
	switch {
	case cmd.Tag >= 0x60 && cmd.Tag <= 0x6F:
		v.pending = true
	case cmd.Tag == seph.TagRAPDU:
		v.respond(Response{Media: "raw", Data: cmd.Payload})
	case cmd.Tag == seph.TagBLESend:
		n, done, err := v.ble.Feed(cmd.Payload, v.bleMsg)
		if err == nil && done {
			v.respond(Response{Media: "ble", Data: append([]byte(nil), v.bleMsg[:n]...)})
		}
		if v.autoAck {
			// BLE writes are acknowledged by the next event, any event.
			v.events = append([]queued{{pkt: packet(seph.TagTicker, nil)}}, v.events...)
		}
	case cmd.Tag == seph.TagUSBEPPrepare && len(cmd.Payload) >= 3:
		v.handleEPPrepare(cmd.Payload)
	}
}

func (v *VirtualMCU) handleEPPrepare(payload []byte) {
	ep, dir, size := payload[0], payload[1], int(payload[2])
	if dir != seph.EPPrepareDirIn {
		return
	}
	data := payload[3:]
	if size < len(data) {
		data = data[:size]
	}

	switch ep {
	case v.hidIn:
		n, done, err := v.hid.Feed(data, v.hidMsg)
		if err == nil && done {
			v.respond(Response{Media: "hid", Data: append([]byte(nil), v.hidMsg[:n]...)})
		}
	case v.ccidIn:
		v.ccidBulk = append(v.ccidBulk, data...)
		if len(data) < ccid.MaxPacket {
			// A short packet ends the bulk transfer.
			msg, body, err := ccid.ParseResponse(v.ccidBulk)
			if err == nil {
				v.respond(Response{Media: "ccid", Data: append([]byte(nil), body...), CCIDType: msg.Type})
			}
			v.ccidBulk = nil
		}
	}

	if v.autoAck {
		ack := packet(seph.TagUSBEPXferEvent, xferPayload(ep, seph.XferIn, nil))
		v.events = append([]queued{{pkt: ack}}, v.events...)
	}
}

// respond records a response and lets the next host command through.
func (v *VirtualMCU) respond(r Response) {
	v.responses = append(v.responses, r)
	if v.outstanding > 0 {
		v.outstanding--
	}
}

// Commands returns every command sent by the secure element, statuses included.
func (v *VirtualMCU) Commands() []Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Command(nil), v.commands...)
}

// CommandCount returns how many commands with tag were sent.
func (v *VirtualMCU) CommandCount(tag byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, c := range v.commands {
		if c.Tag == tag {
			count++
		}
	}
	return count
}

// Responses returns the APDU responses sent so far, in order.
func (v *VirtualMCU) Responses() []Response {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Response(nil), v.responses...)
}

// LastResponse returns the most recent response, or a zero Response.
func (v *VirtualMCU) LastResponse() Response {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.responses) == 0 {
		return Response{}
	}
	return v.responses[len(v.responses)-1]
}
