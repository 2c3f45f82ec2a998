// Package greaseweazle implements transport.Transport over a Greaseweazle
// USB-serial flux capture board, adapted from the teacher's greaseweazle
// package: same VID/PID probing, command framing and N28/opcode flux
// stream encoding, retargeted from raw decoded sector bytes onto
// flux.Data revolutions.
package greaseweazle

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/flux"
	"github.com/sergev/floppycore/trackdata"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	VendorID  = 0x1209
	ProductID = 0x4d69
)

const (
	CmdGetInfo       = 0
	CmdSeek          = 2
	CmdHead          = 3
	CmdMotor         = 6
	CmdReadFlux      = 7
	CmdWriteFlux     = 8
	CmdGetFluxStatus = 9
	CmdSelect        = 12
	CmdDeselect      = 13
	CmdSetBusType    = 14
)

const (
	GetinfoFirmware = 0
)

const (
	AckOkay          = 0
	AckNoIndex       = 2
	AckNoTrk0        = 3
	AckFluxOverflow  = 4
	AckFluxUnderflow = 5
	AckWrprot        = 6
)

const (
	busNone    = 0
	busIBMPC   = 1
	fluxopIndex = 1
	fluxopSpace = 2
)

// Client wraps a serial connection to one Greaseweazle device.
type Client struct {
	port         serial.Port
	sampleFreqHz uint32
	drive        byte
}

// Probe enumerates serial ports looking for a Greaseweazle's VID/PID,
// returning the matching port details or nil if none was found.
func Probe() (*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		var vid, pid uint64
		fmt.Sscanf(p.VID, "%x", &vid)
		fmt.Sscanf(p.PID, "%x", &pid)
		if uint32(vid) == VendorID && uint32(pid) == ProductID {
			return p, nil
		}
	}
	return nil, nil
}

// NewClient opens portName, resets the device's command stream and
// fetches its sample clock frequency.
func NewClient(portName string) (*Client, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	c := &Client{port: port}

	if err := port.SetMode(&serial.Mode{BaudRate: 10000}); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset baud rate: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := port.SetMode(&serial.Mode{BaudRate: 9600}); err != nil {
		port.Close()
		return nil, fmt.Errorf("restore baud rate: %w", err)
	}

	if err := c.doCommand([]byte{CmdSetBusType, 3, busIBMPC}); err != nil {
		port.Close()
		return nil, fmt.Errorf("set bus type: %w", err)
	}

	freq, err := c.fetchSampleFreq()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("fetch firmware info: %w", err)
	}
	c.sampleFreqHz = freq
	return c, nil
}

// Close releases the underlying serial port.
func (c *Client) Close() error { return c.port.Close() }

func ackError(code byte) error {
	switch code {
	case AckOkay:
		return nil
	case AckNoIndex:
		return fmt.Errorf("greaseweazle: no index pulse seen")
	case AckNoTrk0:
		return fmt.Errorf("greaseweazle: track 0 not found")
	case AckFluxOverflow:
		return fmt.Errorf("greaseweazle: flux buffer overflow")
	case AckFluxUnderflow:
		return fmt.Errorf("greaseweazle: flux buffer underflow")
	case AckWrprot:
		return fmt.Errorf("greaseweazle: disk is write protected")
	default:
		return fmt.Errorf("greaseweazle: device error %d", code)
	}
}

func (c *Client) doCommand(cmd []byte) error {
	if _, err := c.port.Write(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(c.port, ack); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if ack[0] != cmd[0] {
		return fmt.Errorf("command echo mismatch: got 0x%02x, want 0x%02x", ack[0], cmd[0])
	}
	return ackError(ack[1])
}

func (c *Client) fetchSampleFreq() (uint32, error) {
	if err := c.doCommand([]byte{CmdGetInfo, 3, GetinfoFirmware}); err != nil {
		return 0, err
	}
	resp := make([]byte, 32)
	if _, err := io.ReadFull(c.port, resp); err != nil {
		return 0, fmt.Errorf("read firmware info: %w", err)
	}
	return binary.LittleEndian.Uint32(resp[4:8]), nil
}

// Seek moves the head to cylinder cyl.
func (c *Client) Seek(cyl int) error {
	return c.doCommand([]byte{CmdSeek, 3, byte(cyl)})
}

// SetHead selects head 0 or 1.
func (c *Client) SetHead(head int) error {
	return c.doCommand([]byte{CmdHead, 3, byte(head)})
}

func (c *Client) selectDrive(on bool) error {
	if on {
		return c.doCommand([]byte{CmdSelect, 3, c.drive})
	}
	return c.doCommand([]byte{CmdDeselect, 2})
}

func (c *Client) setMotor(on bool) error {
	v := byte(0)
	if on {
		v = 1
	}
	return c.doCommand([]byte{CmdMotor, 4, c.drive, v})
}

// readFluxRaw issues CMD_READ_FLUX and reads the opcode-encoded stream
// until the terminating zero byte.
func (c *Client) readFluxRaw(ticks uint32, maxIndex uint16) ([]byte, error) {
	cmd := make([]byte, 8)
	cmd[0] = CmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], ticks)
	binary.LittleEndian.PutUint16(cmd[6:8], maxIndex)
	if err := c.doCommand(cmd); err != nil {
		return nil, fmt.Errorf("send READ_FLUX: %w", err)
	}

	var data []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.port, buf); err != nil {
			return nil, fmt.Errorf("read flux stream: %w", err)
		}
		if buf[0] == 0 {
			break
		}
		data = append(data, buf[0])
	}
	return data, nil
}

// readN28 decodes a 28-bit big-endian-in-7-bit-groups value as the
// Greaseweazle wire format packs it.
func readN28(data []byte, offset int) (uint32, int) {
	b0, b1, b2, b3 := data[offset], data[offset+1], data[offset+2], data[offset+3]
	value := ((uint32(b0) & 0xfe) >> 1) |
		((uint32(b1) & 0xfe) << 6) |
		((uint32(b2) & 0xfe) << 13) |
		((uint32(b3) & 0xfe) << 20)
	return value, 4
}

// decodeStream turns one opcode-encoded flux read into per-revolution
// nanosecond reversal intervals, splitting revolutions at each FLUXOP_INDEX
// marker the device inserts and stopping at the zero byte that ends the
// stream.
func decodeStream(data []byte, tickPeriodNs float64) [][]uint64 {
	var revolutions [][]uint64
	var current []uint64
	pending := uint64(0)

	flushInterval := func(ticks uint64) {
		current = append(current, uint64(float64(ticks)*tickPeriodNs))
	}

	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b == 0xff:
			if i+1 >= len(data) {
				i = len(data)
				continue
			}
			op := data[i+1]
			i += 2
			switch op {
			case fluxopIndex:
				n28, consumed := readN28(data, i)
				i += consumed
				_ = n28
				revolutions = append(revolutions, current)
				current = nil
				pending = 0
			case fluxopSpace:
				n28, consumed := readN28(data, i)
				i += consumed
				pending += uint64(n28)
			}
		case b == 0:
			// End-of-stream terminator.
			i = len(data)
		case b < 250:
			pending += uint64(b)
			flushInterval(pending)
			pending = 0
			i++
		default:
			if i+1 >= len(data) {
				i = len(data)
				continue
			}
			delta := 250 + uint64(b-250)*255 + uint64(data[i+1]) - 1
			pending += delta
			flushInterval(pending)
			pending = 0
			i += 2
		}
	}
	if len(current) > 0 {
		revolutions = append(revolutions, current)
	}
	return revolutions
}

// encodeStream is decodeStream's inverse: it renders flux revolutions back
// into the same opcode stream the device's CMD_WRITE_FLUX consumes.
func encodeStream(revolutions [][]uint64, tickPeriodNs float64) []byte {
	var out []byte
	writeN28 := func(v uint32) {
		out = append(out,
			byte((v<<1)&0xfe),
			byte((v>>6)&0xfe),
			byte((v>>13)&0xfe),
			byte((v>>20)&0xfe),
		)
	}
	writeInterval := func(ticks uint64) {
		switch {
		case ticks < 250:
			out = append(out, byte(ticks))
		case ticks > 1778:
			// Past the two-byte form's range (lead byte at most 255):
			// carry the excess in a FLUXOP_SPACE, then end the interval
			// with a one-byte 249.
			out = append(out, 0xff, fluxopSpace)
			writeN28(uint32(ticks - 249))
			out = append(out, 249)
		default:
			rem := ticks - 250 + 1
			hi := rem / 255
			lo := rem % 255
			out = append(out, byte(250+hi), byte(lo))
		}
	}

	for ri, revs := range revolutions {
		for _, ns := range revs {
			ticks := uint64(float64(ns)/tickPeriodNs + 0.5)
			writeInterval(ticks)
		}
		if ri < len(revolutions)-1 {
			out = append(out, 0xff, fluxopIndex)
			writeN28(0)
		}
	}
	out = append(out, 0)
	return out
}

// Load implements transport.Transport: seeks to ch, requests revs
// revolutions of flux and returns them as a trackdata.TrackData.
func (c *Client) Load(ctx context.Context, ch chs.CylHead, revs int, firstRead bool) (trackdata.TrackData, error) {
	if err := c.selectDrive(true); err != nil {
		return trackdata.TrackData{}, err
	}
	defer c.selectDrive(false)

	if err := c.Seek(ch.Cyl); err != nil {
		return trackdata.TrackData{}, err
	}
	if err := c.SetHead(ch.Head); err != nil {
		return trackdata.TrackData{}, err
	}

	select {
	case <-ctx.Done():
		return trackdata.TrackData{}, ctx.Err()
	default:
	}

	raw, err := c.readFluxRaw(0, uint16(revs+1))
	if err != nil {
		return trackdata.TrackData{}, err
	}

	tickPeriodNs := 1e9 / float64(c.sampleFreqHz)
	revolutions := decodeStream(raw, tickPeriodNs)

	fd := flux.New()
	for _, r := range revolutions {
		fd.AddRevolution(r)
	}
	return trackdata.NewFlux(ch, fd, chs.DataRateUnknown, chs.EncodingUnknown), nil
}

// Save implements transport.Transport: renders td's flux back into the
// device's wire format and writes it to ch.
func (c *Client) Save(ctx context.Context, ch chs.CylHead, td trackdata.TrackData) error {
	fd, err := td.Flux()
	if err != nil {
		return fmt.Errorf("greaseweazle: save requires flux data: %w", err)
	}

	if err := c.selectDrive(true); err != nil {
		return err
	}
	defer c.selectDrive(false)

	if err := c.Seek(ch.Cyl); err != nil {
		return err
	}
	if err := c.SetHead(ch.Head); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tickPeriodNs := 1e9 / float64(c.sampleFreqHz)
	raw := encodeStream(fd.Revolutions, tickPeriodNs)

	cmd := make([]byte, 4)
	cmd[0] = CmdWriteFlux
	cmd[1] = 4
	binary.LittleEndian.PutUint16(cmd[2:4], 0)
	if err := c.doCommand(cmd); err != nil {
		return fmt.Errorf("send WRITE_FLUX: %w", err)
	}
	if _, err := c.port.Write(raw); err != nil {
		return fmt.Errorf("write flux stream: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(c.port, ack); err != nil {
		return fmt.Errorf("read write ack: %w", err)
	}
	return ackError(ack[1])
}

// SupportsRetries reports true: a live drive can be re-read for a noisy
// track, unlike a flux image file transport.
func (c *Client) SupportsRetries() bool { return true }
