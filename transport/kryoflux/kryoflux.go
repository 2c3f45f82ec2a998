// Package kryoflux implements transport.Transport over a KryoFlux
// USB-serial flux capture board, adapted from the teacher's kryoflux
// package: the same OOB/Flux1/Flux2/Flux3 stream format, index-pulse
// timing and sample-clock constants, retargeted from MFM-bitcell decoding
// onto flux.Data revolutions. The teacher's read.go referenced
// ReadBufferSize/IndexTiming/DecodedStreamData/DebugFlag/streamOn/
// controlIn/bulkIn and a sck/ick sample-clock pair without ever defining
// them; this adaptation supplies a serial-port-based Client (as
// kryoflux.go itself already used) and takes the documented sample/index
// clock values straight from read.go's own KFInfo example comment.
package kryoflux

import (
	"context"
	"fmt"
	"time"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/flux"
	"github.com/sergev/floppycore/trackdata"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	VendorID  = 0x03eb
	ProductID = 0x6124
)

const baudRate = 115200

// Sample and index clock rates, in Hz, as KryoFlux's own KFInfo block
// reports them (sck/ick).
const (
	DefaultSampleClock = 24027428.5714285
	DefaultIndexClock  = 3003428.5714285625
)

const readBufferSize = 16384

// commandTimeout bounds how long captureStream waits for a full stream
// (at least two index pulses) before giving up.
const commandTimeout = 5 * time.Second

// IndexTiming records one OOB Index block's position within the stream
// and the device's free-running sample/index counters at that instant.
type IndexTiming struct {
	StreamPosition uint32
	SampleCounter  uint32
	IndexCounter   uint32
}

// Client wraps a serial connection to one KryoFlux device.
type Client struct {
	port serial.Port
}

// Probe enumerates serial ports looking for a KryoFlux's VID/PID.
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

// NewClient opens portName.
func NewClient(portName string) (*Client, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &Client{port: port}, nil
}

// Close releases the underlying serial port.
func (c *Client) Close() error { return c.port.Close() }

func (c *Client) sendCommand(line string) error {
	_, err := c.port.Write([]byte(line + "\n"))
	if err != nil {
		return fmt.Errorf("send command %q: %w", line, err)
	}
	return nil
}

// seek moves the device's head and side per the KryoFlux host-protocol's
// text command set.
func (c *Client) seek(ch chs.CylHead) error {
	if err := c.sendCommand(fmt.Sprintf("seek,%d", ch.Cyl)); err != nil {
		return err
	}
	return c.sendCommand(fmt.Sprintf("side,%d", ch.Head))
}

// captureStream reads raw stream bytes until an OOB end-of-stream marker
// (type 0x0d) is seen or commandTimeout elapses.
func (c *Client) captureStream() ([]byte, error) {
	var data []byte
	buf := make([]byte, readBufferSize)
	deadline := time.Now().Add(commandTimeout)

	for time.Now().Before(deadline) {
		n, err := c.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read stream data: %w", err)
		}
		if n == 0 {
			continue
		}
		data = append(data, buf[:n]...)
		if streamHasEnd(data) {
			return data, nil
		}
	}
	if len(data) > 0 {
		return data, nil
	}
	return nil, fmt.Errorf("kryoflux: stream capture timed out with no data")
}

// streamHasEnd walks the block stream looking for an OOB end marker
// (type 0x0d within an 0x0d-tagged block), matching the teacher's
// findEndOfStream block-size table.
func streamHasEnd(data []byte) bool {
	offset := 0
	for offset < len(data) {
		val := data[offset]
		switch {
		case val <= 0x07:
			offset += 2
		case val == 0x08:
			offset++
		case val == 0x09:
			offset += 2
		case val == 0x0a:
			offset += 3
		case val == 0x0b:
			offset++
		case val == 0x0c:
			offset += 3
		case val == 0x0d:
			if offset+4 > len(data) {
				return false
			}
			if data[offset+1] == 0x0d {
				return true
			}
			oobSize := int(data[offset+2]) | int(data[offset+3])<<8
			if offset+4+oobSize > len(data) {
				return false
			}
			offset += oobSize + 4
		default:
			offset++
		}
	}
	return false
}

// decodePulses scans for OOB Index blocks (type 0x02), recording where in
// the stream each occurred and the device's sample/index counters then.
func decodePulses(data []byte) []IndexTiming {
	var pulses []IndexTiming
	offset := 0
	for offset < len(data) {
		val := data[offset]
		switch {
		case val <= 0x07:
			offset += 2
		case val == 0x08:
			offset++
		case val == 0x09:
			offset += 2
		case val == 0x0a:
			offset += 3
		case val == 0x0b:
			offset++
		case val == 0x0c:
			offset += 3
		case val == 0x0d:
			if offset+4 > len(data) {
				return pulses
			}
			oobType := data[offset+1]
			if oobType == 0x0d {
				return pulses
			}
			oobSize := int(data[offset+2]) | int(data[offset+3])<<8
			if offset+4+oobSize > len(data) {
				return pulses
			}
			if oobType == 0x02 && oobSize >= 12 {
				pulses = append(pulses, IndexTiming{
					StreamPosition: leUint32(data[offset+4 : offset+8]),
					SampleCounter:  leUint32(data[offset+8 : offset+12]),
					IndexCounter:   leUint32(data[offset+12 : offset+16]),
				})
			}
			offset += oobSize + 4
		default:
			offset++
		}
	}
	return pulses
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// decodeFlux extracts one revolution's flux reversal times (nanoseconds,
// relative to streamStart) from the Flux1/Flux2/Flux3/Ovl16-tagged block
// range [streamStart, streamEnd), following the teacher's ticksAccumulated
// bookkeeping.
func decodeFlux(data []byte, streamStart, streamEnd uint32) ([]uint64, error) {
	tickPeriodNs := 1e9 / DefaultSampleClock
	var transitions []uint64
	ticks := uint64(0)

	i := streamStart
	for i < streamEnd {
		val := data[i]
		switch {
		case val <= 7:
			if i+1 >= streamEnd {
				return nil, fmt.Errorf("incomplete Flux2 block at offset %d", i)
			}
			ticks += uint64(val)<<8 | uint64(data[i+1])
			transitions = append(transitions, uint64(float64(ticks)*tickPeriodNs))
			i += 2
		case val == 0x08:
			i++
		case val == 0x09:
			i += 2
		case val == 0x0a:
			i += 3
		case val == 0x0b:
			ticks += 0x10000
			i++
		case val == 0x0c:
			if i+2 >= streamEnd {
				return nil, fmt.Errorf("incomplete Flux3 block at offset %d", i)
			}
			ticks += uint64(data[i+1])<<8 | uint64(data[i+2])
			transitions = append(transitions, uint64(float64(ticks)*tickPeriodNs))
			i += 3
		case val == 0x0d:
			if i+3 >= streamEnd {
				return nil, fmt.Errorf("incomplete OOB header at offset %d", i)
			}
			if data[i+1] == 0x0d {
				return transitions, nil
			}
			oobSize := uint32(data[i+2]) | uint32(data[i+3])<<8
			if i+4+oobSize > streamEnd {
				return nil, fmt.Errorf("incomplete OOB data at offset %d", i)
			}
			i += 4 + oobSize
		default:
			ticks += uint64(val)
			transitions = append(transitions, uint64(float64(ticks)*tickPeriodNs))
			i++
		}
	}
	return transitions, nil
}

// absoluteToIntervals turns decodeFlux's running-total nanosecond
// transition times into reversal intervals (the representation
// flux.Data.AddRevolution expects).
func absoluteToIntervals(absolute []uint64) []uint64 {
	intervals := make([]uint64, len(absolute))
	last := uint64(0)
	for i, t := range absolute {
		intervals[i] = t - last
		last = t
	}
	return intervals
}

// Load implements transport.Transport: captures a stream spanning at
// least two index pulses and returns every inter-index revolution found,
// up to revs of them.
func (c *Client) Load(ctx context.Context, ch chs.CylHead, revs int, firstRead bool) (trackdata.TrackData, error) {
	if err := c.seek(ch); err != nil {
		return trackdata.TrackData{}, err
	}

	select {
	case <-ctx.Done():
		return trackdata.TrackData{}, ctx.Err()
	default:
	}

	data, err := c.captureStream()
	if err != nil {
		return trackdata.TrackData{}, err
	}

	pulses := decodePulses(data)
	if len(pulses) < 2 {
		return trackdata.TrackData{}, fmt.Errorf("kryoflux: fewer than two index pulses captured")
	}

	fd := flux.New()
	limit := len(pulses) - 1
	if limit > revs {
		limit = revs
	}
	for i := 0; i < limit; i++ {
		absolute, err := decodeFlux(data, pulses[i].StreamPosition, pulses[i+1].StreamPosition)
		if err != nil {
			return trackdata.TrackData{}, err
		}
		fd.AddRevolution(absoluteToIntervals(absolute))
	}
	return trackdata.NewFlux(ch, fd, chs.DataRateUnknown, chs.EncodingUnknown), nil
}

// Save implements transport.Transport. KryoFlux boards are read-only flux
// capture devices with no documented write command in this stream
// protocol, matching the teacher's kryoflux package (which never defined
// a Write path either).
func (c *Client) Save(ctx context.Context, ch chs.CylHead, td trackdata.TrackData) error {
	return fmt.Errorf("kryoflux: device does not support writing")
}

// SupportsRetries reports true: a live drive can be re-read for a noisy
// track.
func (c *Client) SupportsRetries() bool { return true }
