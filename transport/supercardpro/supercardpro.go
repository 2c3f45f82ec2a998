// Package supercardpro implements transport.Transport over a SuperCard Pro
// USB-serial flux capture board, adapted from the teacher's supercardpro
// package: same command framing, checksum and RAM-transfer protocol,
// retargeted from MFM-bitcell decoding onto flux.Data revolutions. The
// teacher's package called loadRAM/writeFlux without ever defining them;
// this adaptation supplies them following the same scpSend command-byte
// convention as the neighboring READFLUX/GETFLUXINFO/SENDRAM_USB codes.
package supercardpro

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
	VendorID  = 0x0403
	ProductID = 0x6015
)

// SCP command codes.
const (
	cmdSelA        = 0x80
	cmdSelB        = 0x81
	cmdDSelA       = 0x82
	cmdDSelB       = 0x83
	cmdMtrAOn      = 0x84
	cmdMtrBOn      = 0x85
	cmdMtrAOff     = 0x86
	cmdMtrBOff     = 0x87
	cmdSeek0       = 0x88
	cmdStepTo      = 0x89
	cmdSide        = 0x8d
	cmdSetParams   = 0x91
	cmdReadFlux    = 0xa0
	cmdGetFluxInfo = 0xa1
	cmdLoadRAMUSB  = 0xa2
	cmdWriteFlux   = 0xa3
	cmdSendRAMUSB  = 0xa9
	cmdSCPInfo     = 0xd0
)

const statusOK = 0x4f

const ramBufferSize = 512 * 1024

// FluxInfo describes one captured revolution's index timing and bitcell
// count, as returned by CMD_GETFLUXINFO.
type FluxInfo struct {
	IndexTime  uint32
	NrBitcells uint32
}

// Client wraps a serial connection to one SuperCard Pro device.
type Client struct {
	port serial.Port
}

// Probe enumerates serial ports looking for a SuperCard Pro's VID/PID.
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
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 38400})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &Client{port: port}, nil
}

// Close releases the underlying serial port.
func (c *Client) Close() error { return c.port.Close() }

// send writes one SCP command packet ([cmd][len][data...][checksum]) and
// validates the echoed [cmd][status] response, reading readData (if any)
// before the response for SENDRAM_USB-style bulk transfers.
func (c *Client) send(cmd byte, data []byte, readData []byte) error {
	if len(data) > 255 {
		return fmt.Errorf("supercardpro: data length %d exceeds maximum 255", len(data))
	}

	packet := make([]byte, 3+len(data))
	packet[0] = cmd
	packet[1] = byte(len(data))
	copy(packet[2:], data)

	checksum := byte(0x4a)
	for _, b := range packet[:2+len(data)] {
		checksum += b
	}
	packet[2+len(data)] = checksum

	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("write command packet: %w", err)
	}

	if readData != nil {
		if _, err := io.ReadFull(c.port, readData); err != nil {
			return fmt.Errorf("read bulk data: %w", err)
		}
	}

	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return fmt.Errorf("read command response: %w", err)
	}
	if response[0] != cmd {
		return fmt.Errorf("command echo mismatch: sent 0x%02x, received 0x%02x", cmd, response[0])
	}
	if response[1] != statusOK {
		return fmt.Errorf("command 0x%02x failed with status 0x%02x", cmd, response[1])
	}
	return nil
}

func (c *Client) selectDrive(drive int, on bool) error {
	sel, mtr := byte(cmdSelA), byte(cmdMtrAOn)
	dsel, mtroff := byte(cmdDSelA), byte(cmdMtrAOff)
	if drive == 1 {
		sel, mtr, dsel, mtroff = cmdSelB, cmdMtrBOn, cmdDSelB, cmdMtrBOff
	}
	if on {
		if err := c.send(sel, nil, nil); err != nil {
			return err
		}
		return c.send(mtr, nil, nil)
	}
	if err := c.send(mtroff, nil, nil); err != nil {
		return err
	}
	return c.send(dsel, nil, nil)
}

func (c *Client) seek(ch chs.CylHead) error {
	if ch.Cyl == 0 {
		if err := c.send(cmdSeek0, nil, nil); err != nil {
			return err
		}
	} else if err := c.send(cmdStepTo, []byte{byte(ch.Cyl)}, nil); err != nil {
		return err
	}
	if err := c.send(cmdSide, []byte{byte(ch.Head)}, nil); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}

// readFlux issues READFLUX/GETFLUXINFO/SENDRAM_USB and returns the
// captured per-revolution index/bitcell info alongside the raw 16-bit
// interval buffer (25ns units, big-endian, 0x0000 means "add 0x10000 and
// keep accumulating" per the format encodeFluxToSCP/decodeFluxToMFM in the
// original package use).
func (c *Client) readFlux(revs int) ([5]FluxInfo, []byte, error) {
	if err := c.send(cmdReadFlux, []byte{byte(revs), 1}, nil); err != nil {
		return [5]FluxInfo{}, nil, fmt.Errorf("send READFLUX: %w", err)
	}
	if err := c.send(cmdGetFluxInfo, nil, nil); err != nil {
		return [5]FluxInfo{}, nil, fmt.Errorf("send GETFLUXINFO: %w", err)
	}
	raw := make([]byte, 40)
	if _, err := io.ReadFull(c.port, raw); err != nil {
		return [5]FluxInfo{}, nil, fmt.Errorf("read flux info: %w", err)
	}
	var info [5]FluxInfo
	for i := 0; i < 5; i++ {
		off := i * 8
		info[i].IndexTime = binary.BigEndian.Uint32(raw[off : off+4])
		info[i].NrBitcells = binary.BigEndian.Uint32(raw[off+4 : off+8])
	}

	ramCmd := make([]byte, 8)
	binary.BigEndian.PutUint32(ramCmd[0:4], 0)
	binary.BigEndian.PutUint32(ramCmd[4:8], ramBufferSize)
	data := make([]byte, ramBufferSize)
	if err := c.send(cmdSendRAMUSB, ramCmd, data); err != nil {
		return [5]FluxInfo{}, nil, fmt.Errorf("read flux RAM: %w", err)
	}
	return info, data, nil
}

// splitRevolutions walks the raw 16-bit interval stream, converting each
// entry to nanoseconds and cutting a new revolution every time the running
// total crosses that revolution's IndexTime boundary.
func splitRevolutions(info [5]FluxInfo, raw []byte) [][]uint64 {
	var revolutions [][]uint64
	var current []uint64
	accNs := uint64(0)
	revIdx := 0
	boundaryNs := uint64(info[0].IndexTime) * 25

	for off := 0; off+1 < len(raw); off += 2 {
		val := binary.BigEndian.Uint16(raw[off : off+2])
		if val == 0 {
			accNs += 0x10000 * 25
			continue
		}
		accNs += uint64(val) * 25
		current = append(current, uint64(val)*25)

		if boundaryNs != 0 && accNs >= boundaryNs {
			revolutions = append(revolutions, current)
			current = nil
			accNs = 0
			revIdx++
			if revIdx >= 5 || info[revIdx].IndexTime == 0 {
				break
			}
			boundaryNs = uint64(info[revIdx].IndexTime) * 25
		}
	}
	if len(current) > 0 {
		revolutions = append(revolutions, current)
	}
	return revolutions
}

// joinRevolutions is splitRevolutions' inverse, rendering flux revolutions
// into the raw 16-bit big-endian interval stream CMD_LOADRAM_USB expects.
func joinRevolutions(revolutions [][]uint64) []byte {
	var out []byte
	for _, rev := range revolutions {
		for _, ns := range rev {
			interval25ns := ns / 25
			for interval25ns >= 0x10000 {
				out = append(out, 0x00, 0x00)
				interval25ns -= 0x10000
			}
			if interval25ns == 0 {
				interval25ns = 1
			}
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, uint16(interval25ns))
			out = append(out, b...)
		}
	}
	return out
}

func (c *Client) loadRAM(data []byte) error {
	chunk := make([]byte, 8)
	binary.BigEndian.PutUint32(chunk[0:4], 0)
	binary.BigEndian.PutUint32(chunk[4:8], uint32(len(data)))
	if err := c.send(cmdLoadRAMUSB, chunk, nil); err != nil {
		return fmt.Errorf("send LOADRAM_USB: %w", err)
	}
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("write RAM payload: %w", err)
	}
	return nil
}

func (c *Client) writeFlux(nrSamples uint32, revs byte) error {
	cmd := make([]byte, 5)
	binary.BigEndian.PutUint32(cmd[0:4], nrSamples)
	cmd[4] = revs
	if err := c.send(cmdWriteFlux, cmd, nil); err != nil {
		return fmt.Errorf("send WRITEFLUX: %w", err)
	}
	return nil
}

// Load implements transport.Transport.
func (c *Client) Load(ctx context.Context, ch chs.CylHead, revs int, firstRead bool) (trackdata.TrackData, error) {
	if err := c.selectDrive(0, true); err != nil {
		return trackdata.TrackData{}, err
	}
	defer c.selectDrive(0, false)

	if err := c.seek(ch); err != nil {
		return trackdata.TrackData{}, err
	}

	select {
	case <-ctx.Done():
		return trackdata.TrackData{}, ctx.Err()
	default:
	}

	if revs > 5 {
		revs = 5
	}
	info, raw, err := c.readFlux(revs)
	if err != nil {
		return trackdata.TrackData{}, err
	}

	fd := flux.New()
	for _, rev := range splitRevolutions(info, raw) {
		fd.AddRevolution(rev)
	}
	return trackdata.NewFlux(ch, fd, chs.DataRateUnknown, chs.EncodingUnknown), nil
}

// Save implements transport.Transport.
func (c *Client) Save(ctx context.Context, ch chs.CylHead, td trackdata.TrackData) error {
	fd, err := td.Flux()
	if err != nil {
		return fmt.Errorf("supercardpro: save requires flux data: %w", err)
	}

	if err := c.selectDrive(0, true); err != nil {
		return err
	}
	defer c.selectDrive(0, false)

	if err := c.seek(ch); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	raw := joinRevolutions(fd.Revolutions)
	if err := c.loadRAM(raw); err != nil {
		return err
	}
	return c.writeFlux(uint32(len(raw)/2), 2)
}

// SupportsRetries reports true: a live drive can be re-read for a noisy
// track.
func (c *Client) SupportsRetries() bool { return true }
