// Package pes validates and parses Private Stream 1 PES packets carrying
// DVB VBI Teletext data: it picks a presentation clock (PTS or PCR),
// converts it to a monotonic millisecond timeline across wraparound, and
// splits the payload into fixed-size Teletext data units.
package pes

import (
	"log"

	"github.com/snapetech/telxtuner/internal/bitutil"
)

const (
	streamIDPrivate1 = 0xbd
	teletextUnitLen  = 44

	// DataUnitNonSubtitle and DataUnitSubtitle identify VBI data units
	// this decoder acts on (ETS 300 706 via EN 301 775).
	DataUnitNonSubtitle = 0x02
	DataUnitSubtitle    = 0x03
)

// Unit is one 44-byte Teletext VBI data unit, already bit-reversed into
// normal byte order, tagged with the data_unit_id that selected it.
type Unit struct {
	ID  uint8
	Raw [teletextUnitLen]byte
}

// ptsState is the sticky tri-state decision of whether PTS (vs PCR) drives
// the presentation clock; ETS's UNDEF sentinel made explicit as a Go enum.
type ptsState int

const (
	ptsUndetermined ptsState = iota
	ptsInUse
	ptsNotInUse
)

// Clock tracks the three-clock-domain synchronisation state described in
// spec.md §3: a sticky PTS-vs-PCR decision, wraparound-aware delta
// tracking, and the UTC reference value an 8/30 service-data packet may
// override.
type Clock struct {
	state ptsState

	utcRefValue    uint32 // seconds; wall clock at startup, or 8/30 override
	ptsInitialized bool
	delta          int64
	t0             uint32
	lastTimestamp  uint32

	Verbose bool
}

// NewClock seeds the clock with utcRefValue, the UTC reference in seconds
// the first PES timestamp is anchored against.
func NewClock(utcRefValue uint32) *Clock {
	return &Clock{utcRefValue: utcRefValue}
}

// SetUTCRefValue installs a new UTC reference value, as produced by an 8/30
// service-data packet, and clears the sticky PTS-initialised flag so the
// next PES re-anchors the delta against it (spec.md §4.E).
func (c *Clock) SetUTCRefValue(v uint32) {
	c.utcRefValue = v
	c.ptsInitialized = false
}

// LastTimestamp returns the most recently published output timestamp in
// milliseconds.
func (c *Clock) LastTimestamp() uint32 { return c.lastTimestamp }

// ParsePacket validates and parses one assembled PES buffer. pcrMillis is
// the demuxer's latest adaptation-field PCR snapshot, used when no PTS is
// available. It returns the VBI data units this packet carries (id in
// {DataUnitNonSubtitle, DataUnitSubtitle} and length 44) and the published
// timestamp for this packet; ok is false when the packet fails a guard and
// should be silently skipped (spec.md §7 stream-invalid recoverable).
func (c *Clock) ParsePacket(buf []byte, pcrMillis float64) (units []Unit, timestampMs uint32, ok bool) {
	if len(buf) < 6 {
		return nil, 0, false
	}
	if buf[0] != 0x00 || buf[1] != 0x00 || buf[2] != 0x01 {
		return nil, 0, false
	}
	if buf[3] != streamIDPrivate1 {
		return nil, 0, false
	}

	pesPacketLength := 6 + (int(buf[4])<<8 | int(buf[5]))
	if pesPacketLength == 6 {
		return nil, 0, false
	}
	if pesPacketLength > len(buf) {
		pesPacketLength = len(buf)
	}
	if len(buf) < 9 {
		return nil, 0, false
	}

	optionalHeader := buf[6]&0xc0 == 0x80
	var optionalHeaderLen int
	if optionalHeader {
		optionalHeaderLen = int(buf[8])
	}

	if c.state == ptsUndetermined {
		if optionalHeader && buf[7]&0x80 > 0 {
			c.state = ptsInUse
			if c.Verbose {
				log.Print("pes: PID 0xbd PTS available")
			}
		} else {
			c.state = ptsNotInUse
			if c.Verbose {
				log.Print("pes: PID 0xbd PTS unavailable, using TS PCR")
			}
		}
	}

	var t uint32
	if c.state == ptsNotInUse {
		t = uint32(pcrMillis)
	} else {
		if len(buf) < 14 {
			return nil, 0, false
		}
		pts := uint64(buf[9]&0x0e) << 29
		pts |= uint64(buf[10]) << 22
		pts |= uint64(buf[11]&0xfe) << 14
		pts |= uint64(buf[12]) << 7
		pts |= uint64(buf[13]&0xfe) >> 1
		t = uint32(pts / 90)
	}

	if !c.ptsInitialized {
		c.delta = 1000*int64(c.utcRefValue) - int64(t)
		c.ptsInitialized = true
		if c.state == ptsNotInUse && pcrMillis == 0 {
			c.ptsInitialized = false
		}
	}
	if t < c.t0 {
		c.delta = int64(c.lastTimestamp)
	}
	c.lastTimestamp = uint32(int64(t) + c.delta)
	c.t0 = t
	timestampMs = c.lastTimestamp

	i := 7
	if optionalHeader {
		i += 3 + optionalHeaderLen
	}
	for i <= pesPacketLength-6 {
		if i+1 >= len(buf) {
			break
		}
		dataUnitID := buf[i]
		dataUnitLen := int(buf[i+1])
		i += 2
		if i+dataUnitLen > len(buf) {
			break
		}
		if (dataUnitID == DataUnitNonSubtitle || dataUnitID == DataUnitSubtitle) && dataUnitLen == teletextUnitLen {
			var u Unit
			u.ID = dataUnitID
			for j := 0; j < teletextUnitLen; j++ {
				u.Raw[j] = bitutil.ReverseBits(buf[i+j])
			}
			units = append(units, u)
		}
		i += dataUnitLen
	}

	return units, timestampMs, true
}
