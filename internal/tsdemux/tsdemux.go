// Package tsdemux validates and demultiplexes 188-byte MPEG-2 Transport
// Stream packets: it tracks per-stream continuity, extracts the Programme
// Clock Reference from adaptation fields, and reassembles the Private
// Stream 1 PES carried on the configured PID.
package tsdemux

import "log"

const (
	packetSize  = 188
	syncByte    = 0x47
	nullPID     = 0x1fff
	pesBufCap   = 4096
	payloadSize = 184
)

// unsetCC is the continuity-counter sentinel meaning "no packet observed
// yet on this PID" (ETS spec.md §3's "unset" state; mirrors UNDEF in
// telxcc.h).
const unsetCC = -1

// Header is the decoded view of a TS packet's fixed 4-byte header plus the
// adaptation-field presence needed by the demux algorithm.
type Header struct {
	TransportError bool
	PayloadStart   bool
	PID            uint16
	Continuity     uint8
	HasAdaptation  bool
	HasPayload     bool
}

// ParseHeader decodes the fixed header of a sync'd 188-byte packet. The
// caller must already have checked pkt[0] == 0x47.
func ParseHeader(pkt []byte) Header {
	afc := (pkt[3] >> 4) & 0x03
	return Header{
		TransportError: pkt[1]&0x80 != 0,
		PayloadStart:   pkt[1]&0x40 != 0,
		PID:            (uint16(pkt[1]&0x1f) << 8) | uint16(pkt[2]),
		Continuity:     pkt[3] & 0x0f,
		HasAdaptation:  afc == 2 || afc == 3,
		HasPayload:     afc == 1 || afc == 3,
	}
}

// Demuxer holds the continuity and PES-assembly state for a single
// selected PID, plus the global PCR snapshot shared across PIDs.
type Demuxer struct {
	PID uint16

	lastCC        int // unsetCC or 0..15
	discontinuity bool

	pes       []byte
	pesLen    int
	seenStart bool // true once the first payload-unit-start packet arrives

	PCRMillis float64 // latest adaptation-field PCR, in milliseconds
	Verbose   bool
}

// NewDemuxer returns a Demuxer tracking the given PID.
func NewDemuxer(pid uint16) *Demuxer {
	return &Demuxer{PID: pid, lastCC: unsetCC, pes: make([]byte, pesBufCap)}
}

// Feed processes one 188-byte TS packet. It returns the previously
// assembled PES payload (ready for §4.D) when a new payload-unit-start
// packet arrives on the configured PID with a non-empty buffer; otherwise
// it returns nil. Side effect: PCRMillis is updated whenever the packet
// carries an adaptation-field PCR, regardless of PID.
func (d *Demuxer) Feed(pkt []byte) []byte {
	if len(pkt) != packetSize || pkt[0] != syncByte {
		return nil
	}
	hdr := ParseHeader(pkt)
	if hdr.TransportError {
		return nil
	}

	off := 4
	if hdr.HasAdaptation {
		var discInd bool
		off, discInd = d.consumeAdaptationField(pkt, off)
		if discInd {
			d.discontinuity = true
		}
	}

	if hdr.PID == nullPID || hdr.PID != d.PID {
		return nil
	}

	if !d.checkContinuity(hdr) {
		d.pesLen = 0
		// Resync: discard payload until the next payload-unit-start.
		d.seenStart = false
	}

	var flushed []byte
	if hdr.PayloadStart && d.pesLen > 0 {
		flushed = append([]byte(nil), d.pes[:d.pesLen]...)
		d.pesLen = 0
	}
	if hdr.PayloadStart {
		d.seenStart = true
	}

	// Before the first payload-unit-start packet there is no PES to
	// resume; discard any leading mid-stream payload instead of
	// buffering it (telxcc.c:743).
	if hdr.HasPayload && d.seenStart && off < len(pkt) {
		d.appendPayload(pkt[off:])
	}

	return flushed
}

// consumeAdaptationField reads the adaptation field starting at off,
// decodes a PCR if present, and reports whether the discontinuity
// indicator bit was set. It returns the offset of the payload body.
func (d *Demuxer) consumeAdaptationField(pkt []byte, off int) (payloadOff int, discontinuity bool) {
	if off >= len(pkt) {
		return off, false
	}
	alen := int(pkt[off])
	bodyOff := off + 1
	if alen == 0 || bodyOff+alen > len(pkt) {
		return bodyOff + alen, false
	}
	flags := pkt[bodyOff]
	discontinuity = flags&0x80 != 0
	hasPCR := flags&0x10 != 0
	if hasPCR && alen >= 7 {
		if ms, ok := parsePCR(pkt[bodyOff+1 : bodyOff+7]); ok {
			d.PCRMillis = ms
		}
	}
	return bodyOff + alen, discontinuity
}

// checkContinuity validates the continuity counter, honouring a pending
// discontinuity-indicator flag. On an unflagged mismatch it returns false
// so the caller drops the in-flight PES assembly (spec.md §3).
func (d *Demuxer) checkContinuity(hdr Header) bool {
	if !hdr.HasPayload {
		return true
	}
	defer func() { d.discontinuity = false }()

	if d.lastCC == unsetCC {
		d.lastCC = int(hdr.Continuity)
		return true
	}
	expected := (d.lastCC + 1) & 0x0f
	if int(hdr.Continuity) != expected && !d.discontinuity {
		if d.Verbose {
			log.Printf("tsdemux: continuity break on PID %d: expected %d, got %d", hdr.PID, expected, hdr.Continuity)
		}
		d.lastCC = unsetCC
		return false
	}
	d.lastCC = int(hdr.Continuity)
	return true
}

// appendPayload appends body to the PES assembly buffer, refusing the
// append (and keeping the current PES) once it would overflow capacity.
func (d *Demuxer) appendPayload(body []byte) {
	if d.pesLen+len(body) > pesBufCap {
		if d.Verbose {
			log.Printf("tsdemux: PES buffer overflow on PID %d, dropping payload", d.PID)
		}
		return
	}
	copy(d.pes[d.pesLen:], body)
	d.pesLen += len(body)
}

// parsePCR decodes a 6-byte adaptation-field PCR into milliseconds:
// a 33-bit 90kHz base and a 9-bit 27MHz extension.
func parsePCR(b []byte) (ms float64, ok bool) {
	if len(b) < 6 {
		return 0, false
	}
	base := (uint64(b[0]) << 25) |
		(uint64(b[1]) << 17) |
		(uint64(b[2]) << 9) |
		(uint64(b[3]) << 1) |
		(uint64(b[4]) >> 7)
	ext := (uint64(b[4]&0x01) << 8) | uint64(b[5])
	return float64(base)/90.0 + float64(ext)/27000.0, true
}
