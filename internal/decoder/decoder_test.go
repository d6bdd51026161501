package decoder

import (
	"math/bits"
	"testing"

	"github.com/snapetech/telxtuner/internal/teletext"
)

func hamEncode84(d uint8) uint8 {
	d1 := d & 1
	d2 := (d >> 1) & 1
	d3 := (d >> 2) & 1
	d4 := (d >> 3) & 1
	p1 := d1 ^ d2 ^ d4
	p2 := d1 ^ d3 ^ d4
	p3 := d2 ^ d3 ^ d4
	partial := p1 | (p2 << 1) | (d1 << 2) | (p3 << 3) | (d2 << 4) | (d3 << 5) | (d4 << 6)
	p4 := uint8(bits.OnesCount8(partial) & 1)
	return partial | (p4 << 7)
}

func reverseBitsByte(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		if b&(1<<i) != 0 {
			r |= 1 << (7 - i)
		}
	}
	return r
}

func tsPacket(pid uint16, pusi bool, cc uint8, payload []byte) []byte {
	pkt := make([]byte, 188)
	pkt[0] = 0x47
	pkt[1] = byte(pid >> 8 & 0x1f)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | (cc & 0x0f)
	copy(pkt[4:], payload)
	return pkt
}

// buildPESWithHeaderUnit constructs a minimal PES buffer (no PTS, relying
// on PCR) carrying one 44-byte Teletext data unit encoding a page header
// for magazine 1, page 0x00, subtitle-flagged, serial mode.
func buildPESWithHeaderUnit() []byte {
	var unit [44]byte
	addr := uint8(1) // magazine 1, y=0
	unit[2] = hamEncode84(addr & 0x0f)
	unit[3] = hamEncode84((addr >> 4) & 0x0f)
	unit[4] = hamEncode84(0)    // page lo
	unit[5] = hamEncode84(0)    // page hi
	unit[9] = hamEncode84(0x08) // subtitle flag
	unit[11] = hamEncode84(1)   // serial transmission mode

	var reversed [44]byte
	for i, b := range unit {
		reversed[i] = reverseBitsByte(b)
	}

	hdr := []byte{0x80, 0x00, 0x00} // no PTS
	payload := append([]byte{0x10, 0x03, 44}, reversed[:]...)
	body := append(hdr, payload...)
	pesLen := len(body) + 3
	buf := []byte{0x00, 0x00, 0x01, 0xbd, byte(pesLen >> 8), byte(pesLen)}
	return append(buf, body...)
}

// feedAsPackets splits pesBuf across as many 184-byte TS payloads as
// needed and feeds them through s, then feeds one more payload-start
// packet to force the flush.
func feedAsPackets(s *State, pid uint16, pesBuf []byte) {
	cc := uint8(0)
	for off := 0; off < len(pesBuf); off += 184 {
		end := off + 184
		chunk := make([]byte, 184)
		if end > len(pesBuf) {
			end = len(pesBuf)
		}
		copy(chunk, pesBuf[off:end])
		s.FeedTSPacket(tsPacket(pid, off == 0, cc, chunk))
		cc++
	}
	s.FeedTSPacket(tsPacket(pid, true, cc, make([]byte, 184)))
}

func TestStateFeedTSPacketDrivesHeaderDecode(t *testing.T) {
	s := New(100, 0x100, nil)
	feedAsPackets(s, 100, buildPESWithHeaderUnit())
	// The single header packet never taints the page, so nothing renders;
	// this exercises the full demux -> PES -> Teletext pipeline without
	// panicking, which is the regression this test guards against.
}

func TestStateEmitsRenderedFrameOnTaintedPage(t *testing.T) {
	var emitted string
	s := New(100, 0x100, nil)
	s.Emit = func(line string) { emitted = line }

	var p teletext.Page
	p.Text[1][0] = 0x0b
	p.Text[1][1] = 'X'
	p.Tainted = true

	s.onPage(&p)

	if emitted == "" {
		t.Fatal("expected a rendered frame to be emitted")
	}
}

func TestStateSkipsRenderForUntaintedPage(t *testing.T) {
	var emitted string
	s := New(100, 0x100, nil)
	s.Emit = func(line string) { emitted = line }

	var p teletext.Page
	s.onPage(&p)

	if emitted != "" {
		t.Fatal("a page with no box-start marker should not emit")
	}
}
