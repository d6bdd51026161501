package tsdemux

import "testing"

func tsPacket(pid uint16, pusi bool, cc uint8, payload []byte, discontinuity, withPCR bool, pcrBytes [6]byte) []byte {
	pkt := make([]byte, packetSize)
	pkt[0] = syncByte
	pkt[1] = byte(pid >> 8 & 0x1f)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	afc := byte(0x01) // payload only
	off := 4
	if discontinuity || withPCR {
		afc = 0x03 // adaptation + payload
		alen := 1
		if withPCR {
			alen += 6
		}
		pkt[4] = byte(alen)
		flags := byte(0)
		if discontinuity {
			flags |= 0x80
		}
		if withPCR {
			flags |= 0x10
		}
		pkt[5] = flags
		if withPCR {
			copy(pkt[6:12], pcrBytes[:])
		}
		off = 4 + 1 + alen
	}
	pkt[3] = afc<<4 | (cc & 0x0f)
	copy(pkt[off:], payload)
	return pkt
}

func TestFeedIgnoresTransportError(t *testing.T) {
	d := NewDemuxer(100)
	pkt := tsPacket(100, true, 0, []byte{1, 2, 3}, false, false, [6]byte{})
	pkt[1] |= 0x80 // transport error
	if got := d.Feed(pkt); got != nil {
		t.Fatalf("Feed with transport error should return nil, got %v", got)
	}
}

func TestFeedSkipsNullAndOtherPID(t *testing.T) {
	d := NewDemuxer(100)
	pkt := tsPacket(0x1fff, true, 0, []byte{1, 2, 3}, false, false, [6]byte{})
	if got := d.Feed(pkt); got != nil {
		t.Fatalf("Feed on null PID should return nil, got %v", got)
	}
	pkt = tsPacket(200, true, 0, []byte{1, 2, 3}, false, false, [6]byte{})
	if got := d.Feed(pkt); got != nil {
		t.Fatalf("Feed on other PID should return nil, got %v", got)
	}
}

func TestFeedAssemblesAndFlushesOnNextStart(t *testing.T) {
	d := NewDemuxer(100)
	body1 := make([]byte, payloadSize)
	for i := range body1 {
		body1[i] = byte(i)
	}
	pkt1 := tsPacket(100, true, 0, body1, false, false, [6]byte{})
	if got := d.Feed(pkt1); got != nil {
		t.Fatalf("first payload-start packet should not flush, got %v", got)
	}

	body2 := make([]byte, payloadSize)
	for i := range body2 {
		body2[i] = byte(0xff - i)
	}
	pkt2 := tsPacket(100, true, 1, body2, false, false, [6]byte{})
	flushed := d.Feed(pkt2)
	if len(flushed) != payloadSize {
		t.Fatalf("expected flush of %d bytes, got %d", payloadSize, len(flushed))
	}
	for i := range body1 {
		if flushed[i] != body1[i] {
			t.Fatalf("flushed byte %d = %x, want %x", i, flushed[i], body1[i])
		}
	}
}

func TestFeedContinuityBreakDropsAssembly(t *testing.T) {
	d := NewDemuxer(100)
	body1 := make([]byte, payloadSize)
	pkt1 := tsPacket(100, true, 0, body1, false, false, [6]byte{})
	d.Feed(pkt1)

	// CC jumps from 0 to 5 (not +1), no discontinuity flag.
	body2 := make([]byte, payloadSize)
	pkt2 := tsPacket(100, false, 5, body2, false, false, [6]byte{})
	if got := d.Feed(pkt2); got != nil {
		t.Fatalf("mid-stream packet should never flush, got %v", got)
	}

	// Next payload-unit-start: the dropped assembly must not be flushed.
	body3 := make([]byte, payloadSize)
	pkt3 := tsPacket(100, true, 6, body3, false, false, [6]byte{})
	if got := d.Feed(pkt3); got != nil {
		t.Fatalf("flush after a continuity break should be nil (assembly was dropped), got %v", got)
	}
}

func TestFeedDiscontinuityFlagSuppressesBreak(t *testing.T) {
	d := NewDemuxer(100)
	body1 := make([]byte, payloadSize)
	pkt1 := tsPacket(100, true, 0, body1, false, false, [6]byte{})
	d.Feed(pkt1)

	// CC jumps but discontinuity indicator is set: should not reset.
	body2 := make([]byte, payloadSize)
	pkt2 := tsPacket(100, false, 9, body2, true, false, [6]byte{})
	d.Feed(pkt2)

	body3 := make([]byte, payloadSize)
	pkt3 := tsPacket(100, true, 10, body3, false, false, [6]byte{})
	flushed := d.Feed(pkt3)
	// pkt2's 2-byte adaptation field (length + flags) is stripped from its payload.
	want := payloadSize + (payloadSize - 2)
	if len(flushed) != want {
		t.Fatalf("expected assembled buffer of %d bytes after discontinuity-flagged jump, got %d", want, len(flushed))
	}
}

func TestParsePCR(t *testing.T) {
	// base=1000 (90kHz ticks), ext=0 -> 1000/90 ms
	var b [6]byte
	base := uint64(1000)
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte((base&1)<<7) | 0x7e // reserved bits set, ext high bit 0
	b[5] = 0
	ms, ok := parsePCR(b[:])
	if !ok {
		t.Fatal("parsePCR should succeed on 6 bytes")
	}
	want := float64(base) / 90.0
	if ms < want-0.01 || ms > want+0.01 {
		t.Fatalf("parsePCR = %v, want ~%v", ms, want)
	}
}

func TestFeedUpdatesPCR(t *testing.T) {
	d := NewDemuxer(100)
	var pcrBytes [6]byte
	base := uint64(2700000) // 2700000/90 = 30000ms
	pcrBytes[0] = byte(base >> 25)
	pcrBytes[1] = byte(base >> 17)
	pcrBytes[2] = byte(base >> 9)
	pcrBytes[3] = byte(base >> 1)
	pcrBytes[4] = byte(base << 7)
	pcrBytes[5] = 0
	pkt := tsPacket(100, true, 0, make([]byte, payloadSize-7), false, true, pcrBytes)
	d.Feed(pkt)
	if d.PCRMillis < 29999 || d.PCRMillis > 30001 {
		t.Fatalf("PCRMillis = %v, want ~30000", d.PCRMillis)
	}
}

func TestFeedDropsPayloadBeforeFirstStart(t *testing.T) {
	d := NewDemuxer(100)
	body1 := make([]byte, payloadSize)
	pkt1 := tsPacket(100, false, 0, body1, false, false, [6]byte{})
	if got := d.Feed(pkt1); got != nil {
		t.Fatalf("mid-stream packet before any start should never flush, got %v", got)
	}

	body2 := make([]byte, payloadSize)
	pkt2 := tsPacket(100, true, 1, body2, false, false, [6]byte{})
	if got := d.Feed(pkt2); got != nil {
		t.Fatalf("first start packet should not flush, got %v", got)
	}

	body3 := make([]byte, payloadSize)
	pkt3 := tsPacket(100, true, 2, body3, false, false, [6]byte{})
	flushed := d.Feed(pkt3)
	if len(flushed) != payloadSize {
		t.Fatalf("expected flush of only the packet after the first start (%d bytes), got %d", payloadSize, len(flushed))
	}
	for i := range body2 {
		if flushed[i] != body2[i] {
			t.Fatalf("flushed byte %d = %x, want %x (pre-start payload must not be included)", i, flushed[i], body2[i])
		}
	}
}

func TestFeedRejectsBadSync(t *testing.T) {
	d := NewDemuxer(100)
	pkt := tsPacket(100, true, 0, []byte{1}, false, false, [6]byte{})
	pkt[0] = 0x00
	if got := d.Feed(pkt); got != nil {
		t.Fatalf("bad sync byte should return nil, got %v", got)
	}
}
