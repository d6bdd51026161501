// Package teletext implements the ETS 300 706 packet decoder: it
// interprets the 44-byte Teletext data units handed up by the PES layer,
// maintains the page buffer and national character subset state, and
// reassembles complete subtitle pages for rendering.
package teletext

import (
	"log"
	"time"

	"github.com/snapetech/telxtuner/internal/bitutil"
	"github.com/snapetech/telxtuner/internal/chartab"
	"github.com/snapetech/telxtuner/internal/pes"
)

const (
	transmissionModeParallel = 0
	transmissionModeSerial   = 1

	undef = -1
)

func pageOf(p int) int     { return p & 0xff }
func magazineOf(p int) int { return (p >> 8) & 0xf }

// Decoder tracks everything process_telx_packet needs across calls: the
// target page filter, the in-progress page buffer, the national
// character subset state, and the programme-info/UTC-reference
// bookkeeping that 8/30 packets can override.
type Decoder struct {
	// Page is the magazine<<8 | page target, matching config.page in the
	// original tool; 0 means "first subtitle page seen wins".
	Page int

	ccMap            [256]uint8
	receivingData    bool
	transmissionMode int

	current int // current active G0 subset id
	g0M29   int // undef or last M/29-selected subset id
	g0X28   int // undef or last X/28-selected subset id

	tables *chartab.Tables

	page Page

	programmeInfoProcessed bool

	// SetUTCRefValue, when non-nil, is invoked when an 8/30 packet
	// successfully decodes a UTC reference; the PES clock uses this to
	// re-anchor its PTS/PCR delta (spec.md §4.E).
	SetUTCRefValue func(seconds uint32)

	// OnPage is invoked with a fully assembled page once transmission of
	// the next page header (for the target page) terminates it.
	OnPage func(*Page)

	Verbose bool
}

// NewDecoder returns a Decoder filtering on targetPage (0 meaning "accept
// the first subtitle-flagged page observed").
func NewDecoder(targetPage int) *Decoder {
	return &Decoder{
		Page:             targetPage,
		transmissionMode: transmissionModeSerial,
		g0M29:            undef,
		g0X28:            undef,
		tables:           chartab.NewTables(),
	}
}

func (d *Decoder) telxToUCS2(c byte) uint16 {
	v, ok := bitutil.OddParityStrip(c)
	if !ok {
		if d.Verbose {
			log.Printf("teletext: parity error on byte %#02x", c)
		}
		return 0x20
	}
	r := uint16(v & 0x7f)
	if r >= 0x20 {
		r = uint16(d.tables.G0Latin[r-0x20])
	}
	return r
}

// remapG0Charset installs the national subset c onto the current G0
// table if it differs from the currently active one.
func (d *Decoder) remapG0Charset(c int) {
	if c == d.current {
		return
	}
	lang, ok := d.tables.UseSubset(c)
	if !ok {
		if d.Verbose {
			log.Printf("teletext: G0 Latin National Subset ID %d.%d is not implemented", c>>3, c&0x7)
		}
		return
	}
	if d.Verbose {
		log.Printf("teletext: using G0 Latin National Subset ID %d.%d (%s)", c>>3, c&0x7, lang)
	}
	d.current = c
}

// ProcessPacket decodes one 44-byte Teletext data unit (spec.md §4.E),
// dispatching on its row address exactly as ETS 300 706 §7-9 define.
func (d *Decoder) ProcessPacket(dataUnitID uint8, raw *[44]byte, timestamp uint64) {
	addrHi, _ := bitutil.Unham84(raw[3])
	addrLo, _ := bitutil.Unham84(raw[2])
	address := (addrHi << 4) | addrLo

	m := int(address & 0x7)
	if m == 0 {
		m = 8
	}
	y := int(address>>3) & 0x1f

	data := raw[4:44]

	var designationCode uint8
	if y > 25 {
		designationCode, _ = bitutil.Unham84(data[0])
	}

	switch {
	case y == 0:
		d.processHeader(dataUnitID, m, data, timestamp)
	case m == magazineOf(d.Page) && y >= 1 && y <= 23 && d.receivingData:
		d.processRow(y, data)
	case m == magazineOf(d.Page) && y == 26 && d.receivingData:
		d.processX26(data)
	case m == magazineOf(d.Page) && y == 28 && d.receivingData:
		d.processX28(designationCode, data)
	case m == magazineOf(d.Page) && y == 29:
		d.processM29(designationCode, data)
	case m == 8 && y == 30:
		d.process830(data)
	}
}

func (d *Decoder) processHeader(dataUnitID uint8, m int, data []byte, timestamp uint64) {
	lo, _ := bitutil.Unham84(data[0])
	hi, _ := bitutil.Unham84(data[1])
	i := (hi << 4) | lo

	subFlagNib, _ := bitutil.Unham84(data[5])
	flagSubtitle := (subFlagNib & 0x08) >> 3
	d.ccMap[i] |= flagSubtitle << uint(m-1)

	pageNumber := (m << 8) | int(i)

	if d.Page == 0 && flagSubtitle == 1 && i < 0xff {
		d.Page = pageNumber
		if d.Verbose {
			log.Printf("teletext: no target page specified, using first suitable page %03x", d.Page)
		}
	}

	data7, _ := bitutil.Unham84(data[7])
	charset := ((data7 & 0x08) | (data7 & 0x04) | (data7 & 0x02)) >> 1
	d.transmissionMode = int(data7 & 0x01)

	// Only Private Stream 1 subtitle data units are pursued in parallel
	// mode; a header in a non-subtitle data unit is ignored and neither
	// terminates nor starts a page.
	if d.transmissionMode == transmissionModeParallel && dataUnitID != pes.DataUnitSubtitle {
		return
	}

	if d.receivingData &&
		((d.transmissionMode == transmissionModeSerial && pageOf(pageNumber) != pageOf(d.Page)) ||
			(d.transmissionMode == transmissionModeParallel && pageOf(pageNumber) != pageOf(d.Page) && m == magazineOf(d.Page))) {
		d.receivingData = false
		return
	}

	if pageNumber != d.Page {
		return
	}

	if d.page.Tainted {
		d.page.HideTimestamp = timestamp - 40
		if d.OnPage != nil {
			d.OnPage(&d.page)
		}
	}

	d.page.Reset()
	d.page.ShowTimestamp = timestamp
	d.receivingData = true
	d.g0X28 = undef

	// The header's C12-C14 bits carry only the 3-bit national-option
	// subcode (0..7); shift it into the same 7-bit id space X/28 and
	// M/29 triplets use (Latin G0 designation, subcode in bits 3..5) so
	// it lands on the multiples-of-8 keys chartab.UseSubset expects.
	c := int(charset) << 3
	if d.g0M29 != undef {
		c = d.g0M29
	}
	d.remapG0Charset(c)
}

func (d *Decoder) processRow(y int, data []byte) {
	// ETS 300 706 annex B.2.2: X/26 packets precede X/1-25, so a non-zero
	// cell here was already written by processX26 and must not be
	// clobbered by the underlying G0 character.
	for i := 0; i < 40; i++ {
		if d.page.Text[y][i] == 0 {
			d.page.Text[y][i] = d.telxToUCS2(data[i])
		}
	}
	d.page.Tainted = true
}

func (d *Decoder) processX26(data []byte) {
	row, col := 0, 0
	var triplets [13]uint32
	for i, j := 1, 0; i < 40; i, j = i+3, j+1 {
		raw := uint32(data[i+2])<<16 | uint32(data[i+1])<<8 | uint32(data[i])
		v, ok := bitutil.Unham2418(raw)
		if !ok {
			if d.Verbose {
				log.Print("teletext: unrecoverable X/26 triplet error")
			}
			triplets[j] = 0xffffffff
			continue
		}
		triplets[j] = v
	}

	for _, t := range triplets {
		if t == 0xffffffff {
			continue
		}
		data6 := uint8((t & 0x3f800) >> 11)
		mode := uint8((t & 0x7c0) >> 6)
		addr := uint8(t & 0x3f)
		rowAddressGroup := addr >= 40 && addr <= 63

		if mode == 0x04 && rowAddressGroup {
			row = int(addr) - 40
			if row == 0 {
				row = 24
			}
			col = 0
		}

		if mode >= 0x11 && mode <= 0x1f && rowAddressGroup {
			break
		}

		if mode == 0x0f && !rowAddressGroup {
			col = int(addr)
			if data6 > 31 {
				d.page.Text[row][col] = uint16(chartab.G2Primary(int(data6)))
			}
		}

		if mode >= 0x11 && mode <= 0x1f && !rowAddressGroup {
			col = int(addr)
			switch {
			case data6 >= 65 && data6 <= 90:
				if r, ok := chartab.G2Accent(int(mode)-0x11, int(data6)-65); ok {
					d.page.Text[row][col] = uint16(r)
				}
			case data6 >= 97 && data6 <= 122:
				if r, ok := chartab.G2Accent(int(mode)-0x11, int(data6)-71); ok {
					d.page.Text[row][col] = uint16(r)
				}
			default:
				d.page.Text[row][col] = d.telxToUCS2(data6)
			}
		}
	}
}

func (d *Decoder) processX28(designationCode uint8, data []byte) {
	if designationCode != 0 && designationCode != 4 {
		return
	}
	raw := uint32(data[3])<<16 | uint32(data[2])<<8 | uint32(data[1])
	triplet0, ok := bitutil.Unham2418(raw)
	if !ok {
		if d.Verbose {
			log.Print("teletext: unrecoverable X/28 triplet error")
		}
		return
	}
	if triplet0&0x0f != 0x00 {
		return
	}
	d.g0X28 = int((triplet0 & 0x3f80) >> 7)
	d.remapG0Charset(d.g0X28)
}

func (d *Decoder) processM29(designationCode uint8, data []byte) {
	if designationCode != 0 && designationCode != 4 {
		return
	}
	raw := uint32(data[3])<<16 | uint32(data[2])<<8 | uint32(data[1])
	triplet0, ok := bitutil.Unham2418(raw)
	if !ok {
		if d.Verbose {
			log.Print("teletext: unrecoverable M/29 triplet error")
		}
		return
	}
	if triplet0&0xff != 0x00 {
		return
	}
	d.g0M29 = int((triplet0 & 0x3f80) >> 7)
	if d.g0X28 == undef {
		d.remapG0Charset(d.g0M29)
	}
}

func (d *Decoder) process830(data []byte) {
	if d.programmeInfoProcessed {
		return
	}
	designation, _ := bitutil.Unham84(data[0])
	if designation >= 2 {
		return
	}

	if d.Verbose {
		var label []byte
		for i := 20; i < 40; i++ {
			if c := d.telxToUCS2(data[i]); c >= 0x20 {
				label = append(label, bitutil.UCS2ToUTF8(c)...)
			}
		}
		log.Printf("teletext: Programme Identification Data = %s", label)
	}

	// ETS 300 706 §9.8.1: Modified Julian Day + HH:MM:SS in BCD, each
	// decimal digit incremented by 1 before transmission.
	mjd := 0
	mjd += int(data[10]&0x0f) * 10000
	mjd += int((data[11]&0xf0)>>4) * 1000
	mjd += int(data[11]&0x0f) * 100
	mjd += int((data[12]&0xf0)>>4) * 10
	mjd += int(data[12] & 0x0f)
	mjd -= 11111

	unix := (mjd - 40587) * 86400
	unix += 3600 * (int((data[13]&0xf0)>>4)*10 + int(data[13]&0x0f))
	unix += 60 * (int((data[14]&0xf0)>>4)*10 + int(data[14]&0x0f))
	unix += int((data[15]&0xf0)>>4)*10 + int(data[15]&0x0f)
	unix -= 40271

	t0 := time.Unix(int64(unix), 0).UTC()

	// Silly SVT timezone offset: some broadcasters encode a local time
	// instead of UTC; snap to the nearest whole hour against wall clock.
	now := time.Now().UTC()
	diffHours := int64((t0.Sub(now)).Round(time.Hour) / time.Hour)
	t0 = t0.Add(-time.Duration(diffHours) * time.Hour)

	if d.Verbose {
		log.Printf("teletext: Broadcast Service Data Packet received, resetting UTC reference to %s", t0)
	}

	if d.SetUTCRefValue != nil {
		d.SetUTCRefValue(uint32(t0.Unix()))
	}
	d.programmeInfoProcessed = true
}
