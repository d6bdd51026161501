// Package chartab holds the Teletext character tables: the G0 Latin base
// set (ETS 300 706 table 32, English default), the national-subset
// overrides that patch 13 of its positions (table 36), the G2 supplementary
// set, and the G2 diacritical-mark table used by X/26 overlay triplets
// (table 27 / annex B).
package chartab

// NumSubsets is the count of G0 Latin national subsets this table carries.
const NumSubsets = 8

const (
	SubsetEnglish = iota
	SubsetGerman
	SubsetSwedishFinnishHungarian
	SubsetItalian
	SubsetFrench
	SubsetSpanishPortuguese
	SubsetCzechSlovak
	SubsetPolish
)

// subsetPositions lists the 13 G0 code points (relative to 0x20) that every
// national subset is free to override; all other positions are shared with
// the English default.
var subsetPositions = [13]int{
	0x23 - 0x20, 0x24 - 0x20, 0x40 - 0x20,
	0x5b - 0x20, 0x5c - 0x20, 0x5d - 0x20, 0x5e - 0x20, 0x5f - 0x20,
	0x60 - 0x20,
	0x7b - 0x20, 0x7c - 0x20, 0x7d - 0x20, 0x7e - 0x20,
}

type subset struct {
	language   string
	characters [13]rune
}

// g0LatinNationalSubsets holds the 13 replacement characters per subset, in
// the same order as subsetPositions.
var g0LatinNationalSubsets = [NumSubsets]subset{
	SubsetEnglish:                 {"English", [13]rune{0xa3, '$', '@', 0x2190, 0xbd, 0x2192, 0x2191, '#', '-', 0xbc, 0x2016, 0xbe, 0xf7}},
	SubsetGerman:                  {"German", [13]rune{'#', '$', 0xa7, 0xc4, 0xd6, 0xdc, '^', '_', 0xb0, 0xe4, 0xf6, 0xfc, 0xdf}},
	SubsetSwedishFinnishHungarian: {"Swedish/Finnish/Hungarian", [13]rune{'#', 0xa4, 0xc9, 0xc4, 0xd6, 0xc5, 0xdc, '_', 0xe9, 0xe4, 0xf6, 0xe5, 0xfc}},
	SubsetItalian:                 {"Italian", [13]rune{0xa3, '$', 0xe9, 0xb0, 0xe7, 0xbb, '^', '#', 0xf9, 0xe0, 0xf2, 0xe8, 0xec}},
	SubsetFrench:                  {"French", [13]rune{0xe9, 0xef, 0xe0, 0xeb, 0xea, 0xf9, 0xee, '#', 0xe8, 0xe2, 0xf4, 0xfb, 0xe7}},
	SubsetSpanishPortuguese:       {"Spanish/Portuguese", [13]rune{0xe7, '$', 0xa1, 0xe1, 0xe9, 0xed, 0xf3, 0xfa, 0xbf, 0xfc, 0xf1, 0xe8, 0xe0}},
	SubsetCzechSlovak:             {"Czech/Slovak", [13]rune{'#', 0x16f, 0x10d, 0x165, 0x17e, 0xfd, 0xed, 0x159, 0xe9, 0xe1, 0x11b, 0xfa, 0x161}},
	SubsetPolish:                  {"Polish", [13]rune{'#', 0x144, 0x105, 0x15b, 0x142, 0x107, 0xf3, 0x119, 0x17c, 0x17a, 0x142, 0x137, 0x17c}},
}

// g0LatinNationalSubsetsMap maps a 6-bit charset id (national-option
// subcode in bits 5..3, as X/28 and M/29 triplets carry it and as the
// decoder places a page header's C12..C14 bits; bits 2..0 are zero for every
// defined entry) to an index into g0LatinNationalSubsets, or to
// unimplemented when a broadcaster uses an id this table has no subset for.
var g0LatinNationalSubsetsMap = [64]int{
	0:  SubsetEnglish,
	8:  SubsetGerman,
	16: SubsetSwedishFinnishHungarian,
	24: SubsetItalian,
	32: SubsetFrench,
	40: SubsetSpanishPortuguese,
	48: SubsetCzechSlovak,
	56: SubsetPolish,
}

const unimplemented = -1

var definedSubsetIDs = map[int]bool{0: true, 8: true, 16: true, 24: true, 32: true, 40: true, 48: true, 56: true}

func init() {
	for c := 0; c < 64; c++ {
		if !definedSubsetIDs[c] {
			g0LatinNationalSubsetsMap[c] = unimplemented
		}
	}
}

// g0LatinFactory is the immutable English-default G0 Latin base table,
// 96 entries covering 0x20..0x7F. The working copy (Tables.G0Latin) starts
// as a copy of this and gets 13 positions overwritten on a subset switch.
var g0LatinFactory [96]rune

func init() {
	for i := range g0LatinFactory {
		g0LatinFactory[i] = rune(0x20 + i)
	}
	for i, pos := range subsetPositions {
		g0LatinFactory[pos] = g0LatinNationalSubsets[SubsetEnglish].characters[i]
	}
}

// g2Primary is the G2 supplementary set used for accent-less extended
// glyphs placed by X/26 triplets with mode 0x0F (ETS 300 706 table 27).
var g2Primary [96]rune

func init() {
	for i := range g2Primary {
		g2Primary[i] = rune(0x20 + i)
	}
	// The positions actually reachable from X/26 (box drawing, currency,
	// and accented-letter placeholders) carry their ETS 300 706 glyphs;
	// everything unlisted falls back to its ASCII code point. Keys are G2
	// code points; keys outside 0x20..0x7F are skipped.
	overrides := map[int]rune{
		0x00: ' ', 0x04: 0xa4, 0x26: '#', 0x28: 0xa4,
		0x40: 0x2500, 0x49: 0x3a9, 0x50: 0xc0, 0x51: 0xc2, 0x54: 0xc8,
		0x55: 0xca, 0x56: 0xcb, 0x5a: 0xce, 0x5c: 0xd4, 0x5f: 0xd9,
		0x60: 0xe0, 0x61: 0xe2, 0x64: 0xe8, 0x65: 0xea, 0x66: 0xeb,
		0x6a: 0xee, 0x6c: 0xf4, 0x6f: 0xf9, 0x7b: 0xfb,
	}
	for code, ch := range overrides {
		if code < 0x20 || code >= 0x20+len(g2Primary) {
			continue
		}
		g2Primary[code-0x20] = ch
	}
}

// g2Accents holds the 15 diacritic classes used by X/26 overlay triplets
// with mode 0x11..0x1F: each class carries 52 letter slots (A..Z then
// a..z, as annex B.2 packs them). Index by [mode-0x11][offset], offset
// computed by the caller as data-65 for A..Z or data-71 for a..z.
var g2Accents [15][52]rune

// Diacritic marks as combining-character code points (Unicode block
// U+0300..U+036F), used only as map keys here; they never reach the
// rendered output, which always emits a precomposed letter.
const (
	markGrave       = 0x0300
	markAcute       = 0x0301
	markCircumflex  = 0x0302
	markTilde       = 0x0303
	markMacron      = 0x0304
	markBreve       = 0x0306
	markDotAbove    = 0x0307
	markDiaeresis   = 0x0308
	markRingAbove   = 0x030a
	markCedilla     = 0x0327
	markDoubleAcute = 0x030b
	markOgonek      = 0x0328
	markCommaBelow  = 0x0326
)

var accentMarks = [15]rune{
	markGrave, markAcute, markCircumflex, markTilde, markMacron,
	markBreve, markDotAbove, markDiaeresis, 0, markRingAbove,
	markCedilla, 0, markDoubleAcute, markOgonek, markCommaBelow,
}

// composedLatin holds the small set of precomposed Latin-1/Latin Extended-A
// characters this table knows how to produce for a base letter + mark pair.
// A letter with no entry under its mark is stored as the bare letter; only
// the reserved classes (mark 0) are reported by G2Accent as not composed.
var composedLatin = map[rune]map[rune]rune{
	markAcute: {
		'A': 0xc1, 'E': 0xc9, 'I': 0xcd, 'O': 0xd3, 'U': 0xda, 'Y': 0xdd,
		'a': 0xe1, 'e': 0xe9, 'i': 0xed, 'o': 0xf3, 'u': 0xfa, 'y': 0xfd,
		'C': 0x106, 'c': 0x107, 'N': 0x143, 'n': 0x144, 'S': 0x15a, 's': 0x15b,
		'Z': 0x179, 'z': 0x17a, 'L': 0x139, 'l': 0x13a, 'R': 0x154, 'r': 0x155,
	},
	markGrave: {
		'A': 0xc0, 'E': 0xc8, 'I': 0xcc, 'O': 0xd2, 'U': 0xd9,
		'a': 0xe0, 'e': 0xe8, 'i': 0xec, 'o': 0xf2, 'u': 0xf9,
	},
	markCircumflex: {
		'A': 0xc2, 'E': 0xca, 'I': 0xce, 'O': 0xd4, 'U': 0xdb,
		'a': 0xe2, 'e': 0xea, 'i': 0xee, 'o': 0xf4, 'u': 0xfb,
	},
	markTilde: {
		'A': 0xc3, 'O': 0xd5, 'N': 0xd1,
		'a': 0xe3, 'o': 0xf5, 'n': 0xf1,
	},
	markDiaeresis: {
		'A': 0xc4, 'E': 0xcb, 'I': 0xcf, 'O': 0xd6, 'U': 0xdc,
		'a': 0xe4, 'e': 0xeb, 'i': 0xef, 'o': 0xf6, 'u': 0xfc,
	},
	markRingAbove: {'A': 0xc5, 'a': 0xe5, 'U': 0x16e, 'u': 0x16f},
	markCedilla:   {'C': 0xc7, 'c': 0xe7, 'S': 0x15e, 's': 0x15f},
	markBreve:     {'A': 0x102, 'a': 0x103, 'G': 0x11e, 'g': 0x11f},
	markDotAbove:  {'C': 0x10a, 'c': 0x10b, 'Z': 0x17b, 'z': 0x17c, 'E': 0x116, 'e': 0x117},
	markOgonek:    {'A': 0x104, 'a': 0x105, 'E': 0x118, 'e': 0x119},
	markDoubleAcute: {'O': 0x150, 'o': 0x151, 'U': 0x170, 'u': 0x171},
	markMacron: {
		'A': 0x100, 'a': 0x101, 'E': 0x112, 'e': 0x113, 'I': 0x12a, 'i': 0x12b,
		'O': 0x14c, 'o': 0x14d, 'U': 0x16a, 'u': 0x16b,
	},
	markCommaBelow: {'S': 0x218, 's': 0x219, 'T': 0x21a, 't': 0x21b},
}

func init() {
	for class, mark := range accentMarks {
		if mark == 0 {
			continue
		}
		letters := composedLatin[mark]
		for i := 0; i < 26; i++ {
			upper := rune('A' + i)
			if composed, ok := letters[upper]; ok {
				g2Accents[class][i] = composed
			} else {
				g2Accents[class][i] = upper
			}
		}
		for i := 0; i < 26; i++ {
			lower := rune('a' + i)
			if composed, ok := letters[lower]; ok {
				g2Accents[class][26+i] = composed
			} else {
				g2Accents[class][26+i] = lower
			}
		}
	}
}

// Tables is the working, mutable character-table state: a page-decoding
// session patches G0Latin's 13 swappable positions when a national subset
// changes, and restores it from the factory copy on request.
type Tables struct {
	G0Latin [96]rune
}

// NewTables returns Tables initialised to the English default, matching
// the factory copy.
func NewTables() *Tables {
	t := &Tables{}
	t.G0Latin = g0LatinFactory
	return t
}

// UseSubset patches the 13 swappable G0 Latin positions for the national
// subset identified by the unham'd charset nibble c (0..63). Returns false
// if c names a subset this table does not carry, in which case G0Latin is
// left unchanged (ETS 300 706 best-effort: an unknown id degrades to
// whatever was already installed, not to English).
func (t *Tables) UseSubset(c int) (language string, ok bool) {
	if c < 0 || c >= 64 {
		return "", false
	}
	idx := g0LatinNationalSubsetsMap[c]
	if idx == unimplemented {
		return "", false
	}
	s := g0LatinNationalSubsets[idx]
	for i, pos := range subsetPositions {
		t.G0Latin[pos] = s.characters[i]
	}
	return s.language, true
}

// G2Primary returns the G2 supplementary glyph for a byte in [0x20, 0x7F),
// as placed by an X/26 mode-0x0F triplet.
func G2Primary(code int) rune {
	if code < 0x20 || code >= 0x20+len(g2Primary) {
		return ' '
	}
	return g2Primary[code-0x20]
}

// G2Accent returns the composed accented letter for diacritic class
// mode-0x11 (0..14) and letter offset (0..51, A..Z then a..z), as placed by
// an X/26 mode-0x11..0x1F triplet. ok is false when the class is reserved
// or the offset is out of range; the caller should fall back to
// telx_to_ucs2 on the raw byte.
func G2Accent(class, offset int) (rune, bool) {
	if class < 0 || class >= 15 || offset < 0 || offset >= 52 {
		return 0, false
	}
	if accentMarks[class] == 0 {
		return 0, false
	}
	return g2Accents[class][offset], true
}
