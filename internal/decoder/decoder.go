// Package decoder wires the demux, PES, Teletext and render layers into
// a single exclusive-access state value, owned by the ingest loop, with
// no shared mutable state across goroutines (spec.md §5, §9).
package decoder

import (
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/telxtuner/internal/metrics"
	"github.com/snapetech/telxtuner/internal/pes"
	"github.com/snapetech/telxtuner/internal/render"
	"github.com/snapetech/telxtuner/internal/teletext"
	"github.com/snapetech/telxtuner/internal/tsdemux"
)

// State is the single decoder instance for one selected PID/page pair.
// Every method must be called from the same goroutine (the ingest read
// loop); there is no internal locking.
type State struct {
	demux   *tsdemux.Demuxer
	clock   *pes.Clock
	telx    *teletext.Decoder
	metrics *metrics.Collectors

	// Emit is called with a rendered wire line for every displayable
	// subtitle frame (spec.md §6's caller-supplied frame printer).
	Emit func(line string)

	Verbose  bool
	logLimit rate.Sometimes
}

// New builds a decoder state targeting pid/page, anchored to the current
// wall clock as the initial UTC reference value.
func New(pid uint16, page int, m *metrics.Collectors) *State {
	s := &State{
		demux:   tsdemux.NewDemuxer(pid),
		clock:   pes.NewClock(uint32(time.Now().Unix())),
		telx:    teletext.NewDecoder(page),
		metrics: m,
		logLimit: rate.Sometimes{Interval: time.Second},
	}
	s.telx.OnPage = s.onPage
	s.telx.SetUTCRefValue = s.clock.SetUTCRefValue
	return s
}

// FeedTSPacket processes one 188-byte Transport Stream packet: it runs
// the demux, and on a completed PES assembly runs the PES parser and
// hands every Teletext data unit found to the Teletext decoder.
func (s *State) FeedTSPacket(pkt []byte) {
	if s.metrics != nil {
		s.metrics.TSPacketsTotal.Inc()
	}

	pesBuf := s.demux.Feed(pkt)
	if pesBuf == nil {
		return
	}

	units, timestamp, ok := s.clock.ParsePacket(pesBuf, s.demux.PCRMillis)
	if !ok {
		s.logf("decoder: malformed PES packet, skipping")
		return
	}
	if s.metrics != nil {
		s.metrics.ClockDeltaMillis.Set(float64(timestamp))
	}

	for _, u := range units {
		raw := u.Raw
		s.telx.ProcessPacket(u.ID, &raw, uint64(timestamp))
	}
}

func (s *State) onPage(p *teletext.Page) {
	frame, ok := render.Page(p)
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.FramesEmittedTotal.Inc()
	}
	if s.Emit != nil {
		s.Emit(render.FormatLine(frame))
	}
}

func (s *State) logf(format string, args ...any) {
	if !s.Verbose {
		return
	}
	s.logLimit.Do(func() {
		log.Printf(format, args...)
	})
}
