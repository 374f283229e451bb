// Package align reconciles two independent timelines over the same
// audio: speaker turns from diarization and timestamped text spans from
// transcription. The output is a single attributed transcript.
//
// Attribution is by temporal overlap. A span belongs to the turn it
// overlaps most; spans overlapping nothing fall back to the nearest turn
// in time, so short utterances between turns are not dropped. Merge is
// pure: no I/O, no collaborators, deterministic for a given input.
package align

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kengbailey/transcription-diarization-service/pkg/identify"
	"github.com/kengbailey/transcription-diarization-service/pkg/transcribe"
)

// Segment is one attributed piece of the final transcript. Label is the
// diarization label; it is empty when no turns were available to
// attribute against. Timing is transcript-derived: the bounds of the
// spans that produced the segment, not the turn's bounds.
type Segment struct {
	Label        string          `json:"speaker"`
	IdentifiedAs *identify.Match `json:"identified_as,omitempty"`
	Start        float64         `json:"start"`
	End          float64         `json:"end"`
	Text         string          `json:"text"`
}

// Merge attributes transcript spans to speaker turns.
//
// Every span is attributed to exactly one turn (or left unattributed when
// there are no turns), consecutive spans on the same turn are joined with
// a single space, and the result is sorted by start time. Turns that
// attract no spans produce no segment. Invalid spans (end not after
// start, or blank text) fail the whole merge with an error wrapping
// [transcribe.ErrInvalidSpan].
func Merge(turns []identify.IdentifiedTurn, spans []transcribe.Span) ([]Segment, error) {
	for i, s := range spans {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("align: span %d: %w", i, err)
		}
	}
	if len(spans) == 0 {
		return nil, nil
	}

	// Defensive copies: both inputs may arrive unsorted.
	sortedSpans := make([]transcribe.Span, len(spans))
	copy(sortedSpans, spans)
	sort.SliceStable(sortedSpans, func(i, j int) bool {
		return sortedSpans[i].Start < sortedSpans[j].Start
	})

	sortedTurns := make([]identify.IdentifiedTurn, len(turns))
	copy(sortedTurns, turns)
	sort.SliceStable(sortedTurns, func(i, j int) bool {
		return sortedTurns[i].Start < sortedTurns[j].Start
	})

	var out []Segment
	cur := -2 // turn index of the open segment; -1 means unattributed
	for _, span := range sortedSpans {
		ti := attribute(span, sortedTurns)
		if ti == cur && len(out) > 0 {
			last := &out[len(out)-1]
			last.Text += " " + strings.TrimSpace(span.Text)
			if span.End > last.End {
				last.End = span.End
			}
			continue
		}

		seg := Segment{
			Start: span.Start,
			End:   span.End,
			Text:  strings.TrimSpace(span.Text),
		}
		if ti >= 0 {
			seg.Label = sortedTurns[ti].Label
			seg.IdentifiedAs = sortedTurns[ti].IdentifiedAs
		}
		out = append(out, seg)
		cur = ti
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// attribute picks the turn index for one span: maximal overlap, overlap
// ties going to the earlier turn, zero overlap falling back to the
// nearest turn by gap. Returns -1 when there are no turns.
func attribute(span transcribe.Span, turns []identify.IdentifiedTurn) int {
	if len(turns) == 0 {
		return -1
	}

	best := -1
	var bestOverlap float64
	for i, t := range turns {
		ov := overlap(span.Start, span.End, t.Start, t.End)
		// Strict > keeps the earlier turn on ties; turns are sorted by
		// start.
		if ov > bestOverlap {
			bestOverlap = ov
			best = i
		}
	}
	if best >= 0 {
		return best
	}

	// No overlap anywhere: nearest turn by gap.
	nearest := 0
	bestGap := gap(span.Start, span.End, turns[0].Start, turns[0].End)
	for i := 1; i < len(turns); i++ {
		if g := gap(span.Start, span.End, turns[i].Start, turns[i].End); g < bestGap {
			bestGap = g
			nearest = i
		}
	}
	return nearest
}

// overlap returns the length of the intersection of [aStart, aEnd) and
// [bStart, bEnd), or 0 when they are disjoint.
func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	lo := max(aStart, bStart)
	hi := min(aEnd, bEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// gap returns the distance between two disjoint intervals; 0 if they
// touch or overlap.
func gap(aStart, aEnd, bStart, bEnd float64) float64 {
	switch {
	case bStart > aEnd:
		return bStart - aEnd
	case aStart > bEnd:
		return aStart - bEnd
	default:
		return 0
	}
}
