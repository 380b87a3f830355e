package perf

import (
	"sort"

	"github.com/google/pprof/profile"
)

// Sample is one event's counter value over a sampling interval,
// ready to be folded into a pprof profile.
type Sample struct {
	Event Event
	Value uint64
}

// Snapshot builds a google/pprof profile.Profile out of samples,
// replacing teacher's raw hexdump (prof.go's dumpring-style printf of
// counter words) with a format any pprof-speaking tool can consume
// directly. Every event gets its own single-frame pseudo-stack, named
// after the event, so `pprof -top` groups samples by event name.
func Snapshot(samples []Sample) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "pmc", Unit: "count"},
		Period:     1,
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Event < sorted[j].Event })

	for i, s := range sorted {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: s.Event.String(), SystemName: s.Event.String()}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(s.Value)},
		})
	}
	return p
}
