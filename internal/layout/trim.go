package layout

import (
	"sort"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// decideTrimSpans sweeps every source's [start, stop] interval in ascending
// start order and records every gap where no source is live as a trim span.
// When trimFirstGapOnly is set (the layout JSON's "trim": false case), only
// the leading gap before the first source is trimmed; every later gap is
// left in the output, though the leading trim always happens regardless of
// the flag.
func decideTrimSpans(sources map[domain.SourceID]*domain.AggregatedSourceInfo, trimFirstGapOnly bool) domain.TrimSpans {
	type span struct{ start, stop time.Duration }
	spans := make([]span, 0, len(sources))
	for _, s := range sources {
		spans = append(spans, span{s.StartTimestamp, s.StopTimestamp})
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].stop < spans[j].stop
	})

	trims := make(map[time.Duration]time.Duration)
	var now time.Duration
	for _, s := range spans {
		if trimFirstGapOnly && now != 0 {
			break
		}
		if now < s.start {
			trims[now] = s.start
			now = s.stop
		} else if s.stop > now {
			now = s.stop
		}
	}
	return domain.NewTrimSpans(trims)
}
