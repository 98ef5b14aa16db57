package gc

import "github.com/google/pprof/profile"

// ExportProfile renders a GCInfo snapshot as a pprof Profile with two
// sample types, objects and bytes, one sample per pool ("heap", "meta"),
// so a collection epoch can be piped straight into `go tool pprof`. This
// is additive tooling beyond the plain stats-query builder above — the
// same GCInfo fields, in a format external operators already have tools
// for.
func ExportProfile(info *GCInfo) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "objects", Unit: "count"},
			{Type: "bytes", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "gc_epoch", Unit: "epoch"},
		Period:     1,
	}
	if info.StartTime != nil {
		p.TimeNanos = *info.StartTime
	}
	if info.StartTime != nil && info.EndTime != nil {
		p.DurationNanos = *info.EndTime - *info.StartTime
	}

	addSample := func(pool string, usage *MemoryUsage) {
		if usage == nil {
			return
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{int64(usage.ObjectsCount), int64(usage.TotalObjectSize)},
			Label: map[string][]string{"pool": {pool}, "phase": {"after"}},
		})
	}
	addSample("heap", info.HeapAfter)
	addSample("meta", info.MetaAfter)
	return p
}
