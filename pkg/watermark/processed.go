package watermark

import (
	"path"
	"sort"
)

// ProcessedSet is the set of days already staged in the unprocessed bucket.
type ProcessedSet map[DayKey]struct{}

// FromKeys builds the processed set from a bucket listing. A day counts only
// when both its online and offline objects are listed, so a day whose second
// write failed is staged again on the next poll.
func FromKeys(keys []string) ProcessedSet {
	type seen struct{ online, offline bool }
	days := make(map[DayKey]*seen)
	for _, key := range keys {
		day, ok := ParseKey(key)
		if !ok || path.Dir(key)+"/" != day.Prefix() {
			continue
		}
		s := days[day]
		if s == nil {
			s = &seen{}
			days[day] = s
		}
		switch path.Base(key) {
		case OnlineObject:
			s.online = true
		case OfflineObject:
			s.offline = true
		}
	}

	set := make(ProcessedSet, len(days))
	for day, s := range days {
		if s.online && s.offline {
			set[day] = struct{}{}
		}
	}
	return set
}

// Contains reports whether day has been staged.
func (p ProcessedSet) Contains(day DayKey) bool {
	_, ok := p[day]
	return ok
}

// Add marks day as staged.
func (p ProcessedSet) Add(day DayKey) {
	p[day] = struct{}{}
}

// Days returns the staged days in calendar order.
func (p ProcessedSet) Days() []DayKey {
	out := make([]DayKey, 0, len(p))
	for d := range p {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Next returns the earliest day on or after start that is not in processed.
// There is no upper bound: once the data runs out it keeps returning the day
// after the last staged one.
func Next(start DayKey, processed ProcessedSet) DayKey {
	day := start
	for processed.Contains(day) {
		day = day.Next()
	}
	return day
}

// NextWithin is Next bounded by end (inclusive). ok is false when every day
// in [start, end] is already staged.
func NextWithin(start, end DayKey, processed ProcessedSet) (DayKey, bool) {
	day := start
	for !end.Before(day) {
		if !processed.Contains(day) {
			return day, true
		}
		day = day.Next()
	}
	return DayKey{}, false
}
