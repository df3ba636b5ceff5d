// Package watermark derives the next calendar day to stage from the day
// prefixes already present in the unprocessed bucket.
//
// Nothing is persisted: the processed set is rebuilt from a bucket listing
// on every poll, so the tracker is stateless and survives restarts.
package watermark

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Partition leaf object names. A day is staged when both exist under its prefix.
const (
	OnlineObject  = "online.csv"
	OfflineObject = "offline.csv"
)

// DayKey identifies one calendar day partition.
type DayKey struct {
	Year  int
	Month int
	Day   int
}

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) DayKey {
	y, m, d := t.Date()
	return DayKey{Year: y, Month: int(m), Day: d}
}

// Time returns midnight UTC of the day.
func (k DayKey) Time() time.Time {
	return time.Date(k.Year, time.Month(k.Month), k.Day, 0, 0, 0, 0, time.UTC)
}

// Prefix renders the object-key prefix "YYYY/MM/DD/".
func (k DayKey) Prefix() string {
	return fmt.Sprintf("%04d/%02d/%02d/", k.Year, k.Month, k.Day)
}

// OnlineKey is the object key of the day's online partition.
func (k DayKey) OnlineKey() string { return k.Prefix() + OnlineObject }

// OfflineKey is the object key of the day's offline partition.
func (k DayKey) OfflineKey() string { return k.Prefix() + OfflineObject }

// String renders the day as "YYYY/MM/DD".
func (k DayKey) String() string {
	return strings.TrimSuffix(k.Prefix(), "/")
}

// Next returns the following calendar day.
func (k DayKey) Next() DayKey {
	return DayOf(k.Time().AddDate(0, 0, 1))
}

// Compare returns -1, 0, or +1 ordering k against o by calendar date.
func (k DayKey) Compare(o DayKey) int {
	switch {
	case k.Year != o.Year:
		return cmpInt(k.Year, o.Year)
	case k.Month != o.Month:
		return cmpInt(k.Month, o.Month)
	default:
		return cmpInt(k.Day, o.Day)
	}
}

// Before reports whether k is strictly earlier than o.
func (k DayKey) Before(o DayKey) bool {
	return k.Compare(o) < 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseKey extracts the day from an object key of the form
// "YYYY/MM/DD/<leaf>". Keys that do not start with a valid date are rejected.
func ParseKey(key string) (DayKey, bool) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) < 4 {
		return DayKey{}, false
	}
	y, errY := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	d, errD := strconv.Atoi(parts[2])
	if errY != nil || errM != nil || errD != nil {
		return DayKey{}, false
	}
	k := DayKey{Year: y, Month: m, Day: d}
	// Reject 2024/02/31 and friends, which time.Date would normalise.
	if DayOf(k.Time()) != k {
		return DayKey{}, false
	}
	return k, true
}
