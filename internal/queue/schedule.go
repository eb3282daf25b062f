package queue

import (
	"sort"
	"time"
)

// sortBase scales the index so bucket granularity dominates the ordering.
const sortBase int64 = 10000

// DueBuckets returns the buckets to release for a run at now, given the previous
// successful run. Calendar math happens in loc (time.Local when nil).
func DueBuckets(lastRun *time.Time, now time.Time, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	if lastRun == nil {
		return []Bucket{WeekdayBucket(now.Weekday()), Daily}
	}
	last := lastRun.In(loc)
	diffDays := now.Sub(last).Hours() / 24

	var due []Bucket
	switch {
	case diffDays >= 30:
		return append(allWeekdays(), Daily, Monthly)
	case diffDays >= 7:
		// The month check below still applies: a gap of 7 to 29 days can
		// cross a month boundary, and Monthly must not be skipped.
		due = append(allWeekdays(), Daily)
	case diffDays < 1 && last.Weekday() == now.Weekday():
		return []Bucket{}
	default:
		end := now.Weekday()
		day := (last.Weekday() + 1) % 7
		for i := 0; i < 7; i++ {
			due = append(due, WeekdayBucket(day))
			if day == end {
				break
			}
			day = (day + 1) % 7
		}
		due = append(due, Daily)
	}
	// a calendar month boundary releases Monthly even inside the weekly window
	if monthIndex(last) < monthIndex(now) {
		due = append(due, Monthly)
	}
	return due
}

func allWeekdays() []Bucket {
	out := make([]Bucket, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out = append(out, WeekdayBucket(d))
	}
	return out
}

func monthIndex(t time.Time) int { return t.Year()*12 + int(t.Month()) }

// SortKey is the numeric dequeue position of label.
func (s Settings) SortKey(label string) int64 {
	data := s.BucketFor(label)
	var mult int64
	switch {
	case data.Queue == Daily:
		mult = sortBase
	case data.Queue.IsWeekday():
		mult = sortBase * sortBase
	case data.Queue == Monthly:
		mult = sortBase * sortBase * sortBase
	default:
		mult = 1
	}
	return int64(data.Index) * mult
}

// Compare orders two labels by sort key, then by name.
func (s Settings) Compare(a, b string) int {
	ka, kb := s.SortKey(a), s.SortKey(b)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// DequeueOrder returns a sorted copy of labels.
func DequeueOrder(labels []string, s Settings) []string {
	out := append([]string(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool { return s.Compare(out[i], out[j]) < 0 })
	return out
}

// LabelsInBucket selects the labels released with bucket, in dequeue order.
// Labels configured as Immediate ride along with Daily so nothing stays parked
// after a queue is reconfigured.
func LabelsInBucket(labels []string, s Settings, bucket Bucket) []string {
	var out []string
	for _, l := range labels {
		q := s.BucketFor(l).Queue
		if q == bucket || (bucket == Daily && q == Immediate) {
			out = append(out, l)
		}
	}
	return DequeueOrder(out, s)
}
