// Package queue maps labels to release buckets and decides which buckets are due.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// Bucket names when a queued label is released back to the inbox.
type Bucket string

const (
	Immediate Bucket = "Immediate"
	Daily     Bucket = "Daily"
	Monthly   Bucket = "Monthly"
)

// Blocked is the reserved label suffix that always releases daily.
const Blocked = "blocked"

// WeekdayBucket returns the bucket for a day of the week.
func WeekdayBucket(d time.Weekday) Bucket { return Bucket(d.String()) }

// IsWeekday reports whether b is one of the seven weekday buckets.
func (b Bucket) IsWeekday() bool {
	_, ok := weekdayIndex(b)
	return ok
}

func weekdayIndex(b Bucket) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if Bucket(d.String()) == b {
			return d, true
		}
	}
	return 0, false
}

// ParseBucket accepts bucket names case-insensitively.
func ParseBucket(raw string) (Bucket, error) {
	raw = strings.TrimSpace(raw)
	for _, b := range []Bucket{Immediate, Daily, Monthly} {
		if strings.EqualFold(raw, string(b)) {
			return b, nil
		}
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(raw, d.String()) {
			return WeekdayBucket(d), nil
		}
	}
	return "", fmt.Errorf("unknown queue bucket %q", raw)
}

// Goal is carried opaquely for the UI's bankruptcy logic.
type Goal string

const (
	InboxZero  Goal = "Inbox Zero"
	BestEffort Goal = "Best Effort"
)

// ParseGoal accepts goal names case-insensitively.
func ParseGoal(raw string) (Goal, error) {
	raw = strings.TrimSpace(raw)
	for _, g := range []Goal{InboxZero, BestEffort} {
		if strings.EqualFold(raw, string(g)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown queue goal %q", raw)
}

// Data is the queue configuration for one label suffix.
type Data struct {
	Queue Bucket `yaml:"queue" json:"queue"`
	Goal  Goal   `yaml:"goal" json:"goal"`
	Index int    `yaml:"index" json:"index"`
}

// Default is applied to labels that have never been configured.
func Default() Data { return Data{Queue: Immediate, Goal: InboxZero, Index: 0} }

// Settings maps lowercase label suffixes to their queue data.
type Settings map[string]Data

// BucketFor returns the configured data for label, the default when unset.
func (s Settings) BucketFor(label string) Data {
	key := strings.ToLower(strings.TrimSpace(label))
	data, ok := s[key]
	if !ok {
		data = Default()
	}
	if key == Blocked {
		data.Queue = Daily
		data.Goal = InboxZero
	}
	return data
}

// Normalize lowercases keys, fills empty fields and pins the blocked queue.
func (s Settings) Normalize() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		if v.Queue == "" {
			v.Queue = Immediate
		}
		if v.Goal == "" {
			v.Goal = InboxZero
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	if b, ok := out[Blocked]; ok {
		b.Queue, b.Goal = Daily, InboxZero
		out[Blocked] = b
	}
	return out
}

// Validate checks every entry carries a known bucket and goal.
func (s Settings) Validate() error {
	for k, v := range s {
		if _, err := ParseBucket(string(v.Queue)); err != nil {
			return fmt.Errorf("queue %q: %w", k, err)
		}
		if _, err := ParseGoal(string(v.Goal)); err != nil {
			return fmt.Errorf("queue %q: %w", k, err)
		}
		if k == Blocked && v.Goal == BestEffort {
			return fmt.Errorf("queue %q cannot be %s", k, BestEffort)
		}
	}
	return nil
}
