package queue

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func equalBuckets(a, b []Bucket) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDueBuckets(t *testing.T) {
	wed := day(2024, time.March, 6, 9) // Wednesday
	tests := []struct {
		name string
		last *time.Time
		now  time.Time
		want []Bucket
	}{
		{name: "cold start", last: nil, now: wed, want: []Bucket{"Wednesday", Daily}},
		{name: "same day rerun", last: ptr(wed.Add(-time.Hour)), now: wed, want: []Bucket{}},
		{name: "next day", last: ptr(day(2024, time.March, 5, 22)), now: wed, want: []Bucket{"Wednesday", Daily}},
		{
			name: "weekend gap wraps",
			last: ptr(day(2024, time.March, 8, 9)), // Friday
			now:  day(2024, time.March, 11, 9),     // Monday
			want: []Bucket{"Saturday", "Sunday", "Monday", Daily},
		},
		{
			name: "week or more",
			last: ptr(day(2024, time.March, 1, 9)),
			now:  day(2024, time.March, 9, 9),
			want: []Bucket{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", Daily},
		},
		{
			name: "thirty days",
			last: ptr(day(2024, time.March, 1, 9)),
			now:  day(2024, time.March, 31, 9),
			want: []Bucket{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", Daily, Monthly},
		},
		{
			name: "month rollover",
			last: ptr(day(2024, time.February, 29, 9)), // Thursday
			now:  day(2024, time.March, 1, 9),          // Friday
			want: []Bucket{"Friday", Daily, Monthly},
		},
		{
			name: "year rollover",
			last: ptr(day(2023, time.December, 31, 9)), // Sunday
			now:  day(2024, time.January, 1, 9),        // Monday
			want: []Bucket{"Monday", Daily, Monthly},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DueBuckets(tt.last, tt.now, time.UTC)
			if !equalBuckets(got, tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestDueBucketsMonthlyInsideWeeklyWindow(t *testing.T) {
	got := DueBuckets(ptr(day(2024, time.January, 5, 9)), day(2024, time.February, 3, 9), time.UTC)
	found := false
	for _, b := range got {
		if b == Monthly {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Monthly in %v", got)
	}
}

func TestDueBucketsUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	// 03:00 UTC Thursday is still Wednesday evening in loc
	last := day(2024, time.March, 6, 20)
	now := day(2024, time.March, 7, 3)
	if got := DueBuckets(&last, now, loc); len(got) != 0 {
		t.Fatalf("expected same local day to be a no-op, got %v", got)
	}
}

func TestDequeueOrder(t *testing.T) {
	s := Settings{
		"weekly":  {Queue: "Monday", Goal: InboxZero, Index: 1},
		"daily2":  {Queue: Daily, Goal: InboxZero, Index: 2},
		"daily1":  {Queue: Daily, Goal: BestEffort, Index: 1},
		"monthly": {Queue: Monthly, Goal: InboxZero, Index: 1},
		"now":     {Queue: Immediate, Goal: InboxZero, Index: 5},
	}
	got := DequeueOrder([]string{"monthly", "weekly", "unknown", "daily2", "now", "daily1"}, s)
	want := []string{"unknown", "now", "daily1", "daily2", "weekly", "monthly"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order got %v want %v", got, want)
		}
	}
}

func TestBucketForDefaultsAndBlocked(t *testing.T) {
	s := Settings{"blocked": {Queue: Monthly, Goal: BestEffort, Index: 3}}
	if got := s.BucketFor("Never-Seen"); got != Default() {
		t.Fatalf("default got %+v", got)
	}
	b := s.BucketFor("BLOCKED")
	if b.Queue != Daily || b.Goal != InboxZero || b.Index != 3 {
		t.Fatalf("blocked got %+v", b)
	}
}

func TestSettingsNormalizeValidate(t *testing.T) {
	s := Settings{" News ": {Queue: "Friday"}, "blocked": {Queue: Monthly, Goal: BestEffort}}.Normalize()
	if got := s["news"]; got.Queue != "Friday" || got.Goal != InboxZero {
		t.Fatalf("normalize got %+v", got)
	}
	if got := s["blocked"]; got.Queue != Daily || got.Goal != InboxZero {
		t.Fatalf("blocked not pinned: %+v", got)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := (Settings{"x": {Queue: "Someday", Goal: InboxZero}}).Validate(); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
}

func TestLabelsInBucket(t *testing.T) {
	s := Settings{
		"news":   {Queue: "Friday", Goal: InboxZero, Index: 2},
		"deals":  {Queue: "Friday", Goal: BestEffort, Index: 1},
		"digest": {Queue: Daily, Goal: InboxZero},
	}
	labels := []string{"news", "deals", "digest", "blocked", "stray"}
	fri := LabelsInBucket(labels, s, WeekdayBucket(time.Friday))
	if len(fri) != 2 || fri[0] != "deals" || fri[1] != "news" {
		t.Fatalf("friday got %v", fri)
	}
	daily := LabelsInBucket(labels, s, Daily)
	want := []string{"blocked", "digest", "stray"}
	if len(daily) != len(want) {
		t.Fatalf("daily got %v want %v", daily, want)
	}
	for i := range want {
		if daily[i] != want[i] {
			t.Fatalf("daily got %v want %v", daily, want)
		}
	}
}

func TestParseBucket(t *testing.T) {
	if b, err := ParseBucket(" tuesday "); err != nil || b != "Tuesday" {
		t.Fatalf("got %q,%v", b, err)
	}
	if _, err := ParseGoal("best effort"); err != nil {
		t.Fatalf("goal: %v", err)
	}
}
