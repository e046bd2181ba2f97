package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextRunSimpleSteps(t *testing.T) {
	from := date(2025, time.January, 1)

	cases := []struct {
		freq Frequency
		want time.Time
	}{
		{FrequencyDaily, date(2025, time.January, 2)},
		{FrequencyWeekly, date(2025, time.January, 8)},
		{FrequencyMonthly, date(2025, time.February, 1)},
		{FrequencyQuarterly, date(2025, time.April, 1)},
		{FrequencyYearly, date(2026, time.January, 1)},
	}
	for _, tc := range cases {
		got, err := tc.freq.NextRun(from)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.freq, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.freq, got, tc.want)
		}
	}
}

func TestNextRunClampsMonthEnd(t *testing.T) {
	cases := []struct {
		name string
		freq Frequency
		from time.Time
		want time.Time
	}{
		{"jan 31 to leap feb", FrequencyMonthly, date(2024, time.January, 31), date(2024, time.February, 29)},
		{"jan 31 to non-leap feb", FrequencyMonthly, date(2025, time.January, 31), date(2025, time.February, 28)},
		{"oct 31 to nov 30", FrequencyMonthly, date(2025, time.October, 31), date(2025, time.November, 30)},
		{"nov 30 quarterly to feb", FrequencyQuarterly, date(2024, time.November, 30), date(2025, time.February, 28)},
		{"leap day yearly", FrequencyYearly, date(2024, time.February, 29), date(2025, time.February, 28)},
		{"year rollover", FrequencyMonthly, date(2025, time.December, 15), date(2026, time.January, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.freq.NextRun(tc.from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextRunDateMonotonic(t *testing.T) {
	for _, freq := range []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly} {
		current := date(2024, time.January, 31)
		for i := 0; i < 30; i++ {
			next, err := freq.NextRun(current)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", freq, err)
			}
			if !next.After(current) {
				t.Fatalf("%s: next run %v did not advance past %v", freq, next, current)
			}
			current = next
		}
	}
}

func TestNextRunRejectsUnknownFrequency(t *testing.T) {
	if _, err := Frequency("FORTNIGHTLY").NextRun(date(2025, time.January, 1)); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
	if Frequency("FORTNIGHTLY").Valid() {
		t.Fatal("unknown frequency reported valid")
	}
}
