package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound2HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"2.675", "2.68"},
		{"0.125", "0.13"},
		{"300", "300"},
		{"0", "0"},
	}
	for _, tc := range cases {
		got := Round2(FromString(tc.in))
		if !got.Equal(FromString(tc.want)) {
			t.Fatalf("Round2(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestPercent(t *testing.T) {
	// 540.00 at 15% -> 81.00 (spec-critical tax step)
	got := Percent(FromString("540"), FromString("15"))
	if !got.Equal(FromString("81")) {
		t.Fatalf("Percent(540, 15) = %s, want 81", got)
	}

	// 600.00 at 10% -> 60.00
	got = Percent(FromString("600"), FromString("10"))
	if !got.Equal(FromString("60")) {
		t.Fatalf("Percent(600, 10) = %s, want 60", got)
	}

	// rounding inside the percentage: 33.33 at 7.5% = 2.49975 -> 2.50
	got = Percent(FromString("33.33"), FromString("7.5"))
	if !got.Equal(FromString("2.50")) {
		t.Fatalf("Percent(33.33, 7.5) = %s, want 2.50", got)
	}
}

func TestSummationOrderIndependence(t *testing.T) {
	parts := []string{"0.1", "0.2", "0.3", "100.07", "99.93"}
	forward := decimal.Zero
	for _, p := range parts {
		forward = forward.Add(FromString(p))
	}
	backward := decimal.Zero
	for i := len(parts) - 1; i >= 0; i-- {
		backward = backward.Add(FromString(parts[i]))
	}
	if !forward.Equal(backward) {
		t.Fatalf("sum order dependent: %s vs %s", forward, backward)
	}
	if !forward.Equal(FromString("200.60")) {
		t.Fatalf("sum = %s, want 200.60", forward)
	}
}

func TestMax(t *testing.T) {
	if got := Max(FromString("-5"), decimal.Zero); !got.Equal(decimal.Zero) {
		t.Fatalf("Max(-5, 0) = %s, want 0", got)
	}
	if got := Max(FromString("3"), FromString("2")); !got.Equal(FromString("3")) {
		t.Fatalf("Max(3, 2) = %s, want 3", got)
	}
}
