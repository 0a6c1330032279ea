package model

import "testing"

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:30", 570},
		{"23:59", 1439},
		{"24:00", 1440},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if err != nil {
			t.Fatalf("ParseClock(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	for _, in := range []string{"", "9:30", "24:01", "25:00", "12:60", "12-30", "noonish"} {
		if _, err := ParseClock(in); err == nil {
			t.Fatalf("ParseClock(%q) should fail", in)
		}
	}
}

func TestFormatClock(t *testing.T) {
	for _, minute := range []int{0, 570, 1439, 1440} {
		round, err := ParseClock(FormatClock(minute))
		if err != nil {
			t.Fatalf("FormatClock(%d) not parseable: %v", minute, err)
		}
		if round != minute {
			t.Fatalf("round trip %d came back %d", minute, round)
		}
	}
}
