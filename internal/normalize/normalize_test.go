package normalize

import (
	"testing"
	"time"
)

func TestEmail(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"   ":                  "",
		"A@X.com":              "a@x.com",
		"  Mixed.Case@Ex.org ": "mixed.case@ex.org",
	}
	for in, want := range cases {
		if got := Email(in); got != want {
			t.Fatalf("Email(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPhone(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"555":                "555",
		" 555-0100 ":         "5550100",
		"+48 (22) 123.45.67": "+48221234567",
		"22+33":              "2233",
	}
	for in, want := range cases {
		if got := Phone(in); got != want {
			t.Fatalf("Phone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTimestamp(t *testing.T) {
	want := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	inputs := []string{
		"2021-03-04T05:06:07Z",
		"2021-03-04T07:06:07+02:00",
		"2021-03-04 05:06:07",
		"2021-03-04 05:06:07.000000",
		"2021-03-04T05:06:07",
	}
	for _, in := range inputs {
		got, err := Timestamp(in)
		if err != nil {
			t.Fatalf("Timestamp(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("Timestamp(%q) = %v, want %v", in, got, want)
		}
	}

	micro, err := Timestamp("2021-03-04 05:06:07.123456")
	if err != nil {
		t.Fatalf("Timestamp micro: %v", err)
	}
	if micro.Nanosecond() != 123456000 {
		t.Fatalf("expected microseconds preserved, got %d", micro.Nanosecond())
	}

	empty, err := Timestamp("  ")
	if err != nil || !empty.IsZero() {
		t.Fatalf("expected zero time for blank input, got %v (%v)", empty, err)
	}

	if _, err := Timestamp("yesterday"); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	if FormatTimestamp(time.Time{}) != "" {
		t.Fatal("zero time should format as empty")
	}
	ts := time.Date(2020, 1, 2, 3, 4, 5, 600, time.FixedZone("x", 3600))
	parsed, err := Timestamp(FormatTimestamp(ts))
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, ts)
	}
}
