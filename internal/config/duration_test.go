package config

import (
	"strings"
	"testing"
	"time"
)

func TestDurationOrDefault(t *testing.T) {
	cases := []struct {
		value, def string
		want       time.Duration
		wantErr    bool
	}{
		{value: "2s", def: "5s", want: 2 * time.Second},
		{value: "  ", def: "5s", want: 5 * time.Second},
		{value: "", def: "", wantErr: true},
		{value: "soon", def: "5s", wantErr: true},
		{value: "-1s", def: "5s", wantErr: true},
	}
	for _, tc := range cases {
		got, err := DurationOrDefault(tc.value, tc.def)
		if tc.wantErr {
			if err == nil {
				t.Errorf("DurationOrDefault(%q, %q) expected error", tc.value, tc.def)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("DurationOrDefault(%q, %q) = %v, %v; want %v", tc.value, tc.def, got, err, tc.want)
		}
	}
}

func TestParseDurations(t *testing.T) {
	var a, b time.Duration
	err := ParseDurations(
		DurationField{Key: "a", Value: "", Default: "3s", Dst: &a},
		DurationField{Key: "b", Value: "1m", Default: "3s", Dst: &b},
	)
	if err != nil {
		t.Fatalf("ParseDurations: %v", err)
	}
	if a != 3*time.Second || b != time.Minute {
		t.Fatalf("got a=%v b=%v", a, b)
	}

	err = ParseDurations(DurationField{Key: "runner.job_timeout", Value: "x", Default: "3s", Dst: &a})
	if err == nil || !strings.Contains(err.Error(), "runner.job_timeout") {
		t.Fatalf("expected key in error, got %v", err)
	}
}
