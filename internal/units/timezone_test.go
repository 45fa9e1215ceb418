package units

import (
	"strings"
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		expected bool
	}{
		{"valid UTC", "UTC", true},
		{"valid US Eastern", "America/New_York", true},
		{"valid but uncommon", "Pacific/Chatham", true},
		{"invalid", "Invalid/Timezone", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := IsTimezoneValid(tt.timezone)
			if res != tt.expected {
				t.Errorf("IsTimezoneValid(%s) = %v, want %v", tt.timezone, res, tt.expected)
			}
		})
	}
}

func TestIsCommonTimezone(t *testing.T) {
	if !IsCommonTimezone("UTC") {
		t.Error("UTC should be a common timezone")
	}
	if !IsCommonTimezone("America/Chicago") {
		t.Error("America/Chicago should be a common timezone")
	}
	if IsCommonTimezone("Pacific/Chatham") {
		t.Error("Pacific/Chatham should not be in the curated list")
	}
	if IsCommonTimezone("") {
		t.Error("empty string should not be a common timezone")
	}
}

func TestCommonTimezonesAllLoadable(t *testing.T) {
	for _, tz := range CommonTimezones {
		if _, err := time.LoadLocation(tz); err != nil {
			t.Errorf("curated timezone %s does not load: %v", tz, err)
		}
	}
}

func TestGetValidTimezonesString(t *testing.T) {
	res := GetValidTimezonesString()
	if res == "" {
		t.Fatal("GetValidTimezonesString returned empty string")
	}
	for _, s := range []string{"UTC", "America/New_York", "Europe/Berlin"} {
		if !strings.Contains(res, s) {
			t.Fatalf("GetValidTimezonesString missing %s", s)
		}
	}
}

func TestConvertTime(t *testing.T) {
	utcTime := time.Date(2025, 9, 13, 12, 0, 0, 0, time.UTC)

	t.Run("UTC to UTC", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "UTC")
		if err != nil {
			t.Fatalf("ConvertTime error: %v", err)
		}
		if !out.Equal(utcTime) {
			t.Fatalf("ConvertTime returned %v, want %v", out, utcTime)
		}
	})

	t.Run("UTC to Chicago", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "America/Chicago")
		if err != nil {
			t.Fatalf("ConvertTime error: %v", err)
		}
		if !out.Equal(utcTime) {
			t.Fatal("converted time should be the same instant")
		}
		if out.Hour() == utcTime.Hour() {
			t.Fatal("converted time should render in a different hour")
		}
	})

	t.Run("invalid timezone", func(t *testing.T) {
		if _, err := ConvertTime(utcTime, "Invalid/Timezone"); err == nil {
			t.Fatal("expected error for invalid timezone")
		}
	})
}

func TestGetTimezoneLabel(t *testing.T) {
	if got := GetTimezoneLabel("UTC"); got != "UTC (+00:00)" {
		t.Fatalf("GetTimezoneLabel(UTC) = %q", got)
	}
	if got := GetTimezoneLabel("America/New_York"); !strings.Contains(got, "New York") {
		t.Fatalf("GetTimezoneLabel(America/New_York) = %q", got)
	}
	// Unknown zones fall back to the identifier.
	if got := GetTimezoneLabel("Pacific/Chatham"); got != "Pacific/Chatham" {
		t.Fatalf("GetTimezoneLabel fallback = %q", got)
	}
}
