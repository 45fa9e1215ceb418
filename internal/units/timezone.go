package units

import (
	"fmt"
	"strings"
	"time"
)

// timezoneLabels is a curated west-to-east list of tz database identifiers
// with display labels. Corridor deployments are per-city, so the list covers
// the offsets an operator is likely to ask a report for; anything else still
// validates against the system tz database.
var timezoneLabels = []struct {
	ID    string
	Label string
}{
	{"Pacific/Honolulu", "Honolulu (-10:00)"},
	{"America/Anchorage", "Anchorage (-09:00/-08:00)"},
	{"America/Los_Angeles", "Los Angeles (-08:00/-07:00)"},
	{"America/Denver", "Denver (-07:00/-06:00)"},
	{"America/Phoenix", "Phoenix (-07:00)"},
	{"America/Chicago", "Chicago (-06:00/-05:00)"},
	{"America/Mexico_City", "Mexico City (-06:00)"},
	{"America/New_York", "New York (-05:00/-04:00)"},
	{"America/Lima", "Lima (-05:00)"},
	{"America/Santiago", "Santiago (-04:00/-03:00)"},
	{"America/Sao_Paulo", "Sao Paulo (-03:00)"},
	{"UTC", "UTC (+00:00)"},
	{"Europe/Dublin", "Dublin (+00:00/+01:00)"},
	{"Europe/Berlin", "Berlin (+01:00/+02:00)"},
	{"Africa/Lagos", "Lagos (+01:00)"},
	{"Africa/Johannesburg", "Johannesburg (+02:00)"},
	{"Europe/Athens", "Athens (+02:00/+03:00)"},
	{"Africa/Nairobi", "Nairobi (+03:00)"},
	{"Asia/Dubai", "Dubai (+04:00)"},
	{"Asia/Karachi", "Karachi (+05:00)"},
	{"Asia/Kolkata", "Mumbai/Kolkata (+05:30)"},
	{"Asia/Dhaka", "Dhaka (+06:00)"},
	{"Asia/Bangkok", "Bangkok (+07:00)"},
	{"Asia/Singapore", "Singapore (+08:00)"},
	{"Asia/Seoul", "Seoul (+09:00)"},
	{"Australia/Adelaide", "Adelaide (+09:30/+10:30)"},
	{"Australia/Sydney", "Sydney (+10:00/+11:00)"},
	{"Pacific/Auckland", "Auckland (+12:00/+13:00)"},
}

// CommonTimezones lists the curated timezone identifiers, west to east.
var CommonTimezones = func() []string {
	ids := make([]string, len(timezoneLabels))
	for i, tz := range timezoneLabels {
		ids[i] = tz.ID
	}
	return ids
}()

// IsTimezoneValid checks the given timezone against the system tz database,
// not the curated list, so any installed zone is accepted.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// IsCommonTimezone checks if the given timezone is in the curated list.
func IsCommonTimezone(tz string) bool {
	for _, commonTz := range CommonTimezones {
		if tz == commonTz {
			return true
		}
	}
	return false
}

// GetValidTimezonesString returns a comma-separated string of common timezones for error messages
func GetValidTimezonesString() string {
	return strings.Join(CommonTimezones, ", ")
}

// ConvertTime converts a UTC time to the specified timezone
// The journal stores all times in UTC, this function converts them for display
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "UTC" {
		return utcTime, nil // No conversion needed
	}

	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}

	return utcTime.In(loc), nil
}

// GetTimezoneLabel returns a human-readable label with offset for a curated
// timezone, or the identifier itself for anything else.
func GetTimezoneLabel(tz string) string {
	for _, entry := range timezoneLabels {
		if entry.ID == tz {
			return entry.Label
		}
	}
	return tz
}
