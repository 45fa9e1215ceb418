package sensormux

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nnikhil6/greenwave/internal/corridor"
)

// LineType classifies a raw station line.
type LineType string

const (
	LineTypeReading  LineType = "reading"
	LineTypeIncident LineType = "incident"
	LineTypeConfig   LineType = "config"
	LineTypeUnknown  LineType = "unknown"
)

// ClassifyPayload decides what a station line carries without fully
// parsing it. Readings win over incidents: a reading can carry an
// inline incident flag and severity, and it still routes as a reading.
func ClassifyPayload(payload string) LineType {
	trimmed := strings.TrimSpace(payload)
	switch {
	case trimmed == "":
		return LineTypeUnknown
	case strings.Contains(trimmed, `"count"`) || strings.Contains(trimmed, `"approaching"`):
		return LineTypeReading
	case strings.HasPrefix(trimmed, "INCIDENT") || strings.Contains(trimmed, `"severity"`):
		return LineTypeIncident
	case strings.HasPrefix(trimmed, "{"):
		return LineTypeConfig
	default:
		return LineTypeUnknown
	}
}

// ParseIncidentLine decodes a standalone incident line. Stations emit
// either the terse form "INCIDENT <intersection> <severity>" or a JSON
// object with intersection, severity, and an optional ts field. A
// missing timestamp means the incident is happening now.
func ParseIncidentLine(payload string) (corridor.IncidentSignal, error) {
	trimmed := strings.TrimSpace(payload)

	if strings.HasPrefix(trimmed, "INCIDENT") {
		fields := strings.Fields(trimmed)
		if len(fields) != 3 {
			return corridor.IncidentSignal{}, fmt.Errorf("malformed incident line %q", payload)
		}
		severity, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return corridor.IncidentSignal{}, fmt.Errorf("incident severity %q: %w", fields[2], err)
		}
		return corridor.IncidentSignal{
			Intersection: fields[1],
			Severity:     severity,
			Timestamp:    time.Now(),
		}, nil
	}

	var sig corridor.IncidentSignal
	if err := json.Unmarshal([]byte(trimmed), &sig); err != nil {
		return corridor.IncidentSignal{}, fmt.Errorf("decode incident line: %w", err)
	}
	if sig.Intersection == "" {
		return corridor.IncidentSignal{}, errors.New("incident line missing intersection")
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	return sig, nil
}
