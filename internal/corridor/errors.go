package corridor

import (
	"errors"
	"fmt"
)

// Sentinel errors for non-fatal intake failures. Intake paths drop the
// offending record, log it on the diag stream, and count it on LoopStats;
// these are never propagated across a tick boundary.
var (
	ErrInvalidReading      = errors.New("invalid sensor reading")
	ErrUnknownIntersection = errors.New("unknown intersection id")
	ErrOverrideConflict    = errors.New("conflicting override directives")
	ErrInboxFull           = errors.New("corridor inbox full")
)

// ConfigError reports a structural corridor misconfiguration. Construction
// refuses to start on it; there is no runtime recovery path.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("corridor config: %s", e.Detail)
	}
	return fmt.Sprintf("corridor config: %s: %s", e.Field, e.Detail)
}
