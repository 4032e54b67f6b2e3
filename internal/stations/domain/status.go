package stations

import (
	"fmt"
	"strings"
)

// Status is the operational state shown on the board.
type Status string

const (
	StatusNormal      Status = "normal"
	StatusWarning     Status = "warning"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
)

var allStatuses = []Status{StatusNormal, StatusWarning, StatusError, StatusMaintenance}

// Statuses returns the accepted status values in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// StatusStrings returns Statuses as plain strings.
func StatusStrings() []string {
	out := make([]string, 0, len(allStatuses))
	for _, s := range allStatuses {
		out = append(out, string(s))
	}
	return out
}

// IsValid reports whether s is one of the four board statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNormal, StatusWarning, StatusError, StatusMaintenance:
		return true
	default:
		return false
	}
}

// Label returns the operator-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusWarning:
		return "Warning"
	case StatusError:
		return "Error"
	case StatusMaintenance:
		return "Maintenance"
	default:
		return string(s)
	}
}

// ParseStatus validates a raw status value. Matching is exact.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: %s)", ErrInvalidStatus, raw, strings.Join(StatusStrings(), ", "))
	}
	return status, nil
}
