package schedule

import (
	"fmt"
	"strings"
	"time"
)

// TimeExpr is a step's scheduled time: either an offset relative to the
// schedule start or an absolute UTC instant.
type TimeExpr struct {
	relative bool
	offset   time.Duration
	absolute time.Time
}

// Relative builds a start-relative expression. The offset may be negative.
func Relative(offset time.Duration) TimeExpr {
	return TimeExpr{relative: true, offset: offset}
}

// Absolute builds an expression for a literal UTC instant.
func Absolute(at time.Time) TimeExpr {
	return TimeExpr{absolute: at.UTC()}
}

// IsRelative reports whether the expression resolves against the schedule
// start.
func (e TimeExpr) IsRelative() bool { return e.relative }

// Resolve maps the expression to an absolute instant given the schedule
// start. Resolution is total: every expression yields exactly one instant.
func (e TimeExpr) Resolve(start time.Time) time.Time {
	if e.relative {
		return start.Add(e.offset)
	}
	return e.absolute
}

func (e TimeExpr) String() string {
	if e.relative {
		if e.offset < 0 {
			return fmt.Sprintf("T-%s", -e.offset)
		}
		return fmt.Sprintf("T+%s", e.offset)
	}
	return e.absolute.Format(time.RFC3339)
}

// ParseTimeExpr parses one of the three time expression forms:
//
//	T+10s, t-5m          relative to the schedule start
//	<rfc3339> - 10s      absolute with an offset
//	<rfc3339>            plain absolute
func ParseTimeExpr(s string) (TimeExpr, error) {
	s = strings.TrimSpace(s)

	// Relative: leading T/t, optional sign, then a duration.
	if strings.HasPrefix(strings.ToLower(s), "t") {
		rest := s[1:]
		neg := false
		switch {
		case strings.HasPrefix(rest, "-"):
			neg = true
			rest = rest[1:]
		case strings.HasPrefix(rest, "+"):
			rest = rest[1:]
		}
		dur, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return TimeExpr{}, fmt.Errorf("relative time %q: %w", s, err)
		}
		if neg {
			dur = -dur
		}
		return Relative(dur), nil
	}

	// Absolute with offset: the sign separating timestamp and duration is
	// the last +/- in the string, and it always sits past the date part.
	if idx := strings.LastIndexAny(s, "+-"); idx > 10 {
		if base, err := time.Parse(time.RFC3339, strings.TrimSpace(s[:idx])); err == nil {
			offset := s[idx:]
			neg := strings.HasPrefix(offset, "-")
			dur, err := time.ParseDuration(strings.TrimSpace(offset[1:]))
			if err != nil {
				return TimeExpr{}, fmt.Errorf("time offset %q: %w", s, err)
			}
			if neg {
				dur = -dur
			}
			return Absolute(base.Add(dur)), nil
		}
	}

	// Plain absolute.
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return TimeExpr{}, fmt.Errorf("time %q: %w", s, err)
	}
	return Absolute(at), nil
}
