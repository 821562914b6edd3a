package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// ISO layouts of the canonical date and time strings.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02T15:04:05"
)

// maxExactInt is the largest integer a float64 represents exactly.
const maxExactInt = 1 << 53

// Date is a calendar date without time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay is a wall clock time without date or zone.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Simplify normalizes a field value to its canonical in-memory form:
// nil, bool, int64, float64 (non-integral only), or string. Dates and times
// become ISO strings. Simplify is idempotent.
func Simplify(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, string:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		return simplifyUnsigned(uint64(val))
	case uint64:
		return simplifyUnsigned(val)
	case float32:
		return simplifyFloat(float64(val))
	case float64:
		return simplifyFloat(val)
	case json.Number:
		if i, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(val.String(), 64); err == nil {
			return simplifyFloat(f)
		}
		return val.String()
	case Date:
		return val.String()
	case TimeOfDay:
		return val.String()
	case time.Time:
		return val.Format(DateTimeLayout)
	case map[string]any:
		if s, ok := simplifyDateObject(val); ok {
			return s
		}
	}
	return v
}

// Serialize converts a canonical or native value to its wire form.
// Simplify(Serialize(v)) == Simplify(v) for every supported value.
func Serialize(v any) any {
	return Simplify(v)
}

func simplifyUnsigned(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func simplifyFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
		return int64(f)
	}
	return f
}

// simplifyDateObject handles the NGW object representation of dates:
// {"year", "month", "day"} and/or {"hour", "minute", "second"}.
func simplifyDateObject(m map[string]any) (string, bool) {
	part := func(key string) (int, bool) {
		raw, ok := m[key]
		if !ok {
			return 0, false
		}
		n, ok := Simplify(raw).(int64)
		return int(n), ok
	}

	year, hasYear := part("year")
	month, hasMonth := part("month")
	day, hasDay := part("day")
	hour, hasHour := part("hour")
	minute, hasMinute := part("minute")
	second, hasSecond := part("second")

	hasDate := hasYear && hasMonth && hasDay
	hasClock := hasHour && hasMinute && hasSecond

	switch {
	case hasDate && hasClock:
		return Date{year, time.Month(month), day}.String() + "T" + TimeOfDay{hour, minute, second}.String(), true
	case hasDate:
		return Date{year, time.Month(month), day}.String(), true
	case hasClock:
		return TimeOfDay{hour, minute, second}.String(), true
	}
	return "", false
}

// checkValue verifies that a simplified value fits the field data type.
func checkValue(v any, t schema.DataType) error {
	if v == nil {
		return nil
	}
	switch t {
	case schema.Integer, schema.BigInt:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("expected integer, got %T", v)
		}
	case schema.Real:
		switch v.(type) {
		case int64, float64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case schema.String:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case schema.Date:
		return checkLayout(v, DateLayout)
	case schema.Time:
		return checkLayout(v, TimeLayout)
	case schema.DateTime:
		return checkLayout(v, DateTimeLayout)
	}
	return nil
}

func checkLayout(v any, layout string) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected ISO string, got %T", v)
	}
	if _, err := time.Parse(layout, s); err != nil {
		return fmt.Errorf("invalid ISO value %q: %w", s, err)
	}
	return nil
}
