package sample

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// Sentinel is the line that terminates a dataset.
	Sentinel = "End"

	// LineTerminator ends every line the device writes.
	LineTerminator = "\r\n"

	// ErrorPrefix starts a device-side failure report line.
	ErrorPrefix = "Error: "
)

var (
	// ErrTooFewFields is returned by ParseLine for lines with fewer than two
	// comma separated fields.
	ErrTooFewFields = errors.New("fewer than 2 fields")

	// ErrNotFinite is returned when a field parses to NaN or an infinity.
	ErrNotFinite = errors.New("value is not finite")
)

// ConversionError reports a field that failed numeric conversion. It is
// recoverable: the line is skipped and parsing continues.
type ConversionError struct {
	Line  string
	Field int
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("field %d of line %q: %v", e.Field, e.Line, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// AppendLine appends "<timestampMs>,<voltage>\r\n" to dst. It does not
// allocate when dst has room.
func AppendLine(dst []byte, p Point) []byte {
	dst = strconv.AppendUint(dst, uint64(p.TimestampMs), 10)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, float64(p.Voltage), 'f', -1, 32)
	return append(dst, LineTerminator...)
}

// TrimLine strips any trailing line terminator characters.
func TrimLine(raw string) string {
	return strings.TrimRight(raw, "\r\n")
}

// IsSentinel reports whether an already trimmed line is the dataset sentinel.
func IsSentinel(line string) bool {
	return line == Sentinel
}

// ParseLine parses the first two comma separated fields of a trimmed line.
// Extra fields are ignored. Surrounding whitespace in a field is ignored.
func ParseLine(line string) (x, y float64, err error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrTooFewFields, line)
	}

	x, err = parseField(line, parts, 0)
	if err != nil {
		return 0, 0, err
	}
	y, err = parseField(line, parts, 1)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func parseField(line string, parts []string, i int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
	if err != nil {
		return 0, &ConversionError{Line: line, Field: i, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ConversionError{Line: line, Field: i, Err: ErrNotFinite}
	}
	return v, nil
}
