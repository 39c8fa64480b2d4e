// Package verdict implements the ordered verdict values used to grade test
// steps and test cases.
//
// Values are totally ordered by severity:
//
//	none < pass < inconclusive < fail < aborted < error
//
// A Verdict only ever moves towards a more severe value. Updating with a
// value of equal severity replaces the message, so the last writer of a
// given severity wins.
package verdict

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownValue is returned when a verdict token or value is not one of
// the known values.
var ErrUnknownValue = errors.New("unknown verdict value")

// Value is a verdict value. Its numeric order is its severity rank.
type Value uint8

const (
	None Value = iota
	Pass
	Inconclusive
	Fail
	Aborted
	Error
)

var valueNames = [...]string{
	None:         "none",
	Pass:         "pass",
	Inconclusive: "inconclusive",
	Fail:         "fail",
	Aborted:      "aborted",
	Error:        "error",
}

// Values returns all known values in ascending severity order.
func Values() []Value {
	return []Value{None, Pass, Inconclusive, Fail, Aborted, Error}
}

// Valid reports whether v is one of the known values.
func (v Value) Valid() bool {
	return int(v) < len(valueNames)
}

// Rank returns the severity rank of v.
func (v Value) Rank() int {
	return int(v)
}

// String returns the lowercase token of the value.
func (v Value) String() string {
	if !v.Valid() {
		return fmt.Sprintf("Value(%d)", uint8(v))
	}
	return valueNames[v]
}

// Parse parses a verdict token. Matching is case-insensitive.
func Parse(s string) (Value, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for i, name := range valueNames {
		if name == token {
			return Value(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownValue, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownValue, uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Max returns the more severe of a and b.
func Max(a, b Value) Value {
	if b > a {
		return b
	}
	return a
}

// Verdict is a monotonic verdict with an attached message.
// The zero value is a valid verdict of None with an empty message.
type Verdict struct {
	value   Value
	message string
}

// New creates a verdict. An optional initial value may be given;
// unknown initial values are ignored.
func New(initial ...Value) *Verdict {
	v := &Verdict{}
	if len(initial) > 0 && initial[0].Valid() {
		v.value = initial[0]
	}
	return v
}

// Update sets the value and message if value is at least as severe as the
// current value. It returns ErrUnknownValue for unknown values and leaves
// the verdict untouched.
func (v *Verdict) Update(value Value, message string) error {
	if !value.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownValue, uint8(value))
	}
	if value >= v.value {
		v.value = value
		v.message = message
	}
	return nil
}

// UpdateToken parses token and applies it with Update.
func (v *Verdict) UpdateToken(token, message string) error {
	value, err := Parse(token)
	if err != nil {
		return err
	}
	return v.Update(value, message)
}

// Value returns the current value.
func (v *Verdict) Value() Value {
	return v.value
}

// Message returns the message recorded with the current value.
func (v *Verdict) Message() string {
	return v.message
}

// String returns "value: message", or just the value when there is no message.
func (v *Verdict) String() string {
	if v.message == "" {
		return v.value.String()
	}
	return v.value.String() + ": " + v.message
}
