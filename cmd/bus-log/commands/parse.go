// Package commands implements the bus-log CLI commands.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// FilterOptions holds the raw filter flags shared by view, export and filter.
type FilterOptions struct {
	Component     string
	Direction     string
	Category      string
	Kind          string
	Route         string
	CorrelationID string
	TimeStart     string
	TimeEnd       string
}

// BuildFilter parses opts into a log filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		Component:      opts.Component,
		RoutingPattern: opts.Route,
		CorrelationID:  opts.CorrelationID,
	}

	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	if opts.Kind != "" {
		k, ok := wire.KindByName(opts.Kind)
		if !ok {
			return log.Filter{}, fmt.Errorf("unknown kind: %s", opts.Kind)
		}
		filter.Kind = &k
	}
	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// ParseDirectionFlag parses a direction flag value.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "none":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s (valid: in, out, none)", s)
	}
}

// ParseCategoryFlag parses a category flag value.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s (valid: message, state, error)", s)
	}
}
