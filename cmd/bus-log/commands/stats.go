package commands

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	EventsByKind      map[string]int
	Components        map[string]*ComponentStats
	Sessions          map[string]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ComponentStats holds statistics for a single component.
type ComponentStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Published int
	Delivered int
}

// CollectStats reads the log file and aggregates its events.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		EventsByKind:      make(map[string]int),
		Components:        make(map[string]*ComponentStats),
		Sessions:          make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++
		if event.Message != nil {
			stats.EventsByKind[event.Message.Kind.String()]++
		}
		if event.SessionID != "" {
			stats.Sessions[event.SessionID]++
		}
		if event.Error != nil {
			stats.Errors++
		}

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		comp, ok := stats.Components[event.Component]
		if !ok {
			comp = &ComponentStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Components[event.Component] = comp
		}
		comp.Events++
		if event.Timestamp.After(comp.LastSeen) {
			comp.LastSeen = event.Timestamp
		}
		switch event.Direction {
		case log.DirectionOut:
			comp.Published++
		case log.DirectionIn:
			comp.Delivered++
		}
	}
	return stats, nil
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Session Bus Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.EventsByKind) > 0 {
		fmt.Fprintln(w, "Messages by Kind:")
		for _, kind := range slices.Sorted(maps.Keys(stats.EventsByKind)) {
			fmt.Fprintf(w, "  %-26s %d\n", kind+":", stats.EventsByKind[kind])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Components: %d\n", len(stats.Components))
	names := slices.SortedFunc(maps.Keys(stats.Components), func(a, b string) int {
		return stats.Components[a].FirstSeen.Compare(stats.Components[b].FirstSeen)
	})
	for _, name := range names {
		c := stats.Components[name]
		duration := c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond)
		fmt.Fprintf(w, "  [%s] %d events (%d out, %d in), duration %s\n",
			name, c.Events, c.Published, c.Delivered, duration)
	}

	if len(stats.Sessions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
		for _, id := range slices.Sorted(maps.Keys(stats.Sessions)) {
			fmt.Fprintf(w, "  %s: %d events\n", id, stats.Sessions[id])
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
