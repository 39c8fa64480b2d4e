package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// RunView writes the events of the log file matching filter to w.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [component] DIRECTION CATEGORY label
	ts := event.Timestamp.UTC().Format(timestampLayout)
	fmt.Fprintf(w, "%s [%s] %-3s %s %s\n", ts, event.Component, event.Direction, event.Category, eventLabel(event))

	if event.SessionID != "" {
		fmt.Fprintf(w, "  Session: %s\n", event.SessionID)
	}
	switch {
	case event.Message != nil:
		formatMessageDetails(w, event)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func eventLabel(event log.Event) string {
	switch {
	case event.Message != nil:
		return event.Message.Kind.String()
	case event.StateChange != nil:
		return event.StateChange.Entity.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatMessageDetails writes the routing data and decoded body of a message.
func formatMessageDetails(w io.Writer, event log.Event) {
	msg := event.Message
	fmt.Fprintf(w, "  Route: %s\n", msg.RoutingKey)
	if msg.Source != "" {
		fmt.Fprintf(w, "  Source: %s\n", msg.Source)
	}
	if msg.CorrelationID != "" {
		fmt.Fprintf(w, "  Correlation: %s\n", msg.CorrelationID)
	}
	if msg.ReplyTo != "" {
		fmt.Fprintf(w, "  ReplyTo: %s\n", msg.ReplyTo)
	}

	env, ok := msg.Envelope(event.Timestamp)
	if !ok {
		fmt.Fprintf(w, "  Body: %d bytes (truncated)\n", msg.Size)
		return
	}
	body, err := env.Decode()
	if err != nil {
		fmt.Fprintf(w, "  Body: %d bytes (%v)\n", msg.Size, err)
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(w, "  Body: %d bytes\n", msg.Size)
		return
	}
	fmt.Fprintf(w, "  Body: %s\n", data)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Trigger != "" {
		fmt.Fprintf(w, "  Trigger: %s\n", sc.Trigger)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}
