package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
)

// RunExport exports the events matching filter to output in format.
// An empty output writes to stdout.
func RunExport(path, format, output string, filter log.Filter) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

// jsonEvent is the JSON line of an event. Message bodies are decoded when
// possible.
type jsonEvent struct {
	Timestamp     string          `json:"timestamp"`
	Component     string          `json:"component"`
	Direction     string          `json:"direction"`
	Category      string          `json:"category"`
	SessionID     string          `json:"session_id,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	RoutingKey    string          `json:"routing_key,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	ReplyTo       string          `json:"reply_to,omitempty"`
	Source        string          `json:"source,omitempty"`
	Size          int             `json:"size,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
	Entity        string          `json:"entity,omitempty"`
	OldState      string          `json:"old_state,omitempty"`
	NewState      string          `json:"new_state,omitempty"`
	Trigger       string          `json:"trigger,omitempty"`
	Error         string          `json:"error,omitempty"`
	Context       string          `json:"context,omitempty"`
}

func toJSONEvent(event log.Event) jsonEvent {
	je := jsonEvent{
		Timestamp: event.Timestamp.UTC().Format(timestampLayout),
		Component: event.Component,
		Direction: event.Direction.String(),
		Category:  event.Category.String(),
		SessionID: event.SessionID,
	}
	if m := event.Message; m != nil {
		je.Kind = m.Kind.String()
		je.RoutingKey = m.RoutingKey
		je.CorrelationID = m.CorrelationID
		je.ReplyTo = m.ReplyTo
		je.Source = m.Source
		je.Size = m.Size
		if env, ok := m.Envelope(event.Timestamp); ok {
			if body, err := env.Decode(); err == nil {
				je.Body, _ = json.Marshal(body)
			}
		}
	}
	if sc := event.StateChange; sc != nil {
		je.Entity = sc.Entity.String()
		je.OldState = sc.OldState
		je.NewState = sc.NewState
		je.Trigger = sc.Trigger
	}
	if e := event.Error; e != nil {
		je.Error = e.Message
		je.Context = e.Context
	}
	return je
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(toJSONEvent(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "component", "direction", "category", "session_id", "type", "routing_key", "correlation_id", "size"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var routingKey, correlationID, size string
		if m := event.Message; m != nil {
			routingKey = m.RoutingKey
			correlationID = m.CorrelationID
			size = strconv.Itoa(m.Size)
		}
		row := []string{
			event.Timestamp.UTC().Format(timestampLayout),
			event.Component,
			event.Direction.String(),
			event.Category.String(),
			event.SessionID,
			eventLabel(event),
			routingKey,
			correlationID,
			size,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
