package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

var baseTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+log.FileExtension)
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func messageEvent(t *testing.T, component string, dir log.Direction, offset time.Duration, msg wire.Message) log.Event {
	t.Helper()
	env, err := wire.NewEnvelope(msg)
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	env.Source = component
	e := log.NewMessageEvent(component, dir, env)
	e.Timestamp = baseTime.Add(offset)
	e.SessionID = "s-1"
	return e
}

func sessionEvents(t *testing.T) []log.Event {
	t.Helper()
	return []log.Event{
		messageEvent(t, "testcoordination", log.DirectionOut, 0, &wire.TestCaseReady{TestCaseID: "TD_COAP_CORE_01"}),
		messageEvent(t, "automated_iut.coap_client", log.DirectionOut, time.Second, &wire.TestCaseStart{TestCaseID: "TD_COAP_CORE_01"}),
		{
			Timestamp: baseTime.Add(2 * time.Second),
			Component: "testcoordination",
			Direction: log.DirectionNone,
			Category:  log.CategoryState,
			SessionID: "s-1",
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityCoordinator,
				OldState: "waiting_for_testcase_start",
				NewState: "preparing_next_step",
				Trigger:  "testcase.start",
			},
		},
		{
			Timestamp: baseTime.Add(3 * time.Second),
			Component: "testcoordination",
			Direction: log.DirectionNone,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Message: "request timed out", Context: "service.sniffing.start"},
		},
	}
}

func readEvents(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, e)
	}
}

func TestFormatMessageEvent(t *testing.T) {
	event := messageEvent(t, "testcoordination", log.DirectionOut, 0, &wire.TestCaseReady{TestCaseID: "TD_COAP_CORE_01"})

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z",
		"[testcoordination]",
		"OUT",
		"MESSAGE",
		"testcase.ready",
		"Route: " + wire.RouteTestCaseReady,
		"Session: s-1",
		"TD_COAP_CORE_01",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatTruncatedMessage(t *testing.T) {
	event := messageEvent(t, "sniffing", log.DirectionOut, 0, &wire.TestCaseReady{TestCaseID: "TD_1"})
	event.Message.Truncated = true
	event.Message.Size = 200000

	var buf bytes.Buffer
	formatEvent(&buf, event)
	if !strings.Contains(buf.String(), "200000 bytes (truncated)") {
		t.Errorf("expected truncated body, got: %s", buf.String())
	}
}

func TestFormatStateAndError(t *testing.T) {
	events := sessionEvents(t)

	var buf bytes.Buffer
	formatEvent(&buf, events[2])
	output := buf.String()
	if !strings.Contains(output, "waiting_for_testcase_start -> preparing_next_step") {
		t.Errorf("expected transition, got: %s", output)
	}
	if !strings.Contains(output, "Trigger: testcase.start") || !strings.Contains(output, "COORDINATOR") {
		t.Errorf("expected trigger and entity, got: %s", output)
	}

	buf.Reset()
	formatEvent(&buf, events[3])
	output = buf.String()
	if !strings.Contains(output, "Message: request timed out") || !strings.Contains(output, "Context: service.sniffing.start") {
		t.Errorf("expected error details, got: %s", output)
	}
}

func TestRunViewFiltered(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))

	filter, err := BuildFilter(FilterOptions{Component: "testcoordination", Category: "message"})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Count(output, "[testcoordination]") != 1 {
		t.Errorf("expected one message event, got: %s", output)
	}
	if strings.Contains(output, "automated_iut") {
		t.Errorf("unexpected component in output: %s", output)
	}
}

func TestBuildFilter(t *testing.T) {
	filter, err := BuildFilter(FilterOptions{
		Direction: "OUT",
		Kind:      "testcase.start",
		TimeStart: "2026-01-28T10:15:32Z",
		TimeEnd:   "2026-01-28T10:16:00Z",
		Route:     "control.#",
	})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}
	if filter.Direction == nil || *filter.Direction != log.DirectionOut {
		t.Errorf("direction = %v", filter.Direction)
	}
	if filter.Kind == nil || *filter.Kind != wire.KindTestCaseStart {
		t.Errorf("kind = %v", filter.Kind)
	}
	if filter.TimeStart == nil || filter.TimeEnd == nil {
		t.Error("expected time range")
	}
	if filter.RoutingPattern != "control.#" {
		t.Errorf("route = %q", filter.RoutingPattern)
	}

	bad := []FilterOptions{
		{Direction: "sideways"},
		{Category: "snapshot"},
		{Kind: "no.such.kind"},
		{TimeStart: "yesterday"},
		{TimeEnd: "2026-13-01"},
	}
	for _, opts := range bad {
		if _, err := BuildFilter(opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	out := filepath.Join(t.TempDir(), "filtered"+log.FileExtension)

	kind := wire.KindTestCaseStart
	n, err := RunFilter(path, out, log.Filter{Kind: &kind})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("filtered %d events, want 1", n)
	}

	events := readEvents(t, out)
	if len(events) != 1 || events[0].Component != "automated_iut.coap_client" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	out := filepath.Join(t.TempDir(), "events.jsonl")

	if err := RunExport(path, "jsonl", out, log.Filter{}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first["kind"] != "testcase.ready" || first["routing_key"] != wire.RouteTestCaseReady {
		t.Errorf("unexpected message line: %v", first)
	}
	if _, ok := first["body"].(map[string]any); !ok {
		t.Errorf("expected decoded body, got %v", first["body"])
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &state); err != nil {
		t.Fatal(err)
	}
	if state["new_state"] != "preparing_next_step" || state["direction"] != "-" {
		t.Errorf("unexpected state line: %v", state)
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	out := filepath.Join(t.TempDir(), "events.csv")

	if err := RunExport(path, "csv", out, log.Filter{}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header and 4 rows, got %d", len(records))
	}
	if records[0][0] != "timestamp" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][5] != "testcase.ready" || records[1][6] != wire.RouteTestCaseReady {
		t.Errorf("unexpected row: %v", records[1])
	}
	if records[3][5] != "COORDINATOR" {
		t.Errorf("unexpected state row: %v", records[3])
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	if err := RunExport(path, "xml", "", log.Filter{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.TotalEvents != 4 || stats.Errors != 1 {
		t.Errorf("total=%d errors=%d", stats.TotalEvents, stats.Errors)
	}
	if got := stats.Components["testcoordination"]; got == nil || got.Events != 3 || got.Published != 1 {
		t.Errorf("coordinator stats = %+v", got)
	}
	if stats.EventsByKind["testcase.start"] != 1 {
		t.Errorf("kinds = %v", stats.EventsByKind)
	}
	if stats.Sessions["s-1"] != 3 {
		t.Errorf("sessions = %v", stats.Sessions)
	}

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"Total Events: 4", "Components: 2", "Duration:   3s", "Errors: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}
