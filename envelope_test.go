package apigate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvelopeWireFormat(t *testing.T) {
	env := Envelope{
		ID:        "req-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Message:   "OK",
		Code:      200,
		Data:      map[string]int{"total": 42},
		Flash: []Flash{
			{Level: FlashInfo, Message: "a"},
			{Level: FlashError, Message: "b"},
		},
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded["_id"] != "req-1" {
		t.Errorf("_id = %v", decoded["_id"])
	}
	if decoded["code"] != float64(200) {
		t.Errorf("code = %v", decoded["code"])
	}
	if _, ok := decoded["error"]; ok {
		t.Error("error key present on success envelope")
	}

	// Flash keeps insertion order.
	flash, ok := decoded["flash"].([]any)
	if !ok || len(flash) != 2 {
		t.Fatalf("flash = %v", decoded["flash"])
	}
	first := flash[0].(map[string]any)
	if first["level"] != "INFO" || first["message"] != "a" {
		t.Errorf("first flash = %v", first)
	}
	second := flash[1].(map[string]any)
	if second["level"] != "ERROR" || second["message"] != "b" {
		t.Errorf("second flash = %v", second)
	}
}

func TestEnvelopeOmitsEmptyOptionalFields(t *testing.T) {
	raw, err := json.Marshal(Envelope{ID: "req-1", Message: "OK", Code: 200})
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, key := range []string{`"data"`, `"error"`, `"flash"`} {
		if strings.Contains(body, key) {
			t.Errorf("empty envelope contains %s: %s", key, body)
		}
	}
}

func TestTableEnvelopeData(t *testing.T) {
	result := Table(
		[]string{"name", "role"},
		[][]string{
			{"alice", "admin"},
			{"bob", "viewer"},
			{"short-row"},
		},
	)

	want := []map[string]string{
		{"name": "alice", "role": "admin"},
		{"name": "bob", "role": "viewer"},
		{"name": "short-row"},
	}
	got := result.envelopeData()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("envelopeData() mismatch (-want +got):\n%s", diff)
	}
}

func TestTableRenderCSV(t *testing.T) {
	result := Table(
		[]string{"name", "note"},
		[][]string{{"alice", `said "hi"`}},
	)

	got, err := result.render("text/csv")
	if err != nil {
		t.Fatal(err)
	}
	want := "name,note\nalice,\"said \"\"hi\"\"\"\n"
	if got != want {
		t.Errorf("CSV = %q, want %q", got, want)
	}
}

func TestTableRenderHTMLEscapes(t *testing.T) {
	result := Table(
		[]string{"name"},
		[][]string{{"<script>alert(1)</script>"}},
	)

	got, err := result.render("text/html")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("cell not escaped: %s", got)
	}
	if !strings.Contains(got, "<th>name</th>") {
		t.Errorf("missing header cell: %s", got)
	}
}

func TestTableRenderText(t *testing.T) {
	result := Table(
		[]string{"name", "role"},
		[][]string{{"alice", "admin"}},
	)

	got, err := result.render("text/plain")
	if err != nil {
		t.Fatal(err)
	}
	for _, cell := range []string{"alice", "admin"} {
		if !strings.Contains(got, cell) {
			t.Errorf("rendered table misses %q:\n%s", cell, got)
		}
	}
}

func TestRawResultRenderIgnoresContentType(t *testing.T) {
	result := Text("plain body")
	for _, contentType := range []string{"text/html", "text/csv", "text/plain"} {
		got, err := result.render(contentType)
		if err != nil {
			t.Fatal(err)
		}
		if got != "plain body" {
			t.Errorf("render(%q) = %q", contentType, got)
		}
	}
	if got := result.envelopeData(); got != "plain body" {
		t.Errorf("envelopeData() = %v", got)
	}
}
