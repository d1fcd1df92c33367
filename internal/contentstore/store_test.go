package contentstore

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestPageDocumentJSONAcceptsStringAndNumericTimestamps(t *testing.T) {
	var doc pageDocument
	if err := json.Unmarshal([]byte(`{"id":"P1","title":"About","last_edited_time":1704067200000,"children":["P2"," ",""]}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec := doc.record("requested")
	if rec.ID != "P1" || rec.LastEditedTime != "1704067200000" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.ChildIDs) != 1 || rec.ChildIDs[0] != "P2" {
		t.Fatalf("expected blank children dropped, got %v", rec.ChildIDs)
	}

	doc = pageDocument{}
	if err := json.Unmarshal([]byte(`{"title":"Home","last_edited_time":" 2024-01-01T00:00:00Z "}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec = doc.record("P0")
	if rec.ID != "P0" {
		t.Fatalf("expected requested id fallback, got %q", rec.ID)
	}
	if rec.LastEditedTime != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected timestamp %q", rec.LastEditedTime)
	}

	if err := json.Unmarshal([]byte(`{"last_edited_time":{"seconds":1}}`), &doc); err == nil {
		t.Fatalf("expected object timestamp to be rejected")
	}
}

func TestPageDocumentYAMLTimestamps(t *testing.T) {
	src := "id: 067DD719A912471EA9A3AC10710E7FDF\ntitle: Guides\nlast_edited_time: 2024-03-05T10:00:00Z\nchildren:\n  - p2\n"
	var doc pageDocument
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec := doc.record("x")
	if rec.ID != "067dd719-a912-471e-a9a3-ac10710e7fdf" {
		t.Fatalf("expected normalized uuid, got %q", rec.ID)
	}
	if rec.LastEditedTime != "2024-03-05T10:00:00Z" {
		t.Fatalf("unexpected timestamp %q", rec.LastEditedTime)
	}

	doc = pageDocument{}
	if err := yaml.Unmarshal([]byte("last_edited_time: 1704067200000\n"), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.LastEditedTime != "1704067200000" {
		t.Fatalf("unexpected numeric timestamp %q", doc.LastEditedTime)
	}
}
