package tiny

import (
	"encoding/json"
	"testing"
)

func decodeJSON(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return v
}

func TestExtractRecordsListOfWrappedObjects(t *testing.T) {
	v := decodeJSON(t, `[{"produto": {"id": 1, "nome": "Caneta"}}, {"produto": {"id": 2, "nome": "Lápis"}}]`)
	records, ok := ExtractRecords(v, "produto")
	if !ok {
		t.Fatalf("expected list shape to match")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["nome"] != "Caneta" {
		t.Fatalf("expected unwrapped record, got %+v", records[0])
	}
}

func TestExtractRecordsListOfPlainObjects(t *testing.T) {
	v := decodeJSON(t, `[{"id": 1, "nome": "Papelaria"}]`)
	records, ok := ExtractRecords(v, "categoria")
	if !ok || len(records) != 1 {
		t.Fatalf("expected plain list to match, got ok=%v records=%+v", ok, records)
	}
	if records[0]["nome"] != "Papelaria" {
		t.Fatalf("expected record kept as-is, got %+v", records[0])
	}
}

func TestExtractRecordsNamedSubfield(t *testing.T) {
	v := decodeJSON(t, `{"produto": [{"produto": {"id": 7}}]}`)
	records, ok := ExtractRecords(v, "produto")
	if !ok || len(records) != 1 {
		t.Fatalf("expected named-subfield list to match, got ok=%v records=%+v", ok, records)
	}
	if records[0]["id"] != float64(7) {
		t.Fatalf("expected id 7, got %+v", records[0])
	}

	single := decodeJSON(t, `{"produto": {"id": 9, "nome": "Borracha"}}`)
	records, ok = ExtractRecords(single, "produto")
	if !ok || len(records) != 1 || records[0]["id"] != float64(9) {
		t.Fatalf("expected wrapped single object to match, got ok=%v records=%+v", ok, records)
	}
}

func TestExtractRecordsMapAsSingleRecord(t *testing.T) {
	v := decodeJSON(t, `{"id": 3, "nome": "Avulso"}`)
	records, ok := ExtractRecords(v, "produto")
	if !ok || len(records) != 1 {
		t.Fatalf("expected map-as-record to match, got ok=%v records=%+v", ok, records)
	}
	if records[0]["id"] != float64(3) {
		t.Fatalf("expected passthrough record, got %+v", records[0])
	}
}

func TestExtractRecordsFailsClosed(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `42`, `null`, `{}`} {
		records, ok := ExtractRecords(decodeJSON(t, raw), "produto")
		if ok {
			t.Fatalf("expected %s to fail closed, got %+v", raw, records)
		}
	}
}

func TestExtractRecordsSkipsNonObjectListEntries(t *testing.T) {
	v := decodeJSON(t, `[{"produto": {"id": 1}}, "noise", 12]`)
	records, ok := ExtractRecords(v, "produto")
	if !ok || len(records) != 1 {
		t.Fatalf("expected noise entries dropped, got ok=%v records=%+v", ok, records)
	}
}
