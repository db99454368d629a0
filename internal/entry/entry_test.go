package entry

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	e, err := Decode([]byte(`{
		"id": "mpf_1",
		"type": "structures",
		"attributes": {
			"elements": ["Ac"],
			"nelements": 1,
			"band_gap": 1.0,
			"last_modified": null,
			"_exmpl_info": {"source": "x", "rank": 2},
			"is_stable": true
		}
	}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if e.ID != "mpf_1" || e.Type != "structures" {
		t.Errorf("unexpected id/type %q/%q", e.ID, e.Type)
	}
	if v := e.Attributes["nelements"]; v.Kind() != KindInt || v.Int64() != 1 {
		t.Errorf("nelements = %v (%s)", v.Interface(), v.Kind())
	}
	if v := e.Attributes["band_gap"]; v.Kind() != KindFloat || v.Float64() != 1.0 {
		t.Errorf("band_gap = %v (%s)", v.Interface(), v.Kind())
	}
	if v := e.Attributes["elements"]; v.Kind() != KindList || len(v.Items()) != 1 || v.Items()[0].Text() != "Ac" {
		t.Errorf("elements = %v", v.Interface())
	}
	if v := e.Attributes["_exmpl_info.rank"]; v.Kind() != KindInt || v.Int64() != 2 {
		t.Errorf("nested attribute not flattened: %v", e.Keys())
	}
	if _, ok := e.Attributes["last_modified"]; ok {
		t.Error("null attributes should be dropped")
	}
	if v := e.Attributes["is_stable"]; v.Text() != "true" {
		t.Errorf("is_stable = %v", v.Interface())
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, input := range []string{
		`{"type": "structures"}`,
		`not json`,
		`{"id": "x", "attributes": [1]}`,
	} {
		if _, err := Decode([]byte(input)); err == nil {
			t.Errorf("Decode(%s) should fail", input)
		}
	}
}

func TestDecodeKeepsStructuredLists(t *testing.T) {
	e, err := Decode([]byte(`{
		"id": "s1",
		"type": "structures",
		"attributes": {
			"elements": ["Si"],
			"species": [{"name": "Si", "chemical_symbols": ["Si"], "concentration": [1.0]}],
			"lattice_vectors": [[4.0, 0.0, 0.0], [0.0, 4.0, 0.0], [0.0, 0.0, 4.0]]
		}
	}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if _, ok := e.Attributes["species"]; ok {
		t.Error("species should not be a filterable attribute")
	}
	if _, ok := e.Opaque["lattice_vectors"]; !ok {
		t.Errorf("lattice_vectors not kept, opaque = %v", e.Opaque)
	}
	if v := e.Attributes["elements"]; v.Kind() != KindList {
		t.Errorf("elements = %v", v.Interface())
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back struct {
		Attributes struct {
			Species []struct {
				Name            string   `json:"name"`
				ChemicalSymbols []string `json:"chemical_symbols"`
			} `json:"species"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(back.Attributes.Species) != 1 || back.Attributes.Species[0].Name != "Si" || back.Attributes.Species[0].ChemicalSymbols[0] != "Si" {
		t.Errorf("species did not survive rendering: %s", data)
	}

	again, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode of rendered entry failed: %v", err)
	}
	if string(again.Opaque["species"]) != string(e.Opaque["species"]) {
		t.Errorf("species = %s, want %s", again.Opaque["species"], e.Opaque["species"])
	}

	p := e.Project([]string{"species"})
	if len(p.Attributes) != 0 || len(p.Opaque) != 1 {
		t.Errorf("Project = %+v", p)
	}
}

func TestDecodeAll(t *testing.T) {
	entries, err := DecodeAll([]byte(`[{"id": "a", "attributes": {}}, {"id": "b"}]`))
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(entries) != 2 || entries[1].ID != "b" {
		t.Errorf("DecodeAll = %v", entries)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{Int(1), Int(2), -1},
		{Int(2), Float(1.5), 1},
		{Float(2), Int(2), 0},
		{Float(math.Inf(-1)), Int(math.MinInt64), -1},
		{String("a"), String("b"), -1},
		{Int(100), String("a"), -1},
		{List(Int(1)), String("z"), 1},
	}
	for _, tt := range tests {
		got := tt.a.Compare(tt.b)
		if (got < 0) != (tt.want < 0) || (got > 0) != (tt.want > 0) {
			t.Errorf("Compare(%v, %v) = %d, want sign of %d", tt.a.Interface(), tt.b.Interface(), got, tt.want)
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	e := &Entry{ID: "x", Type: "structures", Attributes: map[string]Value{
		"elements": List(String("Si"), String("O")),
		"n":        Int(2),
		"inf":      Float(math.Inf(1)),
		"gap":      Float(2),
	}}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"id":"x","type":"structures","attributes":{"elements":["Si","O"],"gap":2.0,"inf":null,"n":2}}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if k := back.Attributes["gap"].Kind(); k != KindFloat {
		t.Errorf("integral float decoded as %s, want float", k)
	}
}

func TestProject(t *testing.T) {
	e := &Entry{ID: "x", Attributes: map[string]Value{"a": Int(1), "b": Int(2)}}
	p := e.Project([]string{"b", "missing"})
	if len(p.Attributes) != 1 || p.ID != "x" {
		t.Errorf("Project = %+v", p)
	}
	if e.Project(nil) != e {
		t.Error("Project(nil) should keep the entry")
	}
}
