package optimade

import (
	"errors"
	"strings"
	"testing"
)

func TestParseAndFormatFilter(t *testing.T) {
	e, err := ParseFilter(`elements has all "Si", "O" and not nelements>3`)
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}
	formatted := FormatFilter(e)
	again, err := ParseFilter(formatted)
	if err != nil {
		t.Fatalf("re-parsing %q failed: %v", formatted, err)
	}
	if FormatFilter(again) != formatted {
		t.Errorf("format is not stable: %q vs %q", FormatFilter(again), formatted)
	}

	empty, err := ParseFilter("")
	if err != nil || empty != nil || FormatFilter(empty) != "" {
		t.Errorf("empty filter = %v, %v", empty, err)
	}
}

func TestValidateFilter(t *testing.T) {
	if err := ValidateFilter(`nelements >= 2`); err != nil {
		t.Errorf("ValidateFilter failed: %v", err)
	}
	if err := ValidateFilter(`nelements >=`); !errors.Is(err, ErrSyntax) {
		t.Errorf("error = %v, want ErrSyntax", err)
	}
}

func TestToMongo(t *testing.T) {
	e, err := ParseFilter(`chemical_formula_reduced = "Si" AND density > 1`)
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}
	cfg := &TransformConfig{
		Aliases: Aliases{Fields: map[string]string{"chemical_formula_reduced": "pretty_formula"}},
		Fields: map[string]FieldSpec{
			"chemical_formula_reduced": {Kind: KindString},
		},
		UnknownFields: UnknownFieldsWarn,
	}

	doc, warnings, err := ToMongo(e, cfg)
	if err != nil {
		t.Fatalf("ToMongo failed: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Field != "density" {
		t.Errorf("warnings = %+v", warnings)
	}
	if _, ok := doc["$and"]; !ok {
		t.Errorf("document = %v, want an $and", doc)
	}

	cfg.UnknownFields = UnknownFieldsError
	if _, _, err := ToMongo(e, cfg); !errors.Is(err, ErrUnknownField) {
		t.Errorf("error = %v, want ErrUnknownField", err)
	}
}

func TestToSQL(t *testing.T) {
	e, err := ParseFilter(`nelements = 2`)
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}
	cond, warnings, err := ToSQL(e, &TransformConfig{Fields: map[string]FieldSpec{"nelements": {Kind: KindInt}}})
	if err != nil {
		t.Fatalf("ToSQL failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %+v", warnings)
	}
	if !strings.Contains(cond.SQL, "integer_attributes") || len(cond.Args) == 0 {
		t.Errorf("condition = %+v", cond)
	}
}
