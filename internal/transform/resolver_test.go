package transform

import (
	"errors"
	"testing"

	"github.com/nlstn/go-optimade/internal/ast"
)

func testConfig() *Config {
	return &Config{
		Aliases: Aliases{
			Fields:  map[string]string{"formula_prototype": "formula_anonymous", "_exmpl_info": "info"},
			Lengths: map[string]string{"elements": "nelements"},
		},
		Fields: map[string]FieldSpec{
			"elements":          {Kind: KindString, List: true},
			"nelements":         {Kind: KindInt},
			"formula_prototype": {Kind: KindString},
			"_exmpl_info":       {Kind: KindString},
		},
		ProviderPrefix: "_exmpl_",
	}
}

func TestStorageName(t *testing.T) {
	cfg := testConfig()
	tests := map[string]string{
		"formula_prototype":    "formula_anonymous",
		"formula_prototypes":   "formula_prototypes",
		"formula_prototype_x":  "formula_prototype_x",
		"_exmpl_info.source":   "info.source",
		"_exmpl_infos":         "_exmpl_infos",
		"elements":             "elements",
		"_exmpl_info.a.b.c":    "info.a.b.c",
		"x.formula_prototype":  "x.formula_prototype",
		"formula_prototype.ab": "formula_anonymous.ab",
	}
	for public, want := range tests {
		if got := cfg.StorageName(public); got != want {
			t.Errorf("StorageName(%q) = %q, want %q", public, got, want)
		}
	}
	if got := cfg.PublicName("formula_anonymous"); got != "formula_prototype" {
		t.Errorf("PublicName(formula_anonymous) = %q", got)
	}
}

func TestPublicNameSharedStorage(t *testing.T) {
	cfg := &Config{Aliases: Aliases{Fields: map[string]string{
		"chemical_formula_reduced": "pretty_formula",
		"chemical_formula_hill":    "pretty_formula",
		"_exmpl_formula":           "pretty_formula",
		"info":                     "meta",
	}}}
	for i := 0; i < 50; i++ {
		if got := cfg.PublicName("pretty_formula"); got != "_exmpl_formula" {
			t.Fatalf("PublicName(pretty_formula) = %q, want _exmpl_formula", got)
		}
	}
	if got := cfg.PublicName("meta.source"); got != "info.source" {
		t.Errorf("PublicName(meta.source) = %q, want info.source", got)
	}
	if got := cfg.PublicName("nsites"); got != "nsites" {
		t.Errorf("PublicName(nsites) = %q", got)
	}
}

func TestResolveKnownAndUnknown(t *testing.T) {
	r := NewResolver(testConfig())

	f, ok, err := r.Resolve(ast.ParsePath("formula_prototype"))
	if err != nil || !ok {
		t.Fatalf("Resolve(formula_prototype) = %v, %v", ok, err)
	}
	if f.Storage != "formula_anonymous" || !f.Declared || f.Spec.Kind != KindString {
		t.Errorf("unexpected field %+v", f)
	}

	if f, ok, _ := r.Resolve(ast.ParsePath("id")); !ok || !f.Builtin() {
		t.Errorf("id should resolve as builtin, got %+v", f)
	}

	// unknown field, warn once
	for i := 0; i < 2; i++ {
		if _, ok, err := r.Resolve(ast.ParsePath("band_gap")); ok || err != nil {
			t.Fatalf("Resolve(band_gap) = %v, %v", ok, err)
		}
	}
	// other provider's field, no warning
	if _, ok, err := r.Resolve(ast.ParsePath("_other_x")); ok || err != nil {
		t.Fatalf("Resolve(_other_x) = %v, %v", ok, err)
	}

	warnings := r.Warnings()
	if len(warnings) != 1 || warnings[0].Field != "band_gap" || warnings[0].Code != WarningUnknownField {
		t.Errorf("Warnings() = %+v", warnings)
	}
}

func TestResolveStrict(t *testing.T) {
	cfg := testConfig()
	cfg.UnknownFields = UnknownFieldsError
	r := NewResolver(cfg)

	_, _, err := r.Resolve(ast.ParsePath("band_gap"))
	var ufe *UnknownFieldError
	if !errors.As(err, &ufe) || ufe.Field != "band_gap" {
		t.Fatalf("Resolve error = %v, want *UnknownFieldError", err)
	}
	if !errors.Is(err, ErrUnknownField) {
		t.Error("UnknownFieldError should match ErrUnknownField")
	}
	if _, ok, err := r.Resolve(ast.ParsePath("_other_x")); ok || err != nil {
		t.Errorf("foreign fields stay silent under the strict policy, got %v, %v", ok, err)
	}
}

func TestResolveSchemaless(t *testing.T) {
	r := NewResolver(nil)
	f, ok, err := r.Resolve(ast.ParsePath("anything.at.all"))
	if !ok || err != nil || f.Declared {
		t.Errorf("schema-less resolve = %+v, %v, %v", f, ok, err)
	}
}

func TestLengthOperand(t *testing.T) {
	r := NewResolver(testConfig())

	f, err := LengthOperand(&ast.LengthComparison{Field: ast.ParsePath("elements"), Op: ast.OpGe, Value: ast.Int(2)}, r)
	if err != nil {
		t.Fatalf("LengthOperand failed: %v", err)
	}
	if f.Storage != "nelements" || f.Spec.Kind != KindInt {
		t.Errorf("LengthOperand = %+v", f)
	}

	_, err = LengthOperand(&ast.LengthComparison{Field: ast.ParsePath("sites"), Value: ast.Int(2)}, r)
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("missing alias error = %v, want ErrNotImplemented", err)
	}

	_, err = LengthOperand(&ast.LengthComparison{Field: ast.ParsePath("elements"), Op: ast.OpNe, Value: ast.Int(2)}, r)
	var nie *NotImplementedError
	if !errors.As(err, &nie) || nie.Expr != "elements LENGTH != 2" {
		t.Errorf("!= error = %v, want NotImplementedError carrying the expression", err)
	}
}

func TestOperandChecks(t *testing.T) {
	sp := &ast.StringPredicate{Field: ast.ParsePath("formula"), Kind: ast.Contains, Value: ast.Int(1)}
	if _, err := StringOperand(sp); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("StringOperand(1) error = %v", err)
	}

	set := &ast.SetComparison{Field: ast.ParsePath("n"), Quantifier: ast.Has, Items: []ast.Item{{Op: ast.OpGt, Value: ast.Int(1)}}}
	if _, err := SetOperands(set); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("SetOperands(HAS > 1) error = %v", err)
	}

	cmp := &ast.Comparison{Field: ast.ParsePath("a"), Value: ast.Property(ast.ParsePath("b"))}
	if _, err := ScalarOperand(cmp); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("ScalarOperand(a = b) error = %v", err)
	}

	f := Field{Public: "nelements", Spec: FieldSpec{Kind: KindInt}, Declared: true}
	if err := CheckKind(cmp, f, ast.String("x")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CheckKind(int, string) error = %v", err)
	}
	if err := CheckKind(cmp, f, ast.Float(1.5)); err != nil {
		t.Errorf("CheckKind(int, float) error = %v", err)
	}

	got := Distinct([]ast.Value{ast.String("Si"), ast.String("O"), ast.String("Si")})
	if len(got) != 2 {
		t.Errorf("Distinct = %v", got)
	}
}

func TestLowerUnsupportedNode(t *testing.T) {
	_, err := Lower[int](nil, nil)
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("Lower(nil) error = %v, want ErrNotImplemented", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	bad := []*Config{
		{UnknownFields: "ignore"},
		{Aliases: Aliases{Fields: map[string]string{"id": "pk"}}},
		{Fields: map[string]FieldSpec{"x": {Kind: "bool"}}},
		{ProviderPrefix: "exmpl"},
		{Aliases: Aliases{Lengths: map[string]string{"elements": "n"}}, Fields: map[string]FieldSpec{"n": {Kind: KindString}}},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %d should be rejected", i)
		}
	}
}
