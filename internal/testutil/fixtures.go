// Package testutil provides a small structures dataset and its field
// configuration for backend and end-to-end tests.
package testutil

import (
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/transform"
)

// StructuresJSON holds twelve structures in storage form: the reduced
// formula is stored as pretty_formula. Six of them contain silicon.
const StructuresJSON = `[
  {"id": "mpf_1", "type": "structures", "attributes": {"elements": ["Ac"], "nelements": 1, "pretty_formula": "Ac", "nsites": 1, "band_gap": 0.0, "_exmpl_stability": 0.12}},
  {"id": "mpf_2", "type": "structures", "attributes": {"elements": ["Ac", "Ag", "Ir"], "nelements": 3, "pretty_formula": "AcAgIr2", "nsites": 4, "band_gap": 0.5}},
  {"id": "mpf_3", "type": "structures", "attributes": {"elements": ["Ag", "Br"], "nelements": 2, "pretty_formula": "AgBr", "nsites": 8, "band_gap": 2.5}},
  {"id": "mpf_4", "type": "structures", "attributes": {"elements": ["O", "Si"], "nelements": 2, "pretty_formula": "O2Si", "nsites": 9, "band_gap": 5.7, "_exmpl_stability": 0}},
  {"id": "mpf_5", "type": "structures", "attributes": {"elements": ["Si"], "nelements": 1, "pretty_formula": "Si", "nsites": 2, "band_gap": 1.1}},
  {"id": "mpf_6", "type": "structures", "attributes": {"elements": ["Mg", "O", "Si"], "nelements": 3, "pretty_formula": "MgO3Si", "nsites": 20, "band_gap": 4.8}},
  {"id": "mpf_7", "type": "structures", "attributes": {"elements": ["C"], "nelements": 1, "pretty_formula": "C", "nsites": 2}},
  {"id": "mpf_8", "type": "structures", "attributes": {"elements": ["Al", "O", "Si"], "nelements": 3, "pretty_formula": "Al2O5Si", "nsites": 32, "band_gap": 5.0}},
  {"id": "mpf_9", "type": "structures", "attributes": {"elements": ["Ca", "O", "Si"], "nelements": 3, "pretty_formula": "CaO3Si", "nsites": 30, "band_gap": 5.2}},
  {"id": "mpf_10", "type": "structures", "attributes": {"elements": ["Fe", "O", "Si"], "nelements": 3, "pretty_formula": "Fe2O4Si", "nsites": 28, "band_gap": 0.9}},
  {"id": "mpf_11", "type": "structures", "attributes": {"elements": ["Fe", "O"], "nelements": 2, "pretty_formula": "Fe2O3", "nsites": 10, "band_gap": 2.0}},
  {"id": "mpf_12", "type": "structures", "attributes": {"elements": ["Au"], "nelements": 1, "pretty_formula": "Au", "nsites": 1, "band_gap": 0, "_exmpl_stability": 0.3}}
]`

// SiliconIDs are the ids of the structures containing Si, in id order.
var SiliconIDs = []string{"mpf_10", "mpf_4", "mpf_5", "mpf_6", "mpf_8", "mpf_9"}

// Structures decodes StructuresJSON.
func Structures() []*entry.Entry {
	entries, err := entry.DecodeAll([]byte(StructuresJSON))
	if err != nil {
		panic(err)
	}
	return entries
}

// StructuresConfig declares the fixture fields, aliases the reduced formula
// and registers nelements as the cardinality of elements.
func StructuresConfig() *transform.Config {
	return &transform.Config{
		Aliases: transform.Aliases{
			Fields:  map[string]string{"chemical_formula_reduced": "pretty_formula"},
			Lengths: map[string]string{"elements": "nelements"},
		},
		Fields: map[string]transform.FieldSpec{
			"elements":                 {Kind: transform.KindString, List: true},
			"nelements":                {Kind: transform.KindInt},
			"chemical_formula_reduced": {Kind: transform.KindString},
			"nsites":                   {Kind: transform.KindInt},
			"band_gap":                 {Kind: transform.KindFloat},
			"_exmpl_stability":         {Kind: transform.KindFloat},
		},
		UnknownFields:  transform.UnknownFieldsWarn,
		ProviderPrefix: "_exmpl_",
	}
}
