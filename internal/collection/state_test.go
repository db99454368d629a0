package collection

import (
	"errors"
	"testing"

	"github.com/nlstn/go-optimade/internal/testutil"
)

func TestStateNames(t *testing.T) {
	tests := []struct {
		state      State
		name, verb string
	}{
		{StateReceived, "received", "receive"},
		{StateParsed, "parsed", "parse"},
		{StateTransformed, "transformed", "transform"},
		{StateExecuted, "executed", "execute"},
		{StatePaginated, "paginated", "paginate"},
		{StateResponded, "responded", "respond"},
		{State(42), "unknown", "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := tt.state.Verb(); got != tt.verb {
			t.Errorf("Verb() = %q, want %q", got, tt.verb)
		}
	}
}

func TestStepError(t *testing.T) {
	err := &StepError{Step: StateExecuted, Err: ErrInvalidSort}
	if err.Error() != "execute: invalid sort parameter" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidSort) {
		t.Error("StepError should unwrap")
	}
}

func TestAdvancePanicsOnSkippedState(t *testing.T) {
	q := &query{state: StateReceived}
	defer func() {
		if recover() == nil {
			t.Error("skipping a state should panic")
		}
	}()
	q.advance(StateTransformed)
}

func TestParseSort(t *testing.T) {
	cfg := testutil.StructuresConfig()

	keys, err := parseSort("-nelements, chemical_formula_reduced", cfg)
	if err != nil {
		t.Fatalf("parseSort failed: %v", err)
	}
	if got := formatSort(keys); got != "-nelements,chemical_formula_reduced,id" {
		t.Errorf("formatSort = %q", got)
	}
	if keys[1].Field.Storage != "pretty_formula" {
		t.Errorf("storage = %q, want pretty_formula", keys[1].Field.Storage)
	}

	keys, err = parseSort("-id", cfg)
	if err != nil {
		t.Fatalf("parseSort failed: %v", err)
	}
	if len(keys) != 1 || !keys[0].Descending {
		t.Errorf("explicit id key should not get a tie breaker: %v", keys)
	}

	for _, bad := range []string{",", "-", "nsites,,id", "_other_x"} {
		if _, err := parseSort(bad, cfg); !errors.Is(err, ErrInvalidSort) {
			t.Errorf("parseSort(%q) error = %v, want ErrInvalidSort", bad, err)
		}
	}
}

func TestWindow(t *testing.T) {
	c := &Collection{opts: Options{DefaultPageLimit: 20, MaxPageLimit: 50}}
	limit, offset, err := c.window(Request{PageOffset: 5}, false)
	if err != nil || limit != 20 || offset != 5 {
		t.Errorf("window = %d, %d, %v", limit, offset, err)
	}
	if _, _, err := c.window(Request{PageLimit: 51}, false); !errors.Is(err, ErrPageLimitExceeded) {
		t.Errorf("error = %v, want ErrPageLimitExceeded", err)
	}

	small := &Collection{opts: Options{DefaultPageLimit: 1, MaxPageLimit: 1}}
	if limit, _, err := small.window(Request{PageLimit: 2}, true); err != nil || limit != 2 {
		t.Errorf("lookup window = %d, %v, want 2 and no error", limit, err)
	}
}
