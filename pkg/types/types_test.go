package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestKindStage(t *testing.T) {
	tests := []struct {
		kind Kind
		want Stage
	}{
		{KindUnexpectedSymbol, StageLex},
		{KindFormulaTooLong, StageLex},
		{KindMismatchedParens, StageParse},
		{KindNestingTooDeep, StageParse},
		{KindUnboundVariable, StageEval},
		{KindNotAnExpression, StageEval},
		{KindNotAnEquation, StageSolve},
		{KindIsolationLimit, StageSolve},
	}

	for _, tt := range tests {
		if got := tt.kind.Stage(); got != tt.want {
			t.Errorf("%s: got stage %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := fmt.Errorf("evaluating: %w", NewUnexpectedSymbolError('$', 4))
	if !errors.Is(err, ErrUnexpectedSymbol) {
		t.Error("expected errors.Is to match UnexpectedSymbol")
	}
	if errors.Is(err, ErrUnexpectedEnd) {
		t.Error("did not expect a match with UnexpectedEnd")
	}

	var te *Error
	if !errors.As(err, &te) {
		t.Fatal("expected *Error in chain")
	}
	m := te.ToMap()
	if m["kind"] != "UnexpectedSymbol" || m["stage"] != "lex" || m["position"] != 4 || m["symbol"] != "$" {
		t.Errorf("unexpected payload: %v", m)
	}

	if _, ok := NewNotAnExpressionError().ToMap()["position"]; ok {
		t.Error("position should be omitted when not applicable")
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{NewNumber(2.5), `{"type":"number","value":2.5}`},
		{NewNumber(math.Inf(1)), `{"type":"number","value":"+Inf"}`},
		{NewEquation("x = 2"), `{"text":"x = 2","type":"equation"}`},
		{Null, `{"type":"null"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.v)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.v, err)
		}
		if string(data) != tt.want {
			t.Errorf("got %s, want %s", data, tt.want)
		}

		var back Value
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !back.Equal(tt.v) {
			t.Errorf("%s: decoded %v, want %v", data, back, tt.v)
		}
	}
}

func TestValueEqualNaN(t *testing.T) {
	if !NewNumber(math.NaN()).Equal(NewNumber(math.NaN())) {
		t.Error("NaN values should compare equal")
	}
	if NewNumber(1).Equal(NewExpression("1")) {
		t.Error("values of different types should not be equal")
	}
}
