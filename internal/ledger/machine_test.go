package ledger

import (
	"errors"
	"testing"
)

var testOrderMachine = NewMachine("order", map[Status][]Status{
	"pending":   {"shipped", "cancelled"},
	"shipped":   {"delivered", "cancelled"},
	"delivered": {},
	"cancelled": {},
})

func TestMachine_AllowedTransitions(t *testing.T) {
	got := testOrderMachine.AllowedTransitions("pending")
	if len(got) != 2 || got[0] != "shipped" || got[1] != "cancelled" {
		t.Errorf("unexpected transitions %v", got)
	}
	if got := testOrderMachine.AllowedTransitions("delivered"); len(got) != 0 {
		t.Errorf("expected terminal status to have no transitions, got %v", got)
	}
	if got := testOrderMachine.AllowedTransitions("lost"); len(got) != 0 {
		t.Errorf("expected unknown status to have no transitions, got %v", got)
	}
}

func TestMachine_AllowedTransitionsReturnsCopy(t *testing.T) {
	got := testOrderMachine.AllowedTransitions("pending")
	got[0] = "delivered"
	if testOrderMachine.CanTransition("pending", "delivered") {
		t.Error("mutating the returned slice must not change the machine")
	}
}

func TestMachine_Validate(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{"pending", "shipped", true},
		{"pending", "cancelled", true},
		{"shipped", "delivered", true},
		{"shipped", "cancelled", true},
		{"pending", "delivered", false},
		{"delivered", "cancelled", false},
		{"cancelled", "pending", false},
		{"shipped", "pending", false},
		{"pending", "pending", false},
	}
	for _, tt := range tests {
		err := testOrderMachine.Validate(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok {
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Errorf("%s -> %s: expected TransitionError, got %v", tt.from, tt.to, err)
				continue
			}
			if te.Entity != "order" || te.From != tt.from || te.To != tt.to {
				t.Errorf("unexpected error fields %+v", te)
			}
		}
	}
}

func TestMachine_Terminal(t *testing.T) {
	if !testOrderMachine.Terminal("cancelled") {
		t.Error("expected cancelled to be terminal")
	}
	if testOrderMachine.Terminal("shipped") {
		t.Error("expected shipped to not be terminal")
	}
	if testOrderMachine.Terminal("unknown") {
		t.Error("unknown statuses are not terminal")
	}
}
