package cppdbc

import "testing"

func TestValueIsNull(t *testing.T) {
	if !valueIsNull(NewValue(nil)) {
		t.Fatalf("expected nil-backed value to be null")
	}
	if valueIsNull(NewValue(5)) {
		t.Fatalf("expected non-nil value not to be null")
	}
}

func TestValueBooleanTextualTruthiness(t *testing.T) {
	cases := map[string]bool{
		"1":    true,
		"true": true,
		"TRUE": true,
		"True": true,
		"0":    false,
		"no":   false,
		"":     false,
	}
	for raw, want := range cases {
		got := valueBoolean(NewValue(raw))
		if got != want {
			t.Errorf("valueBoolean(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestValueBooleanNumeric(t *testing.T) {
	if !valueBoolean(NewValue(int64(3))) {
		t.Fatalf("expected nonzero numeric value to be truthy")
	}
	if valueBoolean(NewValue(int64(0))) {
		t.Fatalf("expected zero numeric value to be falsy")
	}
}

func TestValueCoercionOnNull(t *testing.T) {
	null := NewValue(nil)
	if valueInt(null) != 0 {
		t.Fatalf("expected valueInt(null) == 0")
	}
	if valueDouble(null) != 0 {
		t.Fatalf("expected valueDouble(null) == 0")
	}
	if valueString(null) != "" {
		t.Fatalf("expected valueString(null) == \"\"")
	}
	if valueBoolean(null) {
		t.Fatalf("expected valueBoolean(null) == false")
	}
}
