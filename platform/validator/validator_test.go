package validator

import (
	"errors"
	"testing"
)

type itemPayload struct {
	ItemName string `json:"itemName" validate:"notblank,max=10"`
}

type reportPayload struct {
	Items  []itemPayload `json:"items" validate:"required,min=1,dive"`
	Notes  string        `json:"notes,omitempty" validate:"max=5"`
	Hidden string        `json:"-" validate:"max=1"`
}

func TestFieldErrorsUseJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(reportPayload{
		Items: []itemPayload{{ItemName: "   "}, {ItemName: "way too long name"}},
		Notes: "longer than five",
	})

	got := FieldErrors(err)
	want := map[string]string{
		"items[0].itemName": "notblank",
		"items[1].itemName": "max=10",
		"notes":             "max=5",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for field, rule := range want {
		if got[field] != rule {
			t.Errorf("%s: expected %q, got %q", field, rule, got[field])
		}
	}
}

func TestValidPayloadPasses(t *testing.T) {
	if err := New().Struct(reportPayload{Items: []itemPayload{{ItemName: "sofa"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	if FieldErrors(errors.New("boom")) != nil {
		t.Fatal("expected nil for non-validation errors")
	}
}
