package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("session %s not found", "x"), KindNotFound},
		{"forbidden", Forbidden("nope"), KindForbidden},
		{"invalid state", InvalidState("cannot start a %s session", "completed"), KindInvalidState},
		{"capacity", CapacityExceeded("full"), KindCapacityExceeded},
		{"provider", Provider(errors.New("boom"), "start room"), KindProvider},
		{"plain error", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("join session: %w", Forbidden("invalid passcode"))
	if !IsKind(err, KindForbidden) {
		t.Error("kind should survive wrapping with %w")
	}
}

func TestProviderUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Provider(cause, "create room")
	if !errors.Is(err, cause) {
		t.Error("provider error should unwrap to its cause")
	}
	if err.Error() != "create room: dial tcp: refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindNotFound:         "not_found",
		KindForbidden:        "forbidden",
		KindInvalidState:     "invalid_state",
		KindCapacityExceeded: "capacity_exceeded",
		KindProvider:         "provider_error",
		KindUnknown:          "internal",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
