package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain", err: errors.New("boom"), want: ExitFailure},
		{name: "transient", err: Transient("smtp send", errors.New("connection reset")), want: ExitTempFail},
		{name: "wrapped transient", err: fmt.Errorf("discover: %w", Transient("search", errors.New("timeout"))), want: ExitTempFail},
		{name: "configuration", err: Missing("smtp.host"), want: ExitConfig},
		{name: "configuration beats transient", err: errors.Join(Transient("search", errors.New("x")), Missing("reviewer.email")), want: ExitConfig},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTransientNil(t *testing.T) {
	t.Parallel()
	if err := Transient("op", nil); err != nil {
		t.Fatalf("Transient(nil) = %v, want nil", err)
	}
}

func TestTransientUnwrap(t *testing.T) {
	t.Parallel()
	base := errors.New("dial tcp: i/o timeout")
	err := Transient("fetch", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to reach wrapped error")
	}
	if got := err.Error(); got != "transient i/o failure during fetch: dial tcp: i/o timeout" {
		t.Fatalf("unexpected message %q", got)
	}
}
