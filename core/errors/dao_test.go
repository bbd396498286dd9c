package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeUnwrapsPackageErrors(t *testing.T) {
	wrapped := fmt.Errorf("funding: pull token: %w", ErrTransferNotAuthorized)
	if got := Code(wrapped); got != CodeTransferNotAuthorized {
		t.Fatalf("unexpected code %q", got)
	}
	if wrapped.Error() != "funding: pull token: ERC20 transfer not allowed" {
		t.Fatalf("message must keep the stable suffix, got %q", wrapped.Error())
	}
}

func TestCodeFallbacks(t *testing.T) {
	if Code(nil) != "" {
		t.Fatalf("nil error must have no code")
	}
	if Code(stderrors.New("disk on fire")) != CodeInternal {
		t.Fatalf("unclassified errors must map to %s", CodeInternal)
	}
}

func TestCodesAreDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, entry := range codes {
		if seen[entry.code] {
			t.Fatalf("duplicate code %s", entry.code)
		}
		seen[entry.code] = true
	}
}
