package sorterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesCategoryThroughWrapping(t *testing.T) {
	base := errors.New("power must be between 2 and 16")
	wrapped := fmt.Errorf("parse flags: %w", ConfigError("config.Parse", base))

	if !Is(wrapped, Config) {
		t.Fatalf("expected wrapped error to be categorized as Config")
	}
	if Is(wrapped, Internal) {
		t.Fatalf("did not expect wrapped error to be categorized as Internal")
	}
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("short record")
	err := InputError("input.Next", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}
