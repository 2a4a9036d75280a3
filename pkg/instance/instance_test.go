package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("AGRO_INSTANCE_ID", "kiosk-3")
	if got := GetID(); got != "kiosk-3" {
		t.Fatalf("expected kiosk-3 got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("AGRO_INSTANCE_ID", "")
	if got := GetID(); got == "" {
		t.Fatalf("expected a non-empty instance id")
	}
}
