package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseChangedFiles_MixedShapes(t *testing.T) {
	raw := []byte(`["apps/web/page.tsx", {"path": "libs/ui/button.tsx"}, {"other": 1}, "  ", 42]`)

	got, err := ParseChangedFiles(raw)
	if err != nil {
		t.Fatalf("ParseChangedFiles error: %v", err)
	}
	want := []string{"apps/web/page.tsx", "libs/ui/button.tsx"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseChangedFiles mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChangedFiles_Empty(t *testing.T) {
	got, err := ParseChangedFiles(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestParseChangedFiles_NotArray(t *testing.T) {
	if _, err := ParseChangedFiles([]byte(`{"path":"x"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}

func TestNormalizeTitle(t *testing.T) {
	a := NormalizeTitle("  Work on   apps/Foo ")
	b := NormalizeTitle("work ON apps/foo")
	if a != b {
		t.Errorf("normalized titles differ: %q vs %q", a, b)
	}
}

func TestActiveWorkPolicy_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ActiveWorkPolicy
		want ActiveWorkPolicy
	}{
		{"zero gets defaults", ActiveWorkPolicy{}, ActiveWorkPolicy{StaleDays: 14, AutoCloseDays: 45}},
		{"negative clamps to 1", ActiveWorkPolicy{StaleDays: -3, AutoCloseDays: -1, AutoCloseEnabled: true}, ActiveWorkPolicy{StaleDays: 1, AutoCloseDays: 1, AutoCloseEnabled: true}},
		{"huge clamps to 3650", ActiveWorkPolicy{StaleDays: 99999, AutoCloseDays: 4000}, ActiveWorkPolicy{StaleDays: 3650, AutoCloseDays: 3650}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	if ParseCategory("SECURITY") != CategorySecurity {
		t.Error("ParseCategory should be case-insensitive")
	}
	if ParseCategory("unknown") != CategoryOther {
		t.Error("unknown category should map to other")
	}
	if ParseSeverity("") != SeverityMedium {
		t.Error("empty severity should default to medium")
	}
	if _, err := ParseScope("team"); err == nil {
		t.Error("expected error for invalid scope")
	}
	if _, err := ParseEventType("post_push"); err == nil {
		t.Error("expected error for invalid event type")
	}
}
