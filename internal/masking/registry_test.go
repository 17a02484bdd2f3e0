package masking

import (
	"errors"
	"testing"
)

// TestRegister covers custom-pattern validation and the error kinds.
func TestRegister(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		reg := NewRegistry()
		cp, err := reg.Register(CustomPatternSpec{
			Name:        "Ticket ID",
			Pattern:     `TCK-\d{6}`,
			Replacement: "[TICKET]",
		})
		if err != nil {
			t.Fatalf("Failed to register valid pattern: %v", err)
		}
		if cp.ID == "" {
			t.Error("Registered pattern has no id")
		}
		if !cp.Enabled {
			t.Error("Enabled should default to true")
		}
		if cp.Severity != SeverityMedium {
			t.Errorf("Severity should default to medium, got %s", cp.Severity)
		}
		if cp.CreatedAt.IsZero() || cp.UpdatedAt.IsZero() {
			t.Error("Timestamps not set")
		}
		if len(reg.List()) != 1 {
			t.Errorf("Registry should hold 1 pattern, has %d", len(reg.List()))
		}
	})

	t.Run("InvalidRegex", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register(CustomPatternSpec{
			Name: "Broken", Pattern: `[unclosed`, Replacement: "[BROKEN]",
		})
		if !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Expected ErrInvalidPattern, got %v", err)
		}
		if len(reg.List()) != 0 {
			t.Error("Rejected pattern was stored")
		}
	})

	t.Run("EmptyStringMatcherRejected", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register(CustomPatternSpec{
			Name: "Star", Pattern: `x*`, Replacement: "[STAR]",
		})
		if !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Expected ErrInvalidPattern for empty-string matcher, got %v", err)
		}
	})

	t.Run("UnknownFlag", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register(CustomPatternSpec{
			Name: "Flagged", Pattern: `f-\d+`, Flags: "gx", Replacement: "[FLAGGED]",
		})
		if !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Expected ErrInvalidPattern for unknown flag, got %v", err)
		}
	})

	t.Run("FlagsNormalized", func(t *testing.T) {
		reg := NewRegistry()
		cp, err := reg.Register(CustomPatternSpec{
			Name: "Case Insensitive", Pattern: `ticket-[a-z]{4}`, Flags: "gi",
			Replacement: "[CI_TICKET]",
		})
		if err != nil {
			t.Fatalf("Failed to register: %v", err)
		}
		if cp.Flags != "i" {
			t.Errorf("Expected normalized flags %q, got %q", "i", cp.Flags)
		}

		cfg := Config{CustomPatterns: reg.Enabled()}
		if matches := Detect("see TICKET-ABCD", cfg); len(matches) != 1 {
			t.Errorf("Case-insensitive flag not applied, got %d matches", len(matches))
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		reg := NewRegistry()
		specs := []CustomPatternSpec{
			{Pattern: `a+b`, Replacement: "[X]"},
			{Name: "No Pattern", Replacement: "[X]"},
			{Name: "No Replacement", Pattern: `a+b`},
		}
		for i, spec := range specs {
			if _, err := reg.Register(spec); !errors.Is(err, ErrInvalidPattern) {
				t.Errorf("Spec %d: expected ErrInvalidPattern, got %v", i, err)
			}
		}
	})

	t.Run("DuplicateNameCaseInsensitive", func(t *testing.T) {
		reg := NewRegistry()
		if _, err := reg.Register(CustomPatternSpec{
			Name: "Ticket ID", Pattern: `TCK-\d{6}`, Replacement: "[TICKET]",
		}); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		_, err := reg.Register(CustomPatternSpec{
			Name: "ticket id", Pattern: `TK2-\d{6}`, Replacement: "[TICKET2]",
		})
		if !errors.Is(err, ErrDuplicatePattern) {
			t.Errorf("Expected ErrDuplicatePattern for name collision, got %v", err)
		}
	})

	t.Run("DuplicateRegexAndFlags", func(t *testing.T) {
		reg := NewRegistry()
		if _, err := reg.Register(CustomPatternSpec{
			Name: "First", Pattern: `TCK-\d{6}`, Flags: "i", Replacement: "[FIRST]",
		}); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		// The global flag is implicit, so "gi" collides with "i".
		_, err := reg.Register(CustomPatternSpec{
			Name: "Second", Pattern: `TCK-\d{6}`, Flags: "gi", Replacement: "[SECOND]",
		})
		if !errors.Is(err, ErrDuplicatePattern) {
			t.Errorf("Expected ErrDuplicatePattern for regex collision, got %v", err)
		}

		// Same source with different flags is a different pattern.
		if _, err := reg.Register(CustomPatternSpec{
			Name: "Third", Pattern: `TCK-\d{6}`, Replacement: "[THIRD]",
		}); err != nil {
			t.Errorf("Same source with different flags should register: %v", err)
		}
	})

	t.Run("DuplicateReplacementLeavesRegistryUnchanged", func(t *testing.T) {
		reg := NewRegistry()
		first, err := reg.Register(CustomPatternSpec{
			Name: "First", Pattern: `AA-\d{4}`, Replacement: "[SHARED]",
		})
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		_, err = reg.Register(CustomPatternSpec{
			Name: "Second", Pattern: `BB-\d{4}`, Replacement: "[SHARED]",
		})
		if !errors.Is(err, ErrDuplicatePattern) {
			t.Errorf("Expected ErrDuplicatePattern for replacement collision, got %v", err)
		}
		list := reg.List()
		if len(list) != 1 || list[0].ID != first.ID || list[0].Name != "First" {
			t.Errorf("Registry changed by rejected registration: %+v", list)
		}
	})

	t.Run("BuiltinLabelReserved", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register(CustomPatternSpec{
			Name: "Fake AWS", Pattern: `FAKE-\d{4}`, Replacement: "[AWS_KEY]",
		})
		if !errors.Is(err, ErrDuplicatePattern) {
			t.Errorf("Expected ErrDuplicatePattern for built-in label, got %v", err)
		}
	})
}

// TestRegistryMutations covers update, delete, toggle, and usage counters.
func TestRegistryMutations(t *testing.T) {
	seed := func(t *testing.T) (*Registry, CustomPattern) {
		t.Helper()
		reg := NewRegistry()
		cp, err := reg.Register(CustomPatternSpec{
			Name: "Ticket ID", Pattern: `TCK-\d{6}`, Replacement: "[TICKET]",
		})
		if err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		return reg, cp
	}

	t.Run("Update", func(t *testing.T) {
		reg, cp := seed(t)
		updated, err := reg.Update(cp.ID, CustomPatternSpec{
			Name: "Ticket Reference", Pattern: `TCK-\d{8}`, Replacement: "[TICKET]",
			Severity: SeverityHigh, Priority: 12,
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.ID != cp.ID {
			t.Error("Update changed the id")
		}
		if updated.Name != "Ticket Reference" || updated.Priority != 12 {
			t.Errorf("Update not applied: %+v", updated)
		}
		if !updated.CreatedAt.Equal(cp.CreatedAt) {
			t.Error("Update changed the creation time")
		}
	})

	t.Run("UpdateKeepsOwnReplacement", func(t *testing.T) {
		reg, cp := seed(t)
		// Re-submitting the same replacement must not collide with itself.
		if _, err := reg.Update(cp.ID, CustomPatternSpec{
			Name: "Ticket ID", Pattern: `TCK-\d{7}`, Replacement: "[TICKET]",
		}); err != nil {
			t.Errorf("Self-collision on update: %v", err)
		}
	})

	t.Run("UpdateUnknownID", func(t *testing.T) {
		reg, _ := seed(t)
		_, err := reg.Update("custom_missing", CustomPatternSpec{
			Name: "X", Pattern: `x-\d+`, Replacement: "[XX]",
		})
		if !errors.Is(err, ErrPatternNotFound) {
			t.Errorf("Expected ErrPatternNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		reg, cp := seed(t)
		if err := reg.Delete(cp.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if len(reg.List()) != 0 {
			t.Error("Pattern still present after delete")
		}
		if err := reg.Delete(cp.ID); !errors.Is(err, ErrPatternNotFound) {
			t.Errorf("Expected ErrPatternNotFound on second delete, got %v", err)
		}
	})

	t.Run("Toggle", func(t *testing.T) {
		reg, cp := seed(t)
		if err := reg.SetEnabled(cp.ID, false); err != nil {
			t.Fatalf("Disable failed: %v", err)
		}
		if len(reg.Enabled()) != 0 {
			t.Error("Disabled pattern still in enabled set")
		}
		if err := reg.SetEnabled(cp.ID, true); err != nil {
			t.Fatalf("Enable failed: %v", err)
		}
		if len(reg.Enabled()) != 1 {
			t.Error("Enabled pattern missing from enabled set")
		}
		if err := reg.SetEnabled("custom_missing", true); !errors.Is(err, ErrPatternNotFound) {
			t.Errorf("Expected ErrPatternNotFound, got %v", err)
		}
	})

	t.Run("RecordUsage", func(t *testing.T) {
		reg, cp := seed(t)
		reg.RecordUsage(map[string]int{cp.ID: 3, "custom_unknown": 5})
		got, err := reg.Get(cp.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.UsageCount != 3 {
			t.Errorf("Expected usage count 3, got %d", got.UsageCount)
		}
		reg.RecordUsage(map[string]int{cp.ID: 2})
		got, _ = reg.Get(cp.ID)
		if got.UsageCount != 5 {
			t.Errorf("Expected accumulated usage count 5, got %d", got.UsageCount)
		}
	})

	t.Run("ListReturnsCopy", func(t *testing.T) {
		reg, cp := seed(t)
		list := reg.List()
		list[0].Name = "mutated"
		got, _ := reg.Get(cp.ID)
		if got.Name != "Ticket ID" {
			t.Error("List exposed internal storage")
		}
	})
}

// TestRegistryEndToEnd registers a pattern and runs it through masking.
func TestRegistryEndToEnd(t *testing.T) {
	reg := NewRegistry()
	cp, err := reg.Register(CustomPatternSpec{
		Name: "Build Token", Pattern: `bt_[a-f0-9]{16}`, Replacement: "[BUILD_TOKEN]",
		Severity: SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cfg := Config{CustomPatterns: reg.Enabled()}
	result := Mask("publish with bt_0123456789abcdef now", cfg)
	if result.Masked != "publish with [BUILD_TOKEN] now" {
		t.Errorf("Unexpected masked text: %q", result.Masked)
	}
	if result.CustomCounts[cp.ID] != 1 {
		t.Errorf("Expected usage tally for %s, got %+v", cp.ID, result.CustomCounts)
	}

	reg.RecordUsage(result.CustomCounts)
	stored, _ := reg.Get(cp.ID)
	if stored.UsageCount != 1 {
		t.Errorf("Usage counter not recorded, got %d", stored.UsageCount)
	}
}
