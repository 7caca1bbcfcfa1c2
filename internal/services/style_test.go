package services

import (
	"strings"
	"testing"

	types "github.com/verdantcare/verdant-backend/internal/domain"
)

func neutralStyleProfile() *types.InteractionProfile {
	return &types.InteractionProfile{
		Verbosity:           0.5,
		EmotionalSupport:    0.5,
		StructurePreference: 0.5,
		TechnicalDepth:      0.5,
		Pacing:              0.5,
	}
}

func TestResolveStyleMiddleBandIsSilent(t *testing.T) {
	instructions, bias := ResolveStyle(neutralStyleProfile())
	if len(instructions) != 0 {
		t.Errorf("neutral profile emitted %d instructions", len(instructions))
	}
	if bias != BiasMedium {
		t.Errorf("bias = %s, want MEDIUM", bias)
	}
}

func TestResolveStyleVerbosityBias(t *testing.T) {
	p := neutralStyleProfile()
	p.Verbosity = 0.1
	_, bias := ResolveStyle(p)
	if bias != BiasLow {
		t.Errorf("bias = %s, want LOW", bias)
	}

	p.Verbosity = 0.9
	_, bias = ResolveStyle(p)
	if bias != BiasHigh {
		t.Errorf("bias = %s, want HIGH", bias)
	}
}

func TestResolveStyleThresholdsExclusive(t *testing.T) {
	// Exactly 0.3 and 0.7 sit in the middle band.
	p := neutralStyleProfile()
	p.Verbosity = 0.3
	p.TechnicalDepth = 0.7
	instructions, bias := ResolveStyle(p)
	if len(instructions) != 0 || bias != BiasMedium {
		t.Errorf("boundary values should emit nothing, got %v / %s", instructions, bias)
	}
}

func TestResolveStyleEmotionalSupportIsAdditive(t *testing.T) {
	p := neutralStyleProfile()
	p.EmotionalSupport = 0.9
	instructions, _ := ResolveStyle(p)
	if len(instructions) == 0 {
		t.Fatal("high emotional support emitted nothing")
	}
	for _, in := range instructions {
		lower := strings.ToLower(in)
		if strings.Contains(lower, "omit") || strings.Contains(lower, "diagnos") {
			t.Errorf("emotional-support instruction touches medical framing: %q", in)
		}
	}
}

func TestResolveStyleNilProfile(t *testing.T) {
	instructions, bias := ResolveStyle(nil)
	if instructions != nil || bias != BiasMedium {
		t.Error("nil profile should be silent with MEDIUM bias")
	}
}

func TestStyleDirective(t *testing.T) {
	if StyleDirective(nil, BiasMedium) != "" {
		t.Error("no instructions should produce no directive")
	}
	d := StyleDirective([]string{"Prefer flowing prose over lists."}, BiasLow)
	if !strings.Contains(d, "LOW") || !strings.Contains(d, "flowing prose") {
		t.Errorf("directive missing content: %q", d)
	}
}
