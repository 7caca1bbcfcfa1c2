package services

import (
	"strings"

	types "github.com/verdantcare/verdant-backend/internal/domain"
)

// VerbosityBias is the coarse length preference handed to the prompt.
type VerbosityBias string

const (
	BiasLow    VerbosityBias = "LOW"
	BiasMedium VerbosityBias = "MEDIUM"
	BiasHigh   VerbosityBias = "HIGH"
)

const (
	styleLowCut  = 0.3
	styleHighCut = 0.7
)

// ResolveStyle maps the interaction profile to additive style instructions.
// Instructions only ever layer on top of the tone and mode; emotional
// support lines add reassurance language but never touch medical framing.
func ResolveStyle(p *types.InteractionProfile) ([]string, VerbosityBias) {
	if p == nil {
		return nil, BiasMedium
	}

	var out []string
	bias := BiasMedium

	switch {
	case p.Verbosity < styleLowCut:
		out = append(out, "Keep answers brief; lead with the single most important point.")
		bias = BiasLow
	case p.Verbosity > styleHighCut:
		out = append(out, "The user reads longer answers comfortably; elaborate where it helps.")
		bias = BiasHigh
	}

	switch {
	case p.EmotionalSupport > styleHighCut:
		out = append(out,
			"Open with a brief acknowledgement of how the user may be feeling before the facts.",
			"Offer reassurance where it is medically honest to do so.")
	case p.EmotionalSupport < styleLowCut:
		out = append(out, "Skip emotional framing; the user prefers matter-of-fact replies.")
	}

	switch {
	case p.StructurePreference > styleHighCut:
		out = append(out, "Prefer short bulleted structure over paragraphs.")
	case p.StructurePreference < styleLowCut:
		out = append(out, "Prefer flowing prose over lists.")
	}

	switch {
	case p.TechnicalDepth > styleHighCut:
		out = append(out, "The user is comfortable with clinical terminology; do not over-simplify.")
	case p.TechnicalDepth < styleLowCut:
		out = append(out, "Avoid jargon entirely; use everyday words and concrete examples.")
	}

	switch {
	case p.Pacing > styleHighCut:
		out = append(out, "Expect follow-up questions; it is fine to leave depth for the next turn.")
	case p.Pacing < styleLowCut:
		out = append(out, "This may be the only exchange; make the answer self-contained.")
	}

	return out, bias
}

// StyleDirective folds the resolved instructions into one system-level
// block, appended to the composed prompt so the leading system pair stays a
// pair.
func StyleDirective(instructions []string, bias VerbosityBias) string {
	if len(instructions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Style notes (additive, never override safety or tone): ")
	b.WriteString(string(bias))
	b.WriteString(" verbosity.")
	for _, in := range instructions {
		b.WriteString("\n- ")
		b.WriteString(in)
	}
	return b.String()
}
