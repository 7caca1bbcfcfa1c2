package services

import (
	"fmt"
	"strings"
)

// Tone is one of the six canonical presentation styles. Free-form aliases
// from clients are canonicalized before anything else sees them.
type Tone string

const (
	TonePlainClinical    Tone = "PlainClinical"
	ToneCaregiver        Tone = "Caregiver"
	ToneFaith            Tone = "Faith"
	ToneClinical         Tone = "Clinical"
	ToneGeriatric        Tone = "Geriatric"
	ToneEmotionalSupport Tone = "EmotionalSupport"
)

var canonicalTones = []Tone{
	TonePlainClinical,
	ToneCaregiver,
	ToneFaith,
	ToneClinical,
	ToneGeriatric,
	ToneEmotionalSupport,
}

// CanonicalTone maps any casing / snake_case / PascalCase alias onto the
// closed tone set. Unknown aliases fall back to PlainClinical; strict
// boundaries that must reject instead call KnownTone first.
func CanonicalTone(raw string) Tone {
	key := toneKey(raw)
	for _, t := range canonicalTones {
		if toneKey(string(t)) == key {
			return t
		}
	}
	return TonePlainClinical
}

// KnownTone reports whether raw canonicalizes without the fallback.
func KnownTone(raw string) bool {
	key := toneKey(raw)
	for _, t := range canonicalTones {
		if toneKey(string(t)) == key {
			return true
		}
	}
	return false
}

func toneKey(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

const basePrompt = "You are a careful medical information assistant. You help people understand " +
	"symptoms, medications, documents and care plans in plain terms. You never diagnose, " +
	"never prescribe, and always advise speaking to a clinician for decisions. " +
	"Safety warnings are never omitted or softened."

var tonePrompts = map[Tone]string{
	TonePlainClinical: "Use plain, everyday language. Short sentences. Define any medical term " +
		"you must use. Stay warm but factual.",
	ToneCaregiver: "You are speaking with a family caregiver, not the patient. Acknowledge the " +
		"caregiver's effort, give practical day-to-day guidance, and flag what should be " +
		"raised with the care team.",
	ToneFaith: "The user welcomes a faith-aware voice. You may acknowledge spiritual comfort " +
		"and practices alongside medical information, without preaching and without ever " +
		"substituting faith for medical care.",
	ToneClinical: "Use precise clinical terminology. Structured, concise, reference-style " +
		"answers for a professional reader. No simplification unless asked.",
	ToneGeriatric: "You are assisting an older adult. Larger conceptual steps, one topic at a " +
		"time, no jargon, and gentle repetition of the key point at the end.",
	ToneEmotionalSupport: "Lead with validation and reassurance. Keep medical content accurate " +
		"and complete, but wrap it in calm, supportive language and short paragraphs.",
}

var careSettingPrompts = map[string]string{
	"hospital":  "Assume the inpatient hospital setting: rounds, discharge planning, bedside questions.",
	"home":      "Assume care is happening at home: self-management, family support, when to call for help.",
	"clinic":    "Assume the outpatient clinic setting: visits, referrals, follow-up questions.",
	"long_term": "Assume a long-term care facility: staff coordination, routines, family updates.",
}

var faithSettingPrompts = map[string]string{
	"christian":  "When spiritual comfort is welcome, draw on Christian language of hope and prayer.",
	"jewish":     "When spiritual comfort is welcome, draw on Jewish tradition and community practice.",
	"muslim":     "When spiritual comfort is welcome, draw on Islamic practice and language of trust in God.",
	"interfaith": "Keep spiritual language broad and inclusive across traditions.",
}

// ComposePrompt builds the layered system prompt. It is a pure function of
// its inputs: same arguments, same string.
func ComposePrompt(tone Tone, careSetting, faithSetting, language string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(tonePrompts[tone])

	if tone == ToneClinical || tone == ToneCaregiver {
		if p, ok := careSettingPrompts[strings.ToLower(strings.TrimSpace(careSetting))]; ok {
			b.WriteString("\n")
			b.WriteString(p)
		}
	}
	if tone == ToneFaith {
		if p, ok := faithSettingPrompts[strings.ToLower(strings.TrimSpace(faithSetting))]; ok {
			b.WriteString("\n")
			b.WriteString(p)
		}
	}

	if strings.TrimSpace(language) == "" {
		language = "en-US"
	}
	b.WriteString(fmt.Sprintf("\n\nRespond in %s unless the user asks for another language.", language))
	return b.String()
}

// WarmthInflected reports whether the tone defaults to the two-pass
// completion plan.
func WarmthInflected(tone Tone) bool {
	switch tone {
	case ToneCaregiver, ToneFaith, ToneEmotionalSupport, TonePlainClinical:
		return true
	default:
		return false
	}
}
