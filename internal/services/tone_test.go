package services

import (
	"strings"
	"testing"
)

func TestCanonicalTone(t *testing.T) {
	cases := []struct {
		in   string
		want Tone
	}{
		{"PlainClinical", TonePlainClinical},
		{"plain_clinical", TonePlainClinical},
		{"plain-clinical", TonePlainClinical},
		{"PLAIN CLINICAL", TonePlainClinical},
		{"caregiver", ToneCaregiver},
		{"Faith", ToneFaith},
		{"clinical", ToneClinical},
		{"geriatric", ToneGeriatric},
		{"emotional_support", ToneEmotionalSupport},
		{"EmotionalSupport", ToneEmotionalSupport},
		{"", TonePlainClinical},
		{"something-else", TonePlainClinical},
	}
	for _, tc := range cases {
		if got := CanonicalTone(tc.in); got != tc.want {
			t.Errorf("CanonicalTone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKnownTone(t *testing.T) {
	if !KnownTone("plain_clinical") {
		t.Error("plain_clinical should be known")
	}
	if KnownTone("sarcastic") {
		t.Error("sarcastic should not be known")
	}
	if KnownTone("") {
		t.Error("empty tone should not be known")
	}
}

func TestComposePromptIsPure(t *testing.T) {
	a := ComposePrompt(ToneCaregiver, "home", "", "en-US")
	b := ComposePrompt(ToneCaregiver, "home", "", "en-US")
	if a != b {
		t.Error("same inputs produced different prompts")
	}
}

func TestComposePromptLayers(t *testing.T) {
	p := ComposePrompt(ToneCaregiver, "home", "", "es-MX")
	if !strings.Contains(p, basePrompt) {
		t.Error("prompt missing base layer")
	}
	if !strings.Contains(p, tonePrompts[ToneCaregiver]) {
		t.Error("prompt missing tone layer")
	}
	if !strings.Contains(p, careSettingPrompts["home"]) {
		t.Error("caregiver prompt missing care-setting layer")
	}
	if !strings.Contains(p, "es-MX") {
		t.Error("prompt missing language line")
	}
}

func TestComposePromptSettingGating(t *testing.T) {
	// Care settings only apply to Clinical and Caregiver.
	p := ComposePrompt(ToneFaith, "home", "", "en-US")
	if strings.Contains(p, careSettingPrompts["home"]) {
		t.Error("faith tone should not carry a care-setting layer")
	}

	// Faith settings only apply to Faith.
	p = ComposePrompt(ToneFaith, "", "christian", "en-US")
	if !strings.Contains(p, faithSettingPrompts["christian"]) {
		t.Error("faith tone should carry its faith-setting layer")
	}
	p = ComposePrompt(ToneClinical, "", "christian", "en-US")
	if strings.Contains(p, faithSettingPrompts["christian"]) {
		t.Error("clinical tone should not carry a faith-setting layer")
	}
}

func TestComposePromptDefaultLanguage(t *testing.T) {
	p := ComposePrompt(TonePlainClinical, "", "", "")
	if !strings.Contains(p, "en-US") {
		t.Error("empty language should default to en-US")
	}
}

func TestWarmthInflected(t *testing.T) {
	warm := []Tone{ToneCaregiver, ToneFaith, ToneEmotionalSupport, TonePlainClinical}
	for _, tone := range warm {
		if !WarmthInflected(tone) {
			t.Errorf("%s should be warmth-inflected", tone)
		}
	}
	for _, tone := range []Tone{ToneClinical, ToneGeriatric} {
		if WarmthInflected(tone) {
			t.Errorf("%s should not be warmth-inflected", tone)
		}
	}
}
