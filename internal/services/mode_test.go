package services

import (
	"strings"
	"testing"
	"time"
)

func TestClassifyMode(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		message     string
		attachments bool
		mem         SoftMemory
		want        ResponseMode
	}{
		{
			name:    "short affirmation is quick",
			message: "ok thanks",
			want:    ModeQuick,
		},
		{
			name:    "short interrogative is not quick",
			message: "what is metformin",
			want:    ModeExplain,
		},
		{
			name:        "attachments force full",
			message:     "ok",
			attachments: true,
			want:        ModeFull,
		},
		{
			name:    "explain cue wins",
			message: "can you explain this lab result in plain english for me please",
			want:    ModeExplain,
		},
		{
			name:    "long message is full",
			message: strings.Repeat("my symptoms have been getting worse over the last weeks ", 7),
			want:    ModeFull,
		},
		{
			name:    "many clauses are full",
			message: "I woke up dizzy today, my vision was blurry, my hands were shaking, and I could not stand up straight without holding the wall",
			want:    ModeFull,
		},
		{
			name:    "recent mode is inherited",
			message: "and the second medication they gave me at the pharmacy last week",
			mem:     SoftMemory{LastMode: "FULL", LastTS: now.Add(-5 * time.Minute)},
			want:    ModeFull,
		},
		{
			name:    "stale mode is not inherited",
			message: "and the second medication they gave me at the pharmacy last week",
			mem:     SoftMemory{LastMode: "FULL", LastTS: now.Add(-15 * time.Minute)},
			want:    ModeExplain,
		},
		{
			name:    "ten declarative tokens stay quick",
			message: "the nurse mentioned my blood pressure reading seemed somewhat elevated",
			want:    ModeQuick,
		},
		{
			name:    "default is explain",
			message: "the nurse mentioned my blood pressure reading from this morning seemed somewhat elevated compared to before",
			want:    ModeExplain,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := ClassifyMode(tc.message, tc.attachments, tc.mem, now)
			if got != tc.want {
				t.Errorf("ClassifyMode(%q) = %s, want %s", tc.message, got, tc.want)
			}
		})
	}
}

func TestClassifyModeIsDeterministic(t *testing.T) {
	now := time.Now()
	msg := "what should I ask my doctor about these side effects"
	a, hintA := ClassifyMode(msg, false, SoftMemory{}, now)
	b, hintB := ClassifyMode(msg, false, SoftMemory{}, now)
	if a != b || hintA != hintB {
		t.Error("same inputs classified differently")
	}
}

func TestTopicHint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"what is metformin used for", "metformin used"},
		{"my knee pain got worse", "knee pain got"},
		{"ok", ""},
	}
	for _, tc := range cases {
		if got := topicHint(tc.in); got != tc.want {
			t.Errorf("topicHint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
