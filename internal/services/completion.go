package services

import (
	"context"
	"os"
	"strings"

	"github.com/verdantcare/verdant-backend/internal/clients/openai"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

// CompletionPlan selects how many model passes a turn makes.
type CompletionPlan string

const (
	PlanSingle CompletionPlan = "single"
	PlanTwo    CompletionPlan = "two"
)

const (
	singlePassTemp  = 0.5
	draftPassTemp   = 0.6
	rewritePassTemp = 0.3

	busyMessage = "System busy. Try again in a moment."
)

const warmthRewritePrompt = "Rewrite the draft answer below in a warmer, more personal register. " +
	"Keep every medical fact, every caveat and every safety warning exactly intact. " +
	"Do not add new medical claims. Return only the rewritten answer."

// PlanForTone is the default pass count per tone; CHAT_COMPLETION_PLAN can
// force it globally ("single", "two", or "auto").
func PlanForTone(tone Tone) CompletionPlan {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("CHAT_COMPLETION_PLAN"))) {
	case string(PlanSingle):
		return PlanSingle
	case string(PlanTwo):
		return PlanTwo
	}
	if WarmthInflected(tone) {
		return PlanTwo
	}
	return PlanSingle
}

// CompletionDriver turns an assembled prompt stack into the final
// assistant answer.
type CompletionDriver interface {
	Run(ctx context.Context, tone Tone, systemPrompt, modeHeader string, history []openai.Message) (string, error)
}

type completionDriver struct {
	log *logger.Logger
	llm openai.Client
}

func NewCompletionDriver(log *logger.Logger, llm openai.Client) CompletionDriver {
	return &completionDriver{log: log.With("service", "CompletionDriver"), llm: llm}
}

func (d *completionDriver) Run(ctx context.Context, tone Tone, systemPrompt, modeHeader string, history []openai.Message) (string, error) {
	messages := make([]openai.Message, 0, len(history)+2)
	messages = append(messages,
		openai.Message{Role: "system", Content: systemPrompt},
		openai.Message{Role: "system", Content: modeHeader},
	)
	messages = append(messages, history...)

	plan := PlanForTone(tone)

	if plan == PlanSingle {
		answer, err := d.llm.Complete(ctx, messages, singlePassTemp)
		if err != nil {
			return "", upstreamBusy(err)
		}
		return answer, nil
	}

	draft, err := d.llm.Complete(ctx, messages, draftPassTemp)
	if err != nil {
		return "", upstreamBusy(err)
	}

	// The rewrite pass sees the same tone prompt and mode header so the
	// warmth layer cannot drift away from either.
	rewrite := []openai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: modeHeader},
		{Role: "user", Content: warmthRewritePrompt + "\n\nDraft:\n" + draft},
	}
	answer, err := d.llm.Complete(ctx, rewrite, rewritePassTemp)
	if err != nil {
		// The draft already holds the full medical content; losing only
		// the warmth pass is not worth a failed turn.
		d.log.Warn("warmth rewrite failed, returning draft", "error", err)
		return draft, nil
	}
	return answer, nil
}

func upstreamBusy(err error) error {
	return pkgerr.E(pkgerr.KindUpstream, busyMessage, err)
}
