package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/verdantcare/verdant-backend/internal/clients/gcs"
	"github.com/verdantcare/verdant-backend/internal/clients/openai"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

const (
	summarizerConcurrency = 2
	summaryInputMaxBytes  = 24 * 1024
	summaryTemp           = 0.2
)

const summarizerPrompt = "You summarize a medical document for use as conversation context. " +
	"Extract the facts a clinician or patient would need: findings, values, medications, dates, " +
	"instructions. Six sentences at most. If the document is not readable text, say so in one sentence."

// UploadedFile is one attachment from a chat turn.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileSummarizer condenses turn attachments into a single context block.
type FileSummarizer interface {
	// Summarize returns one joined summary block for the batch, or "" when
	// nothing usable came through. The turn's composed system prompt frames
	// every per-file call. A failed file degrades to a placeholder line; it
	// never fails the batch.
	Summarize(ctx context.Context, userID uuid.UUID, turnPrompt string, files []UploadedFile) (string, error)
}

type fileSummarizer struct {
	log    *logger.Logger
	llm    openai.Client
	bucket gcs.BucketService
}

func NewFileSummarizer(log *logger.Logger, llm openai.Client, bucket gcs.BucketService) FileSummarizer {
	return &fileSummarizer{log: log.With("service", "FileSummarizer"), llm: llm, bucket: bucket}
}

func (s *fileSummarizer) Summarize(ctx context.Context, userID uuid.UUID, turnPrompt string, files []UploadedFile) (string, error) {
	if len(files) == 0 {
		return "", nil
	}

	system := summarizerPrompt
	if turnPrompt != "" {
		system = turnPrompt + "\n\n" + summarizerPrompt
	}

	summaries := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summarizerConcurrency)

	for i := range files {
		i := i
		g.Go(func() error {
			summaries[i] = s.summarizeOne(gctx, userID, system, files[i])
			return nil
		})
	}
	// Goroutines never return errors; Wait only propagates context
	// cancellation through gctx.
	if err := g.Wait(); err != nil {
		return "", err
	}

	var kept []string
	for _, sum := range summaries {
		if sum != "" {
			kept = append(kept, sum)
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

func (s *fileSummarizer) summarizeOne(ctx context.Context, userID uuid.UUID, system string, f UploadedFile) string {
	s.archive(ctx, userID, f)

	text := readableText(f.Data)
	if text == "" {
		return fmt.Sprintf("%s: file contents were not readable as text.", f.Name)
	}

	user := fmt.Sprintf("Document %q (%s):\n\n%s", f.Name, f.ContentType, text)
	summary, err := s.llm.Complete(ctx, []openai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, summaryTemp)
	if err != nil {
		s.log.Warn("file summary failed", "file", f.Name, "error", err)
		return fmt.Sprintf("%s: summary unavailable.", f.Name)
	}
	return fmt.Sprintf("%s: %s", f.Name, strings.TrimSpace(summary))
}

// archive keeps the raw upload for later review. Failures are logged and
// swallowed; the turn does not depend on object storage.
func (s *fileSummarizer) archive(ctx context.Context, userID uuid.UUID, f UploadedFile) {
	if s.bucket == nil {
		return
	}
	key := fmt.Sprintf("uploads/%s/%s-%s", userID, uuid.New(), sanitizeName(f.Name))
	if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(f.Data)); err != nil {
		s.log.Warn("upload archive failed", "file", f.Name, "error", err)
	}
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func readableText(data []byte) string {
	if len(data) > summaryInputMaxBytes {
		data = data[:summaryInputMaxBytes]
	}
	if !utf8.Valid(bytes.ToValidUTF8(data, nil)) {
		return ""
	}
	text := strings.TrimSpace(string(bytes.ToValidUTF8(data, []byte(" "))))
	// A mostly-binary payload survives UTF-8 repair but carries almost no
	// letters; treat it as unreadable.
	letters := 0
	for _, r := range text {
		if r >= 'A' && r <= 'z' {
			letters++
		}
	}
	if len(text) == 0 || letters*4 < len(text) {
		return ""
	}
	return text
}
