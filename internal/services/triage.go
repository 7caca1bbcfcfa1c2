package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/verdantcare/verdant-backend/internal/clients/openai"
	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/repos"
)

//go:embed triage_slots.yaml
var triageSlotsYAML []byte

type triageSlotDef struct {
	Name         string   `yaml:"name"`
	Question     string   `yaml:"question"`
	QuickOptions []string `yaml:"quick_options"`
}

type triageConfig struct {
	Slots           []triageSlotDef     `yaml:"slots"`
	DangerTerms     []string            `yaml:"danger_terms"`
	NegativeAnswers []string            `yaml:"negative_answers"`
	Keywords        map[string][]string `yaml:"keywords"`
	Locations       []string            `yaml:"locations"`
}

func loadTriageConfig() (*triageConfig, error) {
	var cfg triageConfig
	if err := yaml.Unmarshal(triageSlotsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse triage slot config: %w", err)
	}
	if len(cfg.Slots) == 0 {
		return nil, fmt.Errorf("triage slot config has no slots")
	}
	return &cfg, nil
}

// TriageFields is the structured intake the slot machine fills.
type TriageFields struct {
	Complaint string   `json:"complaint,omitempty"`
	RedFlags  []string `json:"red_flags,omitempty"`
	Duration  string   `json:"duration,omitempty"`
	Severity  string   `json:"severity,omitempty"`
	Location  string   `json:"location,omitempty"`
	Onset     string   `json:"onset,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// TriageMessage is one transcript record carried between kiosk turns.
type TriageMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TriageTurnInput struct {
	Message string
	History []TriageMessage
	Fields  TriageFields
}

type TriageTurnResult struct {
	Assistant    string       `json:"assistant"`
	Fields       TriageFields `json:"fields"`
	Slot         *string      `json:"slot"`
	NextQuestion *string      `json:"next_question"`
	QuickOptions []string     `json:"quick_options"`
	Done         bool         `json:"done"`
	Escalate     bool         `json:"escalate"`
}

type TriagePatientInput struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	MRN       string
	Insurer   string
	DOB       *time.Time
}

type TriageSubmitInput struct {
	Message string
	History []TriageMessage
	Fields  TriageFields
	Patient *TriagePatientInput

	// KioskOrg is the organization bound by a presented kiosk token;
	// uuid.Nil when the request carried none.
	KioskOrg uuid.UUID
	// UserID identifies a signed-in staff actor, uuid.Nil for kiosks.
	UserID uuid.UUID
}

type TriageVerdict struct {
	Acuity      string   `json:"acuity"`
	RedFlags    []string `json:"red_flags"`
	NextSteps   []string `json:"next_steps"`
	OneSentence string   `json:"one_sentence"`
}

type TriageSubmitResult struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	TriageVerdict
}

type TriageService interface {
	Turn(ctx context.Context, input TriageTurnInput) (*TriageTurnResult, error)
	Submit(ctx context.Context, input TriageSubmitInput) (*TriageSubmitResult, error)
}

type triageService struct {
	log        *logger.Logger
	cfg        *triageConfig
	llm        openai.Client
	orgs       repos.OrgRepo
	patients   repos.PatientRepo
	encounters repos.EncounterRepo
}

func NewTriageService(log *logger.Logger, llm openai.Client, orgs repos.OrgRepo, patients repos.PatientRepo, encounters repos.EncounterRepo) (TriageService, error) {
	cfg, err := loadTriageConfig()
	if err != nil {
		return nil, err
	}
	return &triageService{
		log:        log.With("service", "TriageService"),
		cfg:        cfg,
		llm:        llm,
		orgs:       orgs,
		patients:   patients,
		encounters: encounters,
	}, nil
}

const (
	escalationMessage = "Some of what you described can be serious. Please tell the front desk right now, " +
		"or call emergency services if you are alone. You do not need to answer more questions."
	triageClosing = "Thank you, I have what the care team needs. Please take a seat and the front desk will call you."

	oneSentenceMax = 160
	reasonMax      = 255
	triageLLMTemp  = 0.2

	fallbackReason = "Patient-reported symptoms"
)

const triageExtractorPrompt = "You extract clinical intake fields from one kiosk message. " +
	"Return a JSON object {\"assistant\": string, \"fields\": {\"complaint\", \"red_flags\": [string], " +
	"\"duration\", \"severity\", \"location\", \"onset\", \"modifiers\": [string]}}. " +
	"Only include fields the message actually supports. The assistant string is one short, warm acknowledgement."

const triageVerdictPrompt = "You are a triage assistant summarizing a completed kiosk intake for clinic staff. " +
	"Return a JSON object {\"acuity\": \"low\"|\"medium\"|\"high\", \"red_flags\": [string], " +
	"\"next_steps\": [string], \"one_sentence\": string}. " +
	"one_sentence is a plain-language summary for the patient, under 160 characters. Never diagnose."

func (s *triageService) Turn(ctx context.Context, input TriageTurnInput) (*TriageTurnResult, error) {
	fields := input.Fields
	s.extractHeuristics(&fields, input.Message)

	assistant := s.extractLLM(ctx, &fields, input.Message)

	if flags := s.dangerFlags(fields.RedFlags); len(flags) > 0 {
		return &TriageTurnResult{
			Assistant:    escalationMessage,
			Fields:       fields,
			QuickOptions: []string{},
			Done:         false,
			Escalate:     true,
		}, nil
	}

	slot := s.nextSlot(fields)
	done := slot == nil || s.goodEnough(fields)
	if done {
		return &TriageTurnResult{
			Assistant:    triageClosing,
			Fields:       fields,
			QuickOptions: []string{},
			Done:         true,
		}, nil
	}

	if assistant == "" {
		assistant = "Got it."
	}
	name := slot.Name
	question := slot.Question
	return &TriageTurnResult{
		Assistant:    assistant + " " + question,
		Fields:       fields,
		Slot:         &name,
		NextQuestion: &question,
		QuickOptions: append([]string{}, slot.QuickOptions...),
		Done:         false,
	}, nil
}

// extractHeuristics fills slots from the keyword tables. Existing values
// always win; a turn only adds.
func (s *triageService) extractHeuristics(fields *TriageFields, message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return
	}
	lower := strings.ToLower(msg)

	if s.isNegativeAnswer(lower) {
		if len(fields.RedFlags) == 0 {
			fields.RedFlags = []string{"none"}
		}
		return
	}

	for _, term := range s.cfg.DangerTerms {
		if strings.Contains(lower, term) {
			fields.RedFlags = unionList(fields.RedFlags, []string{term})
		}
	}

	if fields.Complaint == "" && len(strings.Fields(msg)) >= 2 {
		fields.Complaint = msg
	}
	if fields.Duration == "" {
		fields.Duration = snippetAround(lower, s.cfg.Keywords["duration"])
	}
	if fields.Severity == "" {
		fields.Severity = firstKeyword(lower, s.cfg.Keywords["severity"])
	}
	if fields.Location == "" {
		fields.Location = firstKeyword(lower, s.cfg.Locations)
	}
	if fields.Onset == "" {
		fields.Onset = normalizeOnset(firstKeyword(lower, s.cfg.Keywords["onset"]))
	}
	for _, kw := range s.cfg.Keywords["modifiers"] {
		if strings.Contains(lower, kw) {
			fields.Modifiers = unionList(fields.Modifiers, []string{kw})
		}
	}
}

// extractLLM runs the optional model extractor and merges its fields in.
// Any failure degrades to heuristics only.
func (s *triageService) extractLLM(ctx context.Context, fields *TriageFields, message string) string {
	if s.llm == nil || strings.TrimSpace(message) == "" {
		return ""
	}

	known, _ := json.Marshal(fields)
	user := fmt.Sprintf("Known fields so far: %s\n\nPatient message: %q", known, message)
	raw, err := s.llm.CompleteJSON(ctx, triageExtractorPrompt, user, triageLLMTemp)
	if err != nil {
		s.log.Warn("triage llm extractor failed", "error", err)
		return ""
	}

	assistant, _ := raw["assistant"].(string)
	rawFields, ok := raw["fields"].(map[string]interface{})
	if !ok {
		return assistant
	}

	var extracted TriageFields
	if encoded, err := json.Marshal(rawFields); err == nil {
		_ = json.Unmarshal(encoded, &extracted)
	}
	mergeFields(fields, extracted)
	return strings.TrimSpace(assistant)
}

// mergeFields folds extracted values into the running fields: lists are
// unioned preserving order, scalars keep the existing non-empty value.
func mergeFields(dst *TriageFields, src TriageFields) {
	if dst.Complaint == "" {
		dst.Complaint = src.Complaint
	}
	if dst.Duration == "" {
		dst.Duration = src.Duration
	}
	if dst.Severity == "" {
		dst.Severity = src.Severity
	}
	if dst.Location == "" {
		dst.Location = src.Location
	}
	if dst.Onset == "" {
		dst.Onset = src.Onset
	}
	dst.RedFlags = unionList(dst.RedFlags, src.RedFlags)
	dst.Modifiers = unionList(dst.Modifiers, src.Modifiers)
}

func (s *triageService) nextSlot(fields TriageFields) *triageSlotDef {
	for i := range s.cfg.Slots {
		slot := &s.cfg.Slots[i]
		if !slotFilled(slot.Name, fields) {
			return slot
		}
	}
	return nil
}

func slotFilled(name string, fields TriageFields) bool {
	switch name {
	case "red_flags":
		return len(fields.RedFlags) > 0
	case "duration":
		return fields.Duration != ""
	case "severity":
		return fields.Severity != ""
	case "location":
		return fields.Location != ""
	case "onset":
		return fields.Onset != ""
	case "modifiers":
		return len(fields.Modifiers) > 0
	default:
		return true
	}
}

// goodEnough short-circuits the remaining slots once the intake can stand
// on its own. The red-flag question is never skipped.
func (s *triageService) goodEnough(fields TriageFields) bool {
	if len(fields.RedFlags) == 0 {
		return false
	}
	return fields.Complaint != "" && fields.Location != "" &&
		(fields.Duration != "" || fields.Severity != "")
}

func (s *triageService) dangerFlags(flags []string) []string {
	var out []string
	for _, f := range flags {
		lower := strings.ToLower(f)
		for _, term := range s.cfg.DangerTerms {
			if strings.Contains(lower, term) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func (s *triageService) isNegativeAnswer(lower string) bool {
	answer := strings.Trim(lower, " .,!")
	for _, n := range s.cfg.NegativeAnswers {
		if answer == n {
			return true
		}
	}
	return false
}

func (s *triageService) Submit(ctx context.Context, input TriageSubmitInput) (*TriageSubmitResult, error) {
	dbc := dbctx.Context{Ctx: ctx}

	orgID, err := s.resolveOrg(dbc, input)
	if err != nil {
		return nil, err
	}

	fields := input.Fields
	s.extractHeuristics(&fields, input.Message)

	patientID, patientBlock := s.upsertPatient(dbc, orgID, input.Patient)

	verdict := s.verdict(ctx, fields, input.History)

	reason := firstNonEmpty(fields.Complaint, verdict.OneSentence, fallbackReason)
	reason = truncateRunes(strings.TrimSpace(reason), reasonMax)

	summary, err := json.Marshal(map[string]interface{}{
		"fields":     fields,
		"transcript": input.History,
		"triage":     verdict,
		"patient":    patientBlock,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	encounter := &types.Encounter{
		ID:        uuid.New(),
		OrgID:     orgID,
		PatientID: patientID,
		Reason:    reason,
		Status:    types.EncounterStatusNew,
		Priority:  "medium",
		Summary:   datatypes.JSON(summary),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.UserID != uuid.Nil {
		uid := input.UserID
		encounter.CreatedBy = &uid
	}
	if _, err := s.encounters.Create(dbc, encounter); err != nil {
		return nil, err
	}

	return &TriageSubmitResult{
		EncounterID:   encounter.ID,
		Status:        encounter.Status,
		Reason:        encounter.Reason,
		TriageVerdict: verdict,
	}, nil
}

// resolveOrg binds the submit to an organization: the kiosk token's org
// when present, else the acting staff user's membership.
func (s *triageService) resolveOrg(dbc dbctx.Context, input TriageSubmitInput) (uuid.UUID, error) {
	if input.KioskOrg != uuid.Nil {
		return input.KioskOrg, nil
	}
	if input.UserID != uuid.Nil {
		member, err := s.orgs.MemberOrg(dbc, input.UserID)
		if err == nil {
			return member.OrgID, nil
		}
		if err != pkgerr.ErrNotFound {
			return uuid.Nil, err
		}
	}
	return uuid.Nil, pkgerr.E(pkgerr.KindForbidden, "no organization context", nil)
}

// upsertPatient links or creates the patient keyed on (org, phone) then
// (org, email). Failures are soft; an encounter without a linked patient
// is still valid.
func (s *triageService) upsertPatient(dbc dbctx.Context, orgID uuid.UUID, in *TriagePatientInput) (*uuid.UUID, map[string]interface{}) {
	if in == nil || (in.Phone == "" && in.Email == "") {
		return nil, nil
	}

	var existing *types.Patient
	var err error
	if in.Phone != "" {
		existing, err = s.patients.FindByPhone(dbc, orgID, in.Phone)
	} else {
		err = pkgerr.ErrNotFound
	}
	if err == pkgerr.ErrNotFound && in.Email != "" {
		existing, err = s.patients.FindByEmail(dbc, orgID, in.Email)
	}
	if err != nil && err != pkgerr.ErrNotFound {
		s.log.Warn("patient lookup failed", "error", err)
		return nil, nil
	}

	now := time.Now().UTC()
	if existing != nil {
		applyPatientInput(existing, in)
		existing.UpdatedAt = now
		if err := s.patients.Save(dbc, existing); err != nil {
			s.log.Warn("patient update failed", "patient_id", existing.ID, "error", err)
		}
		return &existing.ID, patientSummary(existing)
	}

	patient := &types.Patient{
		ID:        uuid.New(),
		OrgID:     orgID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyPatientInput(patient, in)
	created, err := s.patients.Create(dbc, patient)
	if err != nil {
		s.log.Warn("patient create failed", "error", err)
		return nil, nil
	}
	return &created.ID, patientSummary(created)
}

func applyPatientInput(p *types.Patient, in *TriagePatientInput) {
	if in.FirstName != "" {
		p.FirstName = strings.TrimSpace(in.FirstName)
	}
	if in.LastName != "" {
		p.LastName = strings.TrimSpace(in.LastName)
	}
	if in.Phone != "" {
		p.Phone = strings.TrimSpace(in.Phone)
	}
	if in.Email != "" {
		p.Email = strings.ToLower(strings.TrimSpace(in.Email))
	}
	if in.MRN != "" {
		mrn := strings.TrimSpace(in.MRN)
		p.MRN = &mrn
	}
	if in.Insurer != "" {
		p.Insurer = strings.TrimSpace(in.Insurer)
	}
	if in.DOB != nil {
		p.DOB = in.DOB
	}
}

func patientSummary(p *types.Patient) map[string]interface{} {
	return map[string]interface{}{
		"id":         p.ID,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"phone":      p.Phone,
		"email":      p.Email,
	}
}

// verdict asks the model for the structured triage summary, with a
// deterministic fallback when the model is unavailable or malformed.
func (s *triageService) verdict(ctx context.Context, fields TriageFields, history []TriageMessage) TriageVerdict {
	fallback := s.fallbackVerdict(fields)
	if s.llm == nil {
		return fallback
	}

	encodedFields, _ := json.Marshal(fields)
	var transcript strings.Builder
	for _, m := range history {
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}
	user := fmt.Sprintf("Intake fields: %s\n\nTranscript:\n%s", encodedFields, transcript.String())

	raw, err := s.llm.CompleteJSON(ctx, triageVerdictPrompt, user, triageLLMTemp)
	if err != nil {
		s.log.Warn("triage verdict failed, using fallback", "error", err)
		return fallback
	}

	verdict := fallback
	if v, ok := raw["acuity"].(string); ok && validAcuity(v) {
		verdict.Acuity = v
	}
	if v := stringList(raw["red_flags"]); len(v) > 0 {
		verdict.RedFlags = unionList(fields.RedFlags, v)
	}
	if v := stringList(raw["next_steps"]); len(v) > 0 {
		verdict.NextSteps = v
	}
	if v, ok := raw["one_sentence"].(string); ok && strings.TrimSpace(v) != "" {
		verdict.OneSentence = strings.TrimSpace(v)
	}

	verdict.OneSentence = s.warmthRewrite(ctx, verdict.OneSentence)
	return verdict
}

func (s *triageService) fallbackVerdict(fields TriageFields) TriageVerdict {
	preview := fields.Complaint
	if preview == "" {
		preview = "your reported symptoms"
	}
	sentence := truncateRunes("The care team will review "+preview+" shortly.", oneSentenceMax)
	return TriageVerdict{
		Acuity:      "low",
		RedFlags:    append([]string{}, fields.RedFlags...),
		NextSteps:   []string{"Discuss your symptoms with the care team at check-in."},
		OneSentence: sentence,
	}
}

// warmthRewrite softens the patient-facing sentence and enforces the
// length cap. Any failure keeps the original, capped.
func (s *triageService) warmthRewrite(ctx context.Context, sentence string) string {
	capped := truncateRunes(sentence, oneSentenceMax)
	if s.llm == nil || capped == "" {
		return capped
	}
	rewritten, err := s.llm.Complete(ctx, []openai.Message{
		{Role: "system", Content: "Rewrite the sentence warmly for a patient in a waiting room. Keep the meaning. Under 160 characters. Return only the sentence."},
		{Role: "user", Content: capped},
	}, rewritePassTemp)
	if err != nil {
		s.log.Warn("verdict warmth rewrite failed", "error", err)
		return capped
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return capped
	}
	return truncateRunes(rewritten, oneSentenceMax)
}

func validAcuity(v string) bool {
	switch v {
	case "low", "medium", "high":
		return true
	}
	return false
}

func stringList(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func unionList(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	out := append([]string{}, base...)
	for _, v := range base {
		seen[strings.ToLower(v)] = true
	}
	for _, v := range extra {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func normalizeOnset(kw string) string {
	switch kw {
	case "suddenly", "out of nowhere", "all at once":
		return "sudden"
	case "gradually", "slowly", "crept up":
		return "gradual"
	default:
		return kw
	}
}

func firstKeyword(lower string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// snippetAround returns a short window of words ending at the first
// keyword hit, so "for 3 days" survives instead of just "days".
func snippetAround(lower string, keywords []string) string {
	words := strings.Fields(lower)
	for i, w := range words {
		trimmed := strings.Trim(w, ".,!?;:")
		for _, kw := range keywords {
			if trimmed != kw && !strings.HasPrefix(trimmed, kw) {
				continue
			}
			start := i - 2
			if start < 0 {
				start = 0
			}
			return strings.Trim(strings.Join(words[start:i+1], " "), ".,!?;:")
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
