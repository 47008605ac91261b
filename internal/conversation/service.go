package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/trial-booking/internal/notify"
	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/internal/triage"
	"github.com/wolfman30/trial-booking/internal/trial"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

var conversationTracer = otel.Tracer("trial-booking.internal.conversation")

// TurnHandler is the trial booking state machine.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in trial.Turn, rec trial.Record) (trial.Result, error)
	Escalate(ctx context.Context, rec trial.Record) trial.Result
}

// IntentClassifier decides which specialists answer a message.
type IntentClassifier interface {
	Classify(ctx context.Context, in triage.Input) (triage.Result, error)
}

// FAQAnswerer answers questions about the training centre.
type FAQAnswerer interface {
	Answer(ctx context.Context, question string, history []trial.HistoryMessage) (string, error)
}

// TurnRecorder archives processed turns.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, e TurnEntry) error
}

// HandoffNotifier tells staff a conversation needs a person.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, n notify.HandoffNotice) error
}

const (
	outcomeFAQ     = "faq"
	outcomeGeneral = "general"
)

// TurnService runs customer turns end to end: triage, the booking flow, FAQ answers,
// persistence and transcripts. Turns of one conversation never run concurrently.
type TurnService struct {
	handler    TurnHandler
	records    RecordStore
	transcript Transcript
	archive    TurnRecorder
	deduper    MessageDeduper
	classifier IntentClassifier
	faq        FAQAnswerer
	handoff    HandoffNotifier
	metrics    *metrics.TrialMetrics
	logger     *logging.Logger
	now        func() time.Time
	locks      *keyedMutex
}

var _ Service = (*TurnService)(nil)

// TurnServiceOption customizes a TurnService.
type TurnServiceOption func(*TurnService)

func WithTranscript(t Transcript) TurnServiceOption {
	return func(s *TurnService) { s.transcript = t }
}

func WithArchive(a TurnRecorder) TurnServiceOption {
	return func(s *TurnService) { s.archive = a }
}

func WithDeduper(d MessageDeduper) TurnServiceOption {
	return func(s *TurnService) { s.deduper = d }
}

// WithClassifier enables triage. Without it every message goes to the booking flow.
func WithClassifier(c IntentClassifier) TurnServiceOption {
	return func(s *TurnService) { s.classifier = c }
}

// WithFAQ enables FAQ answers. Without it faq intents go to the booking flow.
func WithFAQ(a FAQAnswerer) TurnServiceOption {
	return func(s *TurnService) { s.faq = a }
}

func WithHandoffNotifier(n HandoffNotifier) TurnServiceOption {
	return func(s *TurnService) { s.handoff = n }
}

func WithServiceMetrics(m *metrics.TrialMetrics) TurnServiceOption {
	return func(s *TurnService) { s.metrics = m }
}

func WithServiceLogger(l *logging.Logger) TurnServiceOption {
	return func(s *TurnService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithServiceClock(now func() time.Time) TurnServiceOption {
	return func(s *TurnService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTurnService(handler TurnHandler, records RecordStore, opts ...TurnServiceOption) *TurnService {
	if handler == nil {
		panic("conversation: turn handler cannot be nil")
	}
	if records == nil {
		panic("conversation: record store cannot be nil")
	}
	s := &TurnService{
		handler: handler,
		records: records,
		logger:  logging.Default(),
		now:     time.Now,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessMessage runs one customer message. A booking failure is not an error here:
// the customer still gets the failure notice and can retry.
func (s *TurnService) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	started := s.now()
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	text := strings.TrimSpace(req.Message)
	if req.ConversationID == "" || text == "" {
		return nil, fmt.Errorf("%w: conversation id and message are required", ErrInvalidRequest)
	}

	ctx, span := conversationTracer.Start(ctx, "conversation.process_message")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID))

	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	logger := s.logger.WithConversation(req.ConversationID)

	rec, isNew, err := s.loadOrNew(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.seen(ctx, logger, req.MessageID) {
		logger.Info("skipping duplicate message", "message_id", req.MessageID)
		reply := s.lastMessage(ctx, req.ConversationID, "assistant")
		if reply == "" {
			reply = rec.Output
		}
		return &Response{
			ConversationID: req.ConversationID,
			Stage:          rec.Stage,
			Message:        reply,
			BookingID:      rec.BookingID,
			Duplicate:      true,
			Timestamp:      s.now().UTC(),
		}, nil
	}

	history := s.history(ctx, logger, req.ConversationID)
	stageBefore := rec.Stage
	intents := s.classify(ctx, logger, text, rec, isNew)

	var (
		parts   []string
		outcome string
		reason  string
		ranFlow bool
	)
	if intents.Has(triage.IntentTrial) {
		res, err := s.handler.HandleTurn(ctx, trial.Turn{Text: text, History: history}, rec)
		if err != nil && !errors.Is(err, trial.ErrBookingFailed) {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: handle turn: %w", err)
		}
		if err != nil {
			span.RecordError(err)
			logger.Error("trial booking failed", "error", err)
		}
		rec = res.Record
		ranFlow = true
		parts = append(parts, res.Output)
		outcome = string(res.LastOutcome())
		reason = string(res.Reason)
	}
	if intents.Has(triage.IntentFAQ) {
		answer, err := s.faq.Answer(ctx, text, history)
		if err != nil {
			logger.Warn("faq answer fell back", "error", err)
		}
		if strings.TrimSpace(answer) != "" {
			parts = append(parts, answer)
		}
		if outcome == "" {
			outcome = outcomeFAQ
		}
	}
	if intents.Has(triage.IntentGeneral) {
		greeting := strings.TrimSpace(intents.GeneralResponse)
		if greeting == "" {
			greeting = triage.DefaultGreeting
		}
		parts = append(parts, greeting)
		outcome = outcomeGeneral
	}
	if len(parts) == 0 {
		parts = append(parts, triage.DefaultGreeting)
	}
	output := strings.Join(parts, "\n\n")

	if ranFlow || !isNew {
		if !ranFlow {
			rec.UpdatedAt = s.now().UTC()
		}
		if err := s.records.Save(ctx, rec); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	s.appendTranscript(ctx, logger, req, text, output)
	s.recordTurn(ctx, logger, TurnEntry{
		ConversationID: req.ConversationID,
		CustomerRef:    rec.CustomerRef,
		StageBefore:    string(stageBefore),
		StageAfter:     string(rec.Stage),
		Inbound:        text,
		Outbound:       output,
		Outcome:        outcome,
		Reason:         reason,
		BookingID:      rec.BookingID,
	})
	s.markProcessed(ctx, logger, req)

	s.metrics.ObserveTurn(string(rec.Stage), outcome)
	s.metrics.ObserveTurnLatency(string(stageBefore), s.now().Sub(started))
	span.SetAttributes(attribute.String("conversation.stage", string(rec.Stage)), attribute.String("conversation.outcome", outcome))

	logger.Info("turn processed",
		"stage_before", stageBefore,
		"stage_after", rec.Stage,
		"outcome", outcome,
		"intents", intentNames(intents),
	)

	return &Response{
		ConversationID: req.ConversationID,
		Stage:          rec.Stage,
		Message:        output,
		BookingID:      rec.BookingID,
		Intents:        intentNames(intents),
		Timestamp:      s.now().UTC(),
	}, nil
}

// Escalate hands the conversation to a human attendant and tells staff.
func (s *TurnService) Escalate(ctx context.Context, conversationID, note string) (*Response, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	rec, err := s.records.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	stageBefore := rec.Stage
	res := s.handler.Escalate(ctx, rec)
	if err := s.records.Save(ctx, res.Record); err != nil {
		return nil, err
	}

	logger := s.logger.WithConversation(conversationID)
	s.appendMessage(ctx, logger, conversationID, TranscriptMessage{Role: "assistant", Body: res.Output})
	s.recordTurn(ctx, logger, TurnEntry{
		ConversationID: conversationID,
		CustomerRef:    res.Record.CustomerRef,
		StageBefore:    string(stageBefore),
		StageAfter:     string(res.Record.Stage),
		Outbound:       res.Output,
		Outcome:        string(res.LastOutcome()),
		Reason:         note,
	})
	s.metrics.ObserveTurn(string(res.Record.Stage), string(res.LastOutcome()))

	if res.LastOutcome() == trial.OutcomeHandoff && s.handoff != nil {
		notice := notify.HandoffNotice{
			ConversationID: conversationID,
			CustomerRef:    res.Record.CustomerRef,
			Stage:          string(stageBefore),
			LastMessage:    s.lastMessage(ctx, conversationID, "user"),
		}
		if res.Record.Name != nil {
			notice.CustomerName = *res.Record.Name
		}
		if err := s.handoff.NotifyHandoff(ctx, notice); err != nil {
			logger.Warn("handoff notification failed", "error", err)
		}
	}

	return &Response{
		ConversationID: conversationID,
		Stage:          res.Record.Stage,
		Message:        res.Output,
		BookingID:      res.Record.BookingID,
		Timestamp:      s.now().UTC(),
	}, nil
}

// Record returns the stored record of a conversation.
func (s *TurnService) Record(ctx context.Context, conversationID string) (trial.Record, error) {
	return s.records.Load(ctx, conversationID)
}

// Reset forgets the record so the customer can start over.
func (s *TurnService) Reset(ctx context.Context, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()
	return s.records.Delete(ctx, conversationID)
}

func (s *TurnService) loadOrNew(ctx context.Context, req MessageRequest) (trial.Record, bool, error) {
	rec, err := s.records.Load(ctx, req.ConversationID)
	if errors.Is(err, ErrRecordNotFound) {
		ref := strings.TrimSpace(req.CustomerRef)
		if ref == "" {
			ref = req.ConversationID
		}
		return trial.NewRecord(req.ConversationID, ref), true, nil
	}
	if err != nil {
		return trial.Record{}, false, err
	}
	if rec.CustomerRef == "" && req.CustomerRef != "" {
		rec.CustomerRef = req.CustomerRef
	}
	return rec, false, nil
}

func (s *TurnService) seen(ctx context.Context, logger *logging.Logger, messageID string) bool {
	if s.deduper == nil || strings.TrimSpace(messageID) == "" {
		return false
	}
	seen, err := s.deduper.AlreadyProcessed(ctx, messageID)
	if err != nil {
		logger.Warn("dedupe lookup failed", "error", err, "message_id", messageID)
		return false
	}
	return seen
}

func (s *TurnService) markProcessed(ctx context.Context, logger *logging.Logger, req MessageRequest) {
	if s.deduper == nil || strings.TrimSpace(req.MessageID) == "" {
		return
	}
	if _, err := s.deduper.MarkProcessed(ctx, req.ConversationID, req.MessageID); err != nil {
		logger.Warn("failed to mark message processed", "error", err, "message_id", req.MessageID)
	}
}

func (s *TurnService) history(ctx context.Context, logger *logging.Logger, conversationID string) []trial.HistoryMessage {
	if s.transcript == nil {
		return nil
	}
	msgs, err := s.transcript.List(ctx, conversationID, historyWindow)
	if err != nil {
		logger.Warn("failed to load transcript", "error", err)
		return nil
	}
	return toHistory(msgs)
}

// lastMessage returns the newest transcript body written by role.
func (s *TurnService) lastMessage(ctx context.Context, conversationID, role string) string {
	if s.transcript == nil {
		return ""
	}
	msgs, err := s.transcript.List(ctx, conversationID, 10)
	if err != nil {
		return ""
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i].Body
		}
	}
	return ""
}

func (s *TurnService) classify(ctx context.Context, logger *logging.Logger, text string, rec trial.Record, isNew bool) triage.Result {
	flow := triage.Result{Intents: []triage.Intent{triage.IntentTrial}}
	if s.classifier == nil {
		return flow
	}
	in := triage.Input{Text: text}
	if !isNew {
		in.Stage = rec.Stage
	}
	res, err := s.classifier.Classify(ctx, in)
	if err != nil {
		logger.Warn("triage failed, using fallback", "error", err)
		res = triage.Fallback(in)
	}
	if s.faq == nil && res.Has(triage.IntentFAQ) {
		intents := []triage.Intent{triage.IntentTrial}
		for _, i := range res.Intents {
			if i != triage.IntentFAQ && i != triage.IntentTrial {
				intents = append(intents, i)
			}
		}
		res.Intents = intents
	}
	return res
}

func (s *TurnService) appendTranscript(ctx context.Context, logger *logging.Logger, req MessageRequest, inbound, outbound string) {
	s.appendMessage(ctx, logger, req.ConversationID, TranscriptMessage{Role: "user", Body: inbound, Channel: req.Channel})
	s.appendMessage(ctx, logger, req.ConversationID, TranscriptMessage{Role: "assistant", Body: outbound, Channel: req.Channel})
}

func (s *TurnService) appendMessage(ctx context.Context, logger *logging.Logger, conversationID string, msg TranscriptMessage) {
	if s.transcript == nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	if err := s.transcript.Append(ctx, conversationID, msg); err != nil {
		logger.Warn("failed to append transcript", "error", err)
	}
}

func (s *TurnService) recordTurn(ctx context.Context, logger *logging.Logger, e TurnEntry) {
	if s.archive == nil {
		return
	}
	e.CreatedAt = s.now().UTC()
	if err := s.archive.RecordTurn(ctx, e); err != nil {
		logger.Warn("failed to archive turn", "error", err)
	}
}

func intentNames(r triage.Result) []string {
	out := make([]string, 0, len(r.Intents))
	for _, i := range r.Intents {
		out = append(out, string(i))
	}
	return out
}
