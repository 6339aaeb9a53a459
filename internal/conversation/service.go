package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/consult-funnel/internal/archive"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/internal/observability/metrics"
	"github.com/wolfman30/consult-funnel/internal/session"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// LeadNotifier alerts the sales team about a new lead.
type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, lead *leads.Lead) error
}

// TranscriptArchiver stores finished transcripts. Implementations must not
// block the caller on failure.
type TranscriptArchiver interface {
	Archive(ctx context.Context, in archive.Input)
}

// Response is returned by every mutating call.
type Response struct {
	SessionID string         `json:"session_id"`
	Reply     dialogue.Reply `json:"reply"`
}

// Snapshot is the full view of a session.
type Snapshot struct {
	SessionID      string          `json:"session_id"`
	Stage          dialogue.Stage  `json:"stage"`
	History        []dialogue.Turn `json:"history"`
	SelectedOption *string         `json:"selected_option,omitempty"`
	Reply          dialogue.Reply  `json:"reply"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LeadForm is what the visitor fills in at conversion.
type LeadForm struct {
	ClinicName string `json:"clinic_name"`
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	Urgency    string `json:"urgency,omitempty"`
	Source     string `json:"source,omitempty"`
}

// LeadResponse carries the stored lead along with the closing reply.
type LeadResponse struct {
	Response
	LeadID string `json:"lead_id"`
}

type serviceConfig struct {
	leads    leads.Repository
	notifier LeadNotifier
	archiver TranscriptArchiver
	metrics  *metrics.DialogueMetrics
	events   *EventLogger
	newID    func() string
	now      func() time.Time
}

// ServiceOption configures the Service.
type ServiceOption func(*serviceConfig)

// WithLeadRepository sets where submitted leads are stored. The default keeps
// them in memory.
func WithLeadRepository(repo leads.Repository) ServiceOption {
	return func(cfg *serviceConfig) {
		if repo != nil {
			cfg.leads = repo
		}
	}
}

func WithNotifier(n LeadNotifier) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.notifier = n
	}
}

func WithArchiver(a TranscriptArchiver) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.archiver = a
	}
}

func WithServiceMetrics(m *metrics.DialogueMetrics) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.metrics = m
	}
}

// WithEventLogger emits a JSON line for every funnel step.
func WithEventLogger(e *EventLogger) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.events = e
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(cfg *serviceConfig) {
		if fn != nil {
			cfg.newID = fn
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(cfg *serviceConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Service runs consultations on top of the dialogue core. It loads and saves
// state around every call and serialises calls for the same session.
type Service struct {
	orch   *dialogue.Orchestrator
	store  session.Store
	locker *session.Locker
	logger *logging.Logger
	cfg    serviceConfig
}

// NewService wires the orchestrator to a session store.
func NewService(orch *dialogue.Orchestrator, store session.Store, logger *logging.Logger, opts ...ServiceOption) *Service {
	if orch == nil {
		panic("conversation: orchestrator cannot be nil")
	}
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := serviceConfig{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.leads == nil {
		cfg.leads = leads.NewInMemoryRepository()
	}
	return &Service{
		orch:   orch,
		store:  store,
		locker: session.NewLocker(),
		logger: logger,
		cfg:    cfg,
	}
}

// Start creates a session and greets the visitor.
func (s *Service) Start(ctx context.Context) (*Response, error) {
	id := s.cfg.newID()
	state := dialogue.NewState(id, s.cfg.now())
	reply := s.orch.Greet(state)

	if err := s.store.Save(ctx, id, state); err != nil {
		return nil, fmt.Errorf("conversation: save new session: %w", err)
	}
	s.cfg.metrics.ObserveSessionStarted()
	s.cfg.events.SessionStarted(ctx, id)
	s.logger.WithSession(id).Info("conversation: session started")
	return &Response{SessionID: id, Reply: reply}, nil
}

// SendMessage runs one user turn.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string) (*Response, error) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cfg.events.MessageReceived(ctx, sessionID, state.Stage.String(), message)
	reply, err := s.orch.Handle(ctx, state, message)
	if err != nil {
		s.cfg.events.ErrorOccurred(ctx, sessionID, "handle_message", err)
		return nil, fmt.Errorf("conversation: handle message: %w", err)
	}
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}
	s.stageEvent(ctx, sessionID, reply)
	return &Response{SessionID: sessionID, Reply: reply}, nil
}

// SelectOption records the picker choice.
func (s *Service) SelectOption(ctx context.Context, sessionID, key string) (*Response, error) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reply, err := s.orch.SelectOption(ctx, state, key)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}
	s.cfg.events.OptionSelected(ctx, sessionID, key)
	s.stageEvent(ctx, sessionID, reply)
	return &Response{SessionID: sessionID, Reply: reply}, nil
}

// SubmitLead stores the visitor's details and closes the consultation. Email
// alerts and transcript archival are best effort.
func (s *Service) SubmitLead(ctx context.Context, sessionID string, form LeadForm) (*LeadResponse, error) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Stage != dialogue.StageConversion && state.Stage != dialogue.StageComplete {
		s.cfg.metrics.ObserveLead("rejected")
		return nil, ErrLeadNotExpected
	}

	req := &leads.CreateLeadRequest{
		SessionID:  sessionID,
		ClinicName: form.ClinicName,
		Name:       form.Name,
		Contact:    form.Contact,
		Urgency:    form.Urgency,
		Summary:    state.Summary(),
		Source:     form.Source,
	}
	if state.SelectedOption != nil {
		req.SelectedOption = *state.SelectedOption
		if opt, ok := s.orch.Scenario().Option(*state.SelectedOption); ok {
			req.HealthScore = opt.HealthScore()
		}
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.cfg.metrics.ObserveLead("invalid")
		return nil, err
	}

	lead, err := s.cfg.leads.Create(ctx, req)
	if err != nil {
		s.cfg.metrics.ObserveLead("failed")
		return nil, fmt.Errorf("conversation: store lead: %w", err)
	}
	s.cfg.metrics.ObserveLead("created")
	s.cfg.events.LeadSubmitted(ctx, sessionID, lead.ID, req.Source)

	logger := s.logger.WithSession(sessionID)
	logger.Info("conversation: lead captured", "lead_id", lead.ID)

	reply, err := s.orch.CompleteLead(ctx, state, req.Name, req.ClinicName, req.Contact)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}

	if s.cfg.notifier != nil {
		if err := s.cfg.notifier.NotifyNewLead(ctx, lead); err != nil {
			logger.Warn("conversation: lead alert failed", "lead_id", lead.ID, "error", err)
		}
	}
	s.archive(ctx, state, req.Contact, archive.OutcomeLeadSubmitted)

	return &LeadResponse{
		Response: Response{SessionID: sessionID, Reply: reply},
		LeadID:   lead.ID,
	}, nil
}

// Reset discards the transcript and starts over under the same id.
func (s *Service) Reset(ctx context.Context, sessionID string) (*Response, error) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	old, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if old.Stage != dialogue.StageComplete && old.UserTurnCount() > 0 {
		s.archive(ctx, old, "", archive.OutcomeReset)
	}

	state := dialogue.NewState(sessionID, s.cfg.now())
	reply := s.orch.Greet(state)
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}
	s.cfg.metrics.ObserveSessionStarted()
	s.cfg.events.SessionReset(ctx, sessionID, old.Stage.String())
	s.logger.WithSession(sessionID).Info("conversation: session reset", "previous_stage", old.Stage.String())
	return &Response{SessionID: sessionID, Reply: reply}, nil
}

// Get returns the full session view.
func (s *Service) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	state, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		SessionID:      state.ID,
		Stage:          state.Stage,
		History:        state.Turns(),
		SelectedOption: state.SelectedOption,
		Reply:          s.orch.View(state),
		CreatedAt:      state.CreatedAt,
		UpdatedAt:      state.UpdatedAt,
	}, nil
}

// Summary renders the plain-text digest of a session.
func (s *Service) Summary(ctx context.Context, sessionID string) (string, error) {
	state, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return state.Summary(), nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*dialogue.ConversationState, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (s *Service) save(ctx context.Context, state *dialogue.ConversationState) error {
	if err := s.store.Save(ctx, state.ID, state); err != nil {
		return fmt.Errorf("conversation: save session: %w", err)
	}
	return nil
}

func (s *Service) stageEvent(ctx context.Context, sessionID string, reply dialogue.Reply) {
	if reply.Stage != reply.PreviousStage {
		s.cfg.events.StageChanged(ctx, sessionID, reply.PreviousStage.String(), reply.Stage.String())
	}
}

func (s *Service) archive(ctx context.Context, state *dialogue.ConversationState, contact, outcome string) {
	if s.cfg.archiver == nil {
		return
	}
	msgs := make([]archive.Message, 0, len(state.History))
	for _, t := range state.History {
		msgs = append(msgs, archive.Message{Role: string(t.Role), Content: t.Text, Timestamp: t.Timestamp})
	}
	in := archive.Input{
		SessionID:  state.ID,
		Contact:    contact,
		FinalStage: state.Stage.String(),
		Outcome:    outcome,
		Messages:   msgs,
	}
	if state.SelectedOption != nil {
		in.SelectedOption = *state.SelectedOption
	}
	s.cfg.archiver.Archive(ctx, in)
}
