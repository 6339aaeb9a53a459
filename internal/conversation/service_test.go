package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/consult-funnel/internal/archive"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/internal/session"
)

type recordingNotifier struct {
	mu    sync.Mutex
	leads []*leads.Lead
	err   error
}

func (n *recordingNotifier) NotifyNewLead(_ context.Context, lead *leads.Lead) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, lead)
	return n.err
}

type recordingArchiver struct {
	mu     sync.Mutex
	inputs []archive.Input
}

func (a *recordingArchiver) Archive(_ context.Context, in archive.Input) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, in)
}

type failingStore struct {
	session.Store
	saveErr error
	loadErr error
}

func (f failingStore) Load(ctx context.Context, id string) (*dialogue.ConversationState, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Store.Load(ctx, id)
}

func (f failingStore) Save(ctx context.Context, id string, st *dialogue.ConversationState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, id, st)
}

type serviceFixture struct {
	svc      *Service
	store    *session.MemoryStore
	repo     *leads.InMemoryRepository
	notifier *recordingNotifier
	archiver *recordingArchiver
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	sc := dialogue.MustDefaultScenario()
	orch := dialogue.NewOrchestrator(sc, NewRulesGenerator(sc), nil)
	f := &serviceFixture{
		store:    session.NewMemoryStore(),
		repo:     leads.NewInMemoryRepository(),
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
	}
	n := 0
	f.svc = NewService(orch, f.store, nil,
		WithLeadRepository(f.repo),
		WithNotifier(f.notifier),
		WithArchiver(f.archiver),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("sess-%d", n) }),
		WithServiceClock(func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }),
	)
	return f
}

// driveToConversion walks a fresh session to the lead form.
func (f *serviceFixture) driveToConversion(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	id := start.SessionID

	for _, msg := range []string{"요즘 너무 피곤해요", "어깨가 뻐근해요", "잠은 괜찮아요", "소화는 문제없어요"} {
		_, err := f.svc.SendMessage(ctx, id, msg)
		require.NoError(t, err)
	}
	resp, err := f.svc.SelectOption(ctx, id, "yellow_coat")
	require.NoError(t, err)
	require.Equal(t, dialogue.StageConversion, resp.Reply.Stage)
	return id
}

func TestService_StartGreets(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := f.svc.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, dialogue.StageInitial, resp.Reply.Stage)
	assert.Contains(t, resp.Reply.Text, "AI 상담실장")
	assert.Equal(t, dialogue.UIHintQuickReplies, resp.Reply.UIHint)

	st, err := f.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Len(t, st.History, 1)
}

func TestService_SendMessagePersists(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)

	resp, err := f.svc.SendMessage(ctx, start.SessionID, "요즘 너무 피곤해요")
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageSymptomExplore, resp.Reply.Stage)
	assert.Equal(t, dialogue.StageInitial, resp.Reply.PreviousStage)

	snap, err := f.svc.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageSymptomExplore, snap.Stage)
	assert.Len(t, snap.History, 3)
	assert.Equal(t, resp.Reply.Text, snap.Reply.Text)
}

func TestService_UnknownSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "missing", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.SelectOption(ctx, "missing", "pale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.SubmitLead(ctx, "missing", LeadForm{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Reset(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Summary(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_SelectOptionErrors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)

	_, err = f.svc.SelectOption(ctx, start.SessionID, "pale")
	assert.ErrorIs(t, err, dialogue.ErrSelectionNotExpected)

	id := f.driveToConversion(t)
	_, err = f.svc.SelectOption(ctx, id, "pale")
	assert.ErrorIs(t, err, dialogue.ErrSelectionNotExpected)
}

func TestService_SubmitLead(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id := f.driveToConversion(t)

	resp, err := f.svc.SubmitLead(ctx, id, LeadForm{ClinicName: " 바른한의원 ", Name: "김원장", Contact: "010-1234-5678", Urgency: "immediate"})
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageComplete, resp.Reply.Stage)
	assert.Equal(t, dialogue.UIHintRestart, resp.Reply.UIHint)
	assert.Contains(t, resp.Reply.Text, "김원장 원장님")
	assert.Contains(t, resp.Reply.Text, "바른한의원에")
	require.NotEmpty(t, resp.LeadID)

	lead, err := f.repo.GetByID(ctx, resp.LeadID)
	require.NoError(t, err)
	assert.Equal(t, id, lead.SessionID)
	assert.Equal(t, "바른한의원", lead.ClinicName)
	assert.Equal(t, "yellow_coat", lead.SelectedOption)
	assert.Equal(t, 46, lead.HealthScore, "mean of the yellow_coat scores")
	assert.Equal(t, leads.UrgencyImmediate, lead.Urgency)
	assert.Equal(t, "chat", lead.Source)
	assert.Contains(t, lead.Summary, "요즘 너무 피곤해요")
	assert.Contains(t, lead.Summary, "trust=")

	require.Len(t, f.notifier.leads, 1)
	assert.Equal(t, resp.LeadID, f.notifier.leads[0].ID)

	require.Len(t, f.archiver.inputs, 1)
	in := f.archiver.inputs[0]
	assert.Equal(t, archive.OutcomeLeadSubmitted, in.Outcome)
	assert.Equal(t, "complete", in.FinalStage)
	assert.Equal(t, "yellow_coat", in.SelectedOption)
	assert.Equal(t, "010-1234-5678", in.Contact)

	// Resubmitting from complete is accepted and holds.
	again, err := f.svc.SubmitLead(ctx, id, LeadForm{ClinicName: "바른한의원", Name: "김원장", Contact: "doc@example.com"})
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageComplete, again.Reply.Stage)
}

func TestService_SubmitLeadValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id := f.driveToConversion(t)

	tests := []struct {
		name string
		form LeadForm
		want error
	}{
		{"missing name", LeadForm{ClinicName: "c", Contact: "010"}, leads.ErrInvalidName},
		{"missing contact", LeadForm{ClinicName: "c", Name: "n"}, leads.ErrMissingContact},
		{"unknown urgency", LeadForm{Name: "n", Contact: "010", Urgency: "someday"}, leads.ErrInvalidUrgency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitLead(ctx, id, tt.form)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	snap, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageConversion, snap.Stage, "invalid forms leave the stage alone")
	assert.Empty(t, f.notifier.leads)
}

func TestService_SubmitLeadWithoutClinic(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id := f.driveToConversion(t)

	resp, err := f.svc.SubmitLead(ctx, id, LeadForm{Name: "김원장", Contact: "doc@example.com"})
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageComplete, resp.Reply.Stage)
	assert.NotContains(t, resp.Reply.Text, "{clinic}")
	assert.Contains(t, resp.Reply.Text, "원장님 한의원")

	lead, err := f.repo.GetByID(ctx, resp.LeadID)
	require.NoError(t, err)
	assert.Empty(t, lead.ClinicName)
	assert.Empty(t, lead.Urgency)
}

func TestService_SubmitLeadCarriesQualification(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	id := start.SessionID

	for _, msg := range []string{"피부과인데 광고비가 너무 많이 들어서 피곤해요", "어깨가 뻐근해요", "잠은 괜찮아요", "소화는 문제없어요"} {
		_, err := f.svc.SendMessage(ctx, id, msg)
		require.NoError(t, err)
	}
	_, err = f.svc.SelectOption(ctx, id, "yellow_coat")
	require.NoError(t, err)

	resp, err := f.svc.SubmitLead(ctx, id, LeadForm{Name: "김원장", Contact: "010-1234-5678"})
	require.NoError(t, err)

	lead, err := f.repo.GetByID(ctx, resp.LeadID)
	require.NoError(t, err)
	assert.Contains(t, lead.Summary, "user_type=병원")
	assert.Contains(t, lead.Summary, "pain_point=cost")
}

func TestService_SubmitLeadTooEarly(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)

	_, err = f.svc.SubmitLead(ctx, start.SessionID, LeadForm{ClinicName: "c", Name: "n", Contact: "010"})
	assert.ErrorIs(t, err, ErrLeadNotExpected)
}

func TestService_NotifierFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture(t)
	f.notifier.err = errors.New("smtp down")
	id := f.driveToConversion(t)

	resp, err := f.svc.SubmitLead(context.Background(), id, LeadForm{ClinicName: "c", Name: "n", Contact: "010"})
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageComplete, resp.Reply.Stage)
}

func TestService_Reset(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, start.SessionID, "요즘 너무 피곤해요")
	require.NoError(t, err)

	resp, err := f.svc.Reset(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, start.SessionID, resp.SessionID)
	assert.Equal(t, dialogue.StageInitial, resp.Reply.Stage)

	snap, err := f.svc.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Len(t, snap.History, 1)
	assert.Nil(t, snap.SelectedOption)

	require.Len(t, f.archiver.inputs, 1)
	assert.Equal(t, archive.OutcomeReset, f.archiver.inputs[0].Outcome)
	assert.Equal(t, "symptom_explore", f.archiver.inputs[0].FinalStage)
}

func TestService_ResetUntouchedSessionSkipsArchive(t *testing.T) {
	f := newServiceFixture(t)
	start, err := f.svc.Start(context.Background())
	require.NoError(t, err)

	_, err = f.svc.Reset(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Empty(t, f.archiver.inputs)
}

func TestService_Summary(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, start.SessionID, "요즘 너무 피곤해요")
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Contains(t, summary, "stage=symptom_explore")
	assert.Contains(t, summary, "요즘 너무 피곤해요")
}

func TestService_StoreErrors(t *testing.T) {
	sc := dialogue.MustDefaultScenario()
	orch := dialogue.NewOrchestrator(sc, NewRulesGenerator(sc), nil)
	mem := session.NewMemoryStore()
	ctx := context.Background()

	saveErr := errors.New("redis down")
	svc := NewService(orch, failingStore{Store: mem, saveErr: saveErr}, nil)
	_, err := svc.Start(ctx)
	assert.ErrorIs(t, err, saveErr)

	loadErr := errors.New("timeout")
	require.NoError(t, mem.Save(ctx, "s1", dialogue.NewState("s1", time.Now())))
	svc = NewService(orch, failingStore{Store: mem, loadErr: loadErr}, nil)
	_, err = svc.SendMessage(ctx, "s1", "hi")
	assert.ErrorIs(t, err, loadErr)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestService_ConcurrentTurnsAreSerialised(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start, err := f.svc.Start(ctx)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, start.SessionID, "그냥 그래요")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := f.svc.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Len(t, snap.History, 1+2*n, "no turn may be lost to a concurrent save")
}
