package archive

import (
	"context"
	"time"

	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// Archiver scrubs, labels and stores finished transcripts. Errors are logged
// but never returned to the caller.
type Archiver struct {
	store  *Store
	logger *logging.Logger
	now    func() time.Time
}

// NewArchiver returns nil if store is not enabled; a nil Archiver is a no-op.
func NewArchiver(store *Store, logger *logging.Logger) *Archiver {
	if store == nil || !store.Enabled() {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{store: store, logger: logger, now: time.Now}
}

// Input holds one finished consultation.
type Input struct {
	SessionID      string
	Contact        string
	FinalStage     string
	SelectedOption string
	Outcome        string
	Messages       []Message
}

// Archive writes the transcript. It never fails the caller.
func (a *Archiver) Archive(ctx context.Context, in Input) {
	if a == nil {
		return
	}

	// Copy to avoid mutating the caller's slice.
	msgs := make([]Message, len(in.Messages))
	copy(msgs, in.Messages)
	pii := ScrubMessages(msgs)

	labels := Label(in.FinalStage, msgs)
	labels.ContainsPII = pii

	var durationSec int
	if len(msgs) >= 2 {
		durationSec = int(msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp).Seconds())
	}

	record := &TranscriptRecord{
		Version:         "1.0",
		SessionID:       in.SessionID,
		ContactHash:     HashContact(in.Contact),
		ArchivedAt:      a.now().UTC(),
		DurationSeconds: durationSec,
		MessageCount:    len(msgs),
		Outcome:         in.Outcome,
		FinalStage:      in.FinalStage,
		SelectedOption:  in.SelectedOption,
		Labels:          labels,
		Messages:        msgs,
	}

	if err := a.store.ArchiveTranscript(ctx, record); err != nil {
		a.logger.Error("archive: failed to archive transcript", "error", err, "session_id", in.SessionID)
		return
	}
	a.logger.Info("archive: transcript archived", "session_id", in.SessionID, "category", labels.Category)
}
