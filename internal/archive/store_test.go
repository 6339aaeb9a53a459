package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte // key -> body
	getErr   error
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket: *input.Bucket,
		key:    *input.Key,
		body:   body,
	})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func TestStore_ArchiveTranscript(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)

	now := time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC)
	record := &TranscriptRecord{
		Version:      "1.0",
		SessionID:    "sess-123",
		ContactHash:  HashContact("010-1234-5678"),
		ArchivedAt:   now,
		MessageCount: 2,
		Outcome:      OutcomeLeadSubmitted,
		FinalStage:   "complete",
		Labels:       Labels{Category: "converted"},
		Messages: []Message{
			{Role: "user", Content: "요즘 너무 피곤해요", Timestamp: now},
			{Role: "agent", Content: "많이 지치셨군요.", Timestamp: now},
		},
	}

	require.NoError(t, store.ArchiveTranscript(context.Background(), record))

	// Transcript + manifest.
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "transcripts/v1/by-date/2026/02/12/sess-123.json", mock.putCalls[0].key)

	var decoded TranscriptRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, "sess-123", decoded.SessionID)
	assert.Equal(t, "converted", decoded.Labels.Category)

	assert.Equal(t, "transcripts/v1/manifests/2026-02.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, "sess-123", entry.SessionID)
	assert.Equal(t, "complete", entry.FinalStage)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())

	err := store.ArchiveTranscript(context.Background(), &TranscriptRecord{})
	assert.NoError(t, err) // no-op, no error
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendManifest(context.Background(), at, ManifestEntry{SessionID: "sess-1"}))
	require.NoError(t, store.AppendManifest(context.Background(), at, ManifestEntry{SessionID: "sess-2"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestStore_ManifestReadErrorIsReported(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewStore(mock, "test-bucket", nil)

	err := store.AppendManifest(context.Background(), time.Now(), ManifestEntry{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Empty(t, mock.putCalls, "must not overwrite a manifest it could not read")
}

func TestArchiver_ScrubsAndLabels(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(NewStore(mock, "test-bucket", nil), nil)
	require.NotNil(t, archiver)
	archiver.now = func() time.Time { return time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) }

	start := time.Date(2026, 3, 3, 23, 50, 0, 0, time.UTC)
	msgs := []Message{
		{Role: "agent", Content: "안녕하십니까", Timestamp: start},
		{Role: "user", Content: "제 번호는 010-1234-5678 입니다", Timestamp: start.Add(time.Minute)},
		{Role: "agent", Content: "감사합니다", Timestamp: start.Add(2 * time.Minute)},
	}
	archiver.Archive(context.Background(), Input{
		SessionID:  "sess-9",
		Contact:    "010-1234-5678",
		FinalStage: "complete",
		Outcome:    OutcomeLeadSubmitted,
		Messages:   msgs,
	})

	require.NotEmpty(t, mock.putCalls)
	var rec TranscriptRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &rec))
	assert.Equal(t, "transcripts/v1/by-date/2026/03/04/sess-9.json", mock.putCalls[0].key)
	assert.Equal(t, "제 번호는 [PHONE] 입니다", rec.Messages[1].Content)
	assert.Equal(t, "converted", rec.Labels.Category)
	assert.Equal(t, 1, rec.Labels.UserTurns)
	assert.True(t, rec.Labels.ContainsPII)
	assert.Equal(t, 120, rec.DurationSeconds)
	assert.Equal(t, HashContact("010-1234-5678"), rec.ContactHash)

	// The caller's messages are untouched.
	assert.Contains(t, msgs[1].Content, "010-1234-5678")
}

func TestArchiver_NilIsNoop(t *testing.T) {
	assert.Nil(t, NewArchiver(NewStore(nil, "", nil), nil))
	var a *Archiver
	a.Archive(context.Background(), Input{SessionID: "x"})
}

func TestLabel(t *testing.T) {
	tests := []struct {
		stage string
		want  string
	}{
		{dialogue.StageComplete.String(), "converted"},
		{dialogue.StageConversion.String(), "reached_conversion"},
		{dialogue.StageSleepCheck.String(), "dropped_early"},
		{" Complete ", "converted"},
		{"finished", "dropped_early"},
		{"", "dropped_early"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.stage, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.stage, nil).Category)
		})
	}
}

func TestLabel_CountsUserTurns(t *testing.T) {
	msgs := []Message{
		{Role: string(dialogue.RoleAgent), Content: "안녕하세요"},
		{Role: string(dialogue.RoleUser), Content: "피곤해요"},
		{Role: string(dialogue.RoleAgent), Content: "언제부터요?"},
		{Role: string(dialogue.RoleUser), Content: "한 달 전부터요"},
	}
	assert.Equal(t, 2, Label(dialogue.StageConversion.String(), msgs).UserTurns)
}
