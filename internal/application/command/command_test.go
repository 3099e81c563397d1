package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyle-hub/soyle-practice-hub/internal/application/conversation"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

// memoryRepository is an in-memory session.Repository with the same atomicity
// contracts as the postgres implementation.
type memoryRepository struct {
	mu       sync.Mutex
	sessions map[session.ID]*session.Session
	audio    map[session.ID][]byte
	filename map[session.ID]string

	failAppend bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		sessions: make(map[session.ID]*session.Session),
		audio:    make(map[session.ID][]byte),
		filename: make(map[session.ID]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	copied.Transcript = append([]session.Turn(nil), s.Transcript...)
	r.sessions[s.ID] = &copied
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id session.ID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	copied := *stored
	copied.Transcript = append([]session.Turn(nil), stored.Transcript...)
	if stored.Report != nil {
		rep := *stored.Report
		copied.Report = &rep
	}
	return &copied, nil
}

func (r *memoryRepository) AppendExchange(_ context.Context, id session.ID, userTurn, assistantTurn session.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return fmt.Errorf("storage down")
	}
	stored, ok := r.sessions[id]
	if !ok {
		return shared.ErrSessionNotFound
	}
	if stored.Completed {
		return shared.ErrSessionCompleted
	}
	userTurn.Seq = len(stored.Transcript)
	assistantTurn.Seq = len(stored.Transcript) + 1
	stored.Transcript = append(stored.Transcript, userTurn, assistantTurn)
	return nil
}

func (r *memoryRepository) Finalize(_ context.Context, id session.ID, report session.Report, endedAt time.Time) (*session.FinalizeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if stored.Completed {
		return &session.FinalizeOutcome{Report: *stored.Report, AlreadyCompleted: true}, nil
	}
	if err := stored.Complete(report, endedAt); err != nil {
		return nil, err
	}
	return &session.FinalizeOutcome{Report: report}, nil
}

func (r *memoryRepository) AttachAudio(_ context.Context, id session.ID, data []byte, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok {
		return shared.ErrSessionNotFound
	}
	r.audio[id] = append([]byte(nil), data...)
	r.filename[id] = filename
	stored.AudioFilename = filename
	return nil
}

func (r *memoryRepository) GetAudio(_ context.Context, id session.ID) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.audio[id]
	if !ok {
		return nil, "", shared.ErrAudioNotFound
	}
	return data, r.filename[id], nil
}

func (r *memoryRepository) ListForMentor(_ context.Context, _ string) ([]session.Summary, error) {
	return nil, nil
}

// countingGenerator tracks how many provider calls were made.
type countingGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (g *countingGenerator) Generate(_ context.Context, _ []conversation.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.response, g.err
}

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *recordingBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) published() []shared.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shared.Event(nil), b.events...)
}

func startTestSession(t *testing.T, repo *memoryRepository, bus shared.EventPublisher) session.ID {
	t.Helper()
	handler := NewStartSessionHandler(repo, bus, nil)
	result, err := handler.Handle(context.Background(), StartSessionCommand{
		LearnerID: "learner-1",
		Topic:     "travel",
	})
	require.NoError(t, err)
	return result.SessionID
}

// ══════════════════════════════════════════════════════════════════════════════
// START SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestStartSession_CreatesActiveSession(t *testing.T) {
	repo := newMemoryRepository()
	bus := &recordingBus{}
	handler := NewStartSessionHandler(repo, bus, nil)

	result, err := handler.Handle(context.Background(), StartSessionCommand{
		LearnerID: "learner-1",
		Topic:     "travel",
	})
	require.NoError(t, err)
	require.True(t, result.SessionID.IsValid())

	sess, err := repo.GetByID(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsActive())
	assert.Equal(t, session.KindAIOnly, sess.Kind)
	assert.Empty(t, sess.Transcript)

	events := bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventSessionStarted, events[0].EventType())
}

func TestStartSession_MentorDerivesKind(t *testing.T) {
	repo := newMemoryRepository()
	handler := NewStartSessionHandler(repo, nil, nil)

	result, err := handler.Handle(context.Background(), StartSessionCommand{
		LearnerID: "learner-1",
		MentorID:  "mentor-7",
	})
	require.NoError(t, err)

	sess, err := repo.GetByID(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.KindWithMentor, sess.Kind)
	assert.Equal(t, "mentor-7", sess.MentorID)
}

func TestStartSession_EmptyLearnerRejected(t *testing.T) {
	handler := NewStartSessionHandler(newMemoryRepository(), nil, nil)

	_, err := handler.Handle(context.Background(), StartSessionCommand{})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEND TURN
// ══════════════════════════════════════════════════════════════════════════════

func newSendTurnHandler(repo *memoryRepository, gen *countingGenerator) *SendTurnHandler {
	orch := conversation.NewOrchestrator(gen, nil)
	return NewSendTurnHandler(repo, orch, NewSessionLocks(), nil)
}

func TestSendTurn_AppendsBothSides(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: "Nice! Where did you go?"}
	handler := newSendTurnHandler(repo, gen)
	id := startTestSession(t, repo, nil)

	result, err := handler.Handle(context.Background(), SendTurnCommand{SessionID: id, Text: "I traveled last summer"})
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, "Nice! Where did you go?", result.AssistantText)
	assert.Equal(t, 2, result.TurnCount)

	sess, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Transcript, 2)
	assert.Equal(t, session.RoleUser, sess.Transcript[0].Role)
	assert.Equal(t, "I traveled last summer", sess.Transcript[0].Content)
	assert.Equal(t, session.RoleAssistant, sess.Transcript[1].Role)
}

func TestSendTurn_TranscriptAlternatesOverManyExchanges(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: "ok"}
	handler := newSendTurnHandler(repo, gen)
	id := startTestSession(t, repo, nil)

	const exchanges = 7
	for i := 0; i < exchanges; i++ {
		_, err := handler.Handle(context.Background(), SendTurnCommand{SessionID: id, Text: fmt.Sprintf("utterance %d", i)})
		require.NoError(t, err)
	}

	sess, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Transcript, 2*exchanges)
	for i, turn := range sess.Transcript {
		assert.Equal(t, i, turn.Seq)
		want := session.RoleUser
		if i%2 == 1 {
			want = session.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
}

func TestSendTurn_ProviderFailureRecordsFallback(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{err: shared.ErrProviderUnavailable}
	handler := newSendTurnHandler(repo, gen)
	id := startTestSession(t, repo, nil)

	result, err := handler.Handle(context.Background(), SendTurnCommand{SessionID: id, Text: "hello"})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, conversation.FallbackReply, result.AssistantText)

	// The transcript records exactly what the learner saw.
	sess, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Transcript, 2)
	assert.Equal(t, conversation.FallbackReply, sess.Transcript[1].Content)
}

func TestSendTurn_StorageFailureLeavesTranscriptUnchanged(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: "ok"}
	handler := newSendTurnHandler(repo, gen)
	id := startTestSession(t, repo, nil)

	repo.failAppend = true
	_, err := handler.Handle(context.Background(), SendTurnCommand{SessionID: id, Text: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOperationFailed)

	repo.failAppend = false
	sess, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, sess.Transcript)
}

func TestSendTurn_CompletedSessionRejected(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: "ok"}
	handler := newSendTurnHandler(repo, gen)
	id := startTestSession(t, repo, nil)

	_, err := repo.Finalize(context.Background(), id, session.Report{OverallScore: 70}, time.Now())
	require.NoError(t, err)

	_, err = handler.Handle(context.Background(), SendTurnCommand{SessionID: id, Text: "hello"})
	assert.ErrorIs(t, err, shared.ErrSessionCompleted)
	assert.Equal(t, 0, gen.callCount())
}

func TestSendTurn_EmptyTextRejected(t *testing.T) {
	repo := newMemoryRepository()
	handler := newSendTurnHandler(repo, &countingGenerator{})
	id := startTestSession(t, repo, nil)

	_, err := handler.Handle(context.Background(), SendTurnCommand{SessionID: id, Text: "   \n"})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestSendTurn_UnknownSession(t *testing.T) {
	handler := newSendTurnHandler(newMemoryRepository(), &countingGenerator{})

	_, err := handler.Handle(context.Background(), SendTurnCommand{SessionID: session.NewID(), Text: "hello"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE SESSION
// ══════════════════════════════════════════════════════════════════════════════

const analysisJSON = "```json\n" + `{
  "pronunciation_score": 82,
  "grammar_score": 70,
  "vocabulary_score": 75,
  "fluency_score": 68,
  "overall_score": 74,
  "feedback": "Good pacing, work on article usage.",
  "grammar_errors": ["a article missing"],
  "vocabulary_suggestions": ["itinerary"]
}` + "\n```"

func newFinalizeHandler(repo *memoryRepository, gen *countingGenerator, bus shared.EventPublisher) *FinalizeSessionHandler {
	orch := conversation.NewOrchestrator(gen, nil)
	return NewFinalizeSessionHandler(repo, orch, bus, NewSessionLocks(), nil)
}

func TestFinalize_StoresExtractedReport(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: analysisJSON}
	bus := &recordingBus{}
	handler := newFinalizeHandler(repo, gen, bus)
	id := startTestSession(t, repo, nil)

	result, err := handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: id})
	require.NoError(t, err)

	assert.False(t, result.AlreadyCompleted)
	assert.False(t, result.Report.Degraded)
	assert.Equal(t, 74, result.Report.OverallScore)
	assert.Equal(t, 82, result.Report.PronunciationScore)
	assert.Equal(t, "Good pacing, work on article usage.", result.Report.Feedback)

	sess, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, sess.Completed)
	require.NotNil(t, sess.EndedAt)
	require.NotNil(t, sess.Report)
	assert.Equal(t, result.Report, *sess.Report)

	events := bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventSessionCompleted, events[0].EventType())
}

func TestFinalize_SecondCallIsIdempotent(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: analysisJSON}
	bus := &recordingBus{}
	handler := newFinalizeHandler(repo, gen, bus)
	id := startTestSession(t, repo, nil)

	first, err := handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: id})
	require.NoError(t, err)
	require.Equal(t, 1, gen.callCount())

	second, err := handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: id})
	require.NoError(t, err)

	assert.True(t, second.AlreadyCompleted)
	assert.Equal(t, first.Report, second.Report)
	// The provider is not consulted again and no second event is emitted.
	assert.Equal(t, 1, gen.callCount())
	assert.Len(t, bus.published(), 1)
}

func TestFinalize_ConcurrentCallsInvokeProviderOnce(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{response: analysisJSON}
	handler := newFinalizeHandler(repo, gen, nil)
	id := startTestSession(t, repo, nil)

	var wg sync.WaitGroup
	results := make([]*FinalizeSessionResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: id})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, gen.callCount())
	winners := 0
	for _, result := range results {
		assert.Equal(t, results[0].Report, result.Report)
		if !result.AlreadyCompleted {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestFinalize_ProviderFailureStoresDegradedReport(t *testing.T) {
	repo := newMemoryRepository()
	gen := &countingGenerator{err: shared.ErrProviderUnavailable}
	handler := newFinalizeHandler(repo, gen, nil)
	id := startTestSession(t, repo, nil)

	result, err := handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: id})
	require.NoError(t, err)

	assert.True(t, result.Report.Degraded)
	assert.Zero(t, result.Report.OverallScore)
	assert.Equal(t, analysisUnavailableFeedback, result.Report.Feedback)

	// The session is still terminally completed.
	sess, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, sess.Completed)
}

func TestFinalize_ProseAnalysisDegradesWithOriginalText(t *testing.T) {
	repo := newMemoryRepository()
	prose := "The learner spoke fluently but made several article mistakes."
	gen := &countingGenerator{response: prose}
	handler := newFinalizeHandler(repo, gen, nil)
	id := startTestSession(t, repo, nil)

	result, err := handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: id})
	require.NoError(t, err)

	assert.True(t, result.Report.Degraded)
	assert.Equal(t, prose, result.Report.Feedback)
}

func TestFinalize_UnknownSession(t *testing.T) {
	handler := newFinalizeHandler(newMemoryRepository(), &countingGenerator{}, nil)

	_, err := handler.Handle(context.Background(), FinalizeSessionCommand{SessionID: session.NewID()})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTACH AUDIO
// ══════════════════════════════════════════════════════════════════════════════

func TestAttachAudio_StoresBlob(t *testing.T) {
	repo := newMemoryRepository()
	handler := NewAttachAudioHandler(repo, nil)
	id := startTestSession(t, repo, nil)

	err := handler.Handle(context.Background(), AttachAudioCommand{
		SessionID: id,
		Data:      []byte("opus-bytes"),
		Filename:  "recording.ogg",
	})
	require.NoError(t, err)

	data, filename, err := repo.GetAudio(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("opus-bytes"), data)
	assert.Equal(t, "recording.ogg", filename)
}

func TestAttachAudio_DefaultsFilename(t *testing.T) {
	repo := newMemoryRepository()
	handler := NewAttachAudioHandler(repo, nil)
	id := startTestSession(t, repo, nil)

	err := handler.Handle(context.Background(), AttachAudioCommand{SessionID: id, Data: []byte{1, 2, 3}})
	require.NoError(t, err)

	_, filename, err := repo.GetAudio(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id.String()+".ogg", filename)
}

func TestAttachAudio_EmptyPayloadRejected(t *testing.T) {
	handler := NewAttachAudioHandler(newMemoryRepository(), nil)

	err := handler.Handle(context.Background(), AttachAudioCommand{SessionID: session.NewID()})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestAttachAudio_UnknownSession(t *testing.T) {
	handler := NewAttachAudioHandler(newMemoryRepository(), nil)

	err := handler.Handle(context.Background(), AttachAudioCommand{SessionID: session.NewID(), Data: []byte{1}})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
