package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// listingRepository stubs only the read methods the queries touch.
type listingRepository struct {
	session.Repository

	summaries []session.Summary
	listErr   error
	listCalls int

	audio    []byte
	filename string
	audioErr error
}

func (r *listingRepository) ListForMentor(_ context.Context, _ string) ([]session.Summary, error) {
	r.listCalls++
	return r.summaries, r.listErr
}

func (r *listingRepository) GetAudio(_ context.Context, _ session.ID) ([]byte, string, error) {
	if r.audioErr != nil {
		return nil, "", r.audioErr
	}
	return r.audio, r.filename, nil
}

// mapCache is an in-memory SummaryCache.
type mapCache struct {
	entries map[string][]session.Summary
	getErr  error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]session.Summary)}
}

func (c *mapCache) GetMentorSessions(_ context.Context, mentorID string) ([]session.Summary, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	summaries, ok := c.entries[mentorID]
	return summaries, ok, nil
}

func (c *mapCache) SetMentorSessions(_ context.Context, mentorID string, summaries []session.Summary) error {
	c.entries[mentorID] = summaries
	return nil
}

func sampleSummaries() []session.Summary {
	return []session.Summary{
		{ID: session.NewID(), LearnerID: "learner-1", Kind: session.KindWithMentor, StartedAt: time.Now(), Completed: true, OverallScore: 74},
		{ID: session.NewID(), LearnerID: "learner-2", Kind: session.KindAIOnly, StartedAt: time.Now()},
	}
}

func TestListMentorSessions_ReturnsSummaries(t *testing.T) {
	repo := &listingRepository{summaries: sampleSummaries()}
	handler := NewListMentorSessionsHandler(repo, nil, nil)

	result, err := handler.Handle(context.Background(), ListMentorSessionsQuery{MentorID: "mentor-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, repo.summaries, result.Sessions)
}

func TestListMentorSessions_UnknownMentorIsEmptyNotError(t *testing.T) {
	repo := &listingRepository{}
	handler := NewListMentorSessionsHandler(repo, nil, nil)

	result, err := handler.Handle(context.Background(), ListMentorSessionsQuery{MentorID: "nobody"})
	require.NoError(t, err)

	assert.Zero(t, result.Total)
	assert.NotNil(t, result.Sessions)
	assert.Empty(t, result.Sessions)
}

func TestListMentorSessions_EmptyMentorRejected(t *testing.T) {
	handler := NewListMentorSessionsHandler(&listingRepository{}, nil, nil)

	_, err := handler.Handle(context.Background(), ListMentorSessionsQuery{})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestListMentorSessions_CacheHitSkipsRepository(t *testing.T) {
	repo := &listingRepository{summaries: sampleSummaries()}
	cache := newMapCache()
	handler := NewListMentorSessionsHandler(repo, cache, nil)

	first, err := handler.Handle(context.Background(), ListMentorSessionsQuery{MentorID: "mentor-1"})
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	second, err := handler.Handle(context.Background(), ListMentorSessionsQuery{MentorID: "mentor-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, first.Sessions, second.Sessions)
}

func TestListMentorSessions_CacheFailureFallsThrough(t *testing.T) {
	repo := &listingRepository{summaries: sampleSummaries()}
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	handler := NewListMentorSessionsHandler(repo, cache, nil)

	result, err := handler.Handle(context.Background(), ListMentorSessionsQuery{MentorID: "mentor-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}

func TestGetAudio_ReturnsBlob(t *testing.T) {
	repo := &listingRepository{audio: []byte("opus-bytes"), filename: "recording.ogg"}
	handler := NewGetAudioHandler(repo)

	result, err := handler.Handle(context.Background(), GetAudioQuery{SessionID: session.NewID()})
	require.NoError(t, err)

	assert.Equal(t, []byte("opus-bytes"), result.Data)
	assert.Equal(t, "recording.ogg", result.Filename)
}

func TestGetAudio_MissingAudio(t *testing.T) {
	repo := &listingRepository{audioErr: shared.ErrAudioNotFound}
	handler := NewGetAudioHandler(repo)

	_, err := handler.Handle(context.Background(), GetAudioQuery{SessionID: session.NewID()})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetAudio_InvalidID(t *testing.T) {
	handler := NewGetAudioHandler(&listingRepository{})

	_, err := handler.Handle(context.Background(), GetAudioQuery{})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}
