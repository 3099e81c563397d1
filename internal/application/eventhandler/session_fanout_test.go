package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/learner"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/notification"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// stubDirectory is a fixed in-memory learner.Directory.
type stubDirectory struct {
	users   map[string]*learner.User
	mentors map[string][]*learner.User
	err     error
}

func (d *stubDirectory) GetUser(_ context.Context, id string) (*learner.User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, shared.ErrLearnerNotFound
}

func (d *stubDirectory) MentorsForLearner(_ context.Context, learnerID string) ([]*learner.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.mentors[learnerID], nil
}

// recordingChannel captures deliveries and can fail for chosen recipients.
type recordingChannel struct {
	mu         sync.Mutex
	deliveries []delivery
	failFor    map[string]bool
}

type delivery struct {
	recipient notification.Recipient
	payload   notification.Payload
}

func (c *recordingChannel) Deliver(_ context.Context, recipient notification.Recipient, payload notification.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[recipient.UserID] {
		return shared.ErrNotificationFailed
	}
	c.deliveries = append(c.deliveries, delivery{recipient: recipient, payload: payload})
	return nil
}

func (c *recordingChannel) delivered() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery(nil), c.deliveries...)
}

func mentor(id string, chatID int64) *learner.User {
	return &learner.User{ID: id, DisplayName: "Mentor " + id, Role: learner.RoleMentor, TelegramChatID: chatID}
}

func testDirectory() *stubDirectory {
	return &stubDirectory{
		users: map[string]*learner.User{
			"learner-1": {ID: "learner-1", DisplayName: "Aizhan", Role: learner.RoleLearner},
			"mentor-1":  mentor("mentor-1", 1001),
			"mentor-2":  mentor("mentor-2", 1002),
			"mentor-3":  mentor("mentor-3", 1003),
		},
		mentors: map[string][]*learner.User{
			"learner-1": {mentor("mentor-1", 1001), mentor("mentor-2", 1002)},
		},
	}
}

func TestSessionStarted_NotifiesLinkedMentors(t *testing.T) {
	channel := &recordingChannel{}
	fanout := NewSessionFanout(testDirectory(), channel, nil)

	event := shared.NewSessionStartedEvent("sess-1", "learner-1", "", "ai-only", "travel")
	require.NoError(t, fanout.HandleSessionStarted(event))

	deliveries := channel.delivered()
	require.Len(t, deliveries, 2)
	for _, d := range deliveries {
		assert.Equal(t, notification.KindSessionStarted, d.payload.Kind)
		assert.Equal(t, "sess-1", d.payload.SessionID)
		assert.Equal(t, "Aizhan", d.payload.LearnerName)
		assert.Equal(t, "travel", d.payload.Topic)
	}
}

func TestSessionCompleted_CarriesScore(t *testing.T) {
	channel := &recordingChannel{}
	fanout := NewSessionFanout(testDirectory(), channel, nil)

	event := shared.NewSessionCompletedEvent("sess-1", "learner-1", "", "travel", 74, 12, false)
	require.NoError(t, fanout.HandleSessionCompleted(event))

	deliveries := channel.delivered()
	require.Len(t, deliveries, 2)
	assert.Equal(t, notification.KindSessionCompleted, deliveries[0].payload.Kind)
	assert.Equal(t, 74, deliveries[0].payload.OverallScore)
	assert.False(t, deliveries[0].payload.Degraded)
}

func TestFanout_OneFailureDoesNotAffectOthers(t *testing.T) {
	channel := &recordingChannel{failFor: map[string]bool{"mentor-1": true}}
	fanout := NewSessionFanout(testDirectory(), channel, nil)

	event := shared.NewSessionStartedEvent("sess-1", "learner-1", "", "ai-only", "")
	require.NoError(t, fanout.HandleSessionStarted(event))

	deliveries := channel.delivered()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "mentor-2", deliveries[0].recipient.UserID)
}

func TestFanout_PinnedMentorIncludedAndDeduplicated(t *testing.T) {
	channel := &recordingChannel{}
	fanout := NewSessionFanout(testDirectory(), channel, nil)

	// mentor-1 is both linked and pinned; mentor-3 only pinned.
	event := shared.NewSessionStartedEvent("sess-1", "learner-1", "mentor-3", "with-mentor", "")
	require.NoError(t, fanout.HandleSessionStarted(event))

	ids := make(map[string]int)
	for _, d := range channel.delivered() {
		ids[d.recipient.UserID]++
	}
	assert.Equal(t, map[string]int{"mentor-1": 1, "mentor-2": 1, "mentor-3": 1}, ids)

	channel2 := &recordingChannel{}
	fanout2 := NewSessionFanout(testDirectory(), channel2, nil)
	event2 := shared.NewSessionStartedEvent("sess-2", "learner-1", "mentor-1", "with-mentor", "")
	require.NoError(t, fanout2.HandleSessionStarted(event2))
	assert.Len(t, channel2.delivered(), 2)
}

func TestFanout_UnknownLearnerIsQuietNoop(t *testing.T) {
	channel := &recordingChannel{}
	fanout := NewSessionFanout(testDirectory(), channel, nil)

	event := shared.NewSessionStartedEvent("sess-1", "ghost", "", "ai-only", "")
	require.NoError(t, fanout.HandleSessionStarted(event))

	assert.Empty(t, channel.delivered())
}

func TestFanout_DirectoryFailureDoesNotPropagate(t *testing.T) {
	dir := testDirectory()
	dir.err = errors.New("directory down")
	channel := &recordingChannel{}
	fanout := NewSessionFanout(dir, channel, nil)

	event := shared.NewSessionStartedEvent("sess-1", "learner-1", "", "ai-only", "")
	assert.NoError(t, fanout.HandleSessionStarted(event))
	assert.Empty(t, channel.delivered())
}

func TestFanout_SkipsUnreachableMentors(t *testing.T) {
	dir := testDirectory()
	dir.mentors["learner-1"] = append(dir.mentors["learner-1"], mentor("mentor-silent", 0))
	channel := &recordingChannel{}
	fanout := NewSessionFanout(dir, channel, nil)

	event := shared.NewSessionStartedEvent("sess-1", "learner-1", "", "ai-only", "")
	require.NoError(t, fanout.HandleSessionStarted(event))

	assert.Len(t, channel.delivered(), 2)
}
