package moderation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/socialstack/moderation-service/internal/broker"
	"github.com/socialstack/moderation-service/internal/model"
	"github.com/socialstack/moderation-service/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeRepo struct {
	prior      int64
	created    []*model.ViolationRecord
	banned     []string
	createErr  error
	countErr   error
	bannedErr  error
	countCalls int
}

func (f *fakeRepo) DB(ctx context.Context) *gorm.DB { return nil }

func (f *fakeRepo) CreateViolation(ctx context.Context, rec *model.ViolationRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeRepo) CountViolations(ctx context.Context, userID string) (int64, error) {
	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.prior + int64(len(f.created)), nil
}

func (f *fakeRepo) ListViolations(ctx context.Context, userID string, limit int) ([]model.ViolationRecord, error) {
	return nil, nil
}

func (f *fakeRepo) MarkBanned(ctx context.Context, userID string) error {
	if f.bannedErr != nil {
		return f.bannedErr
	}
	f.banned = append(f.banned, userID)
	return nil
}

func (f *fakeRepo) IsBanned(ctx context.Context, userID string) (bool, error) {
	return false, nil
}

type fakePublisher struct {
	calls    []publishCall
	result   broker.Result
	resultFn func(n int) broker.Result
}

type publishCall struct {
	routingKey string
	payload    map[string]any
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, payload map[string]any) broker.Result {
	f.calls = append(f.calls, publishCall{routingKey: routingKey, payload: payload})
	if f.resultFn != nil {
		return f.resultFn(len(f.calls))
	}
	return f.result
}

func deliveredPublisher() *fakePublisher {
	return &fakePublisher{result: broker.Result{Delivered: true, Detail: "Success", MessageID: "msg-1"}}
}

func TestFirstViolationWarns(t *testing.T) {
	r := &fakeRepo{}
	pub := deliveredPublisher()
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{
		UserID:      "u1",
		Description: "hate speech in comment",
		TextContent: "offensive text",
	})

	assert.Equal(t, RecordStatusRecorded, out.RecordStatus)
	assert.Equal(t, ActionWarning, out.Action)
	assert.EqualValues(t, 1, out.Count)
	assert.True(t, out.Notified)
	assert.Equal(t, "msg-1", out.MessageID)

	require.Len(t, r.created, 1)
	require.NotNil(t, r.created[0].TextContent)
	assert.Equal(t, "offensive text", *r.created[0].TextContent)
	assert.Nil(t, r.created[0].ImageContent)
	assert.Empty(t, r.banned)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, broker.RoutingKeyViolations, pub.calls[0].routingKey)
	assert.Equal(t, EventUserWarning, pub.calls[0].payload["event_type"])
	assert.Equal(t, "u1", pub.calls[0].payload["user_id"])
	assert.NotEmpty(t, pub.calls[0].payload["title_template"])
	assert.NotEmpty(t, pub.calls[0].payload["body_template"])
}

func TestThresholdViolationBans(t *testing.T) {
	r := &fakeRepo{prior: BanThreshold - 1}
	pub := deliveredPublisher()
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{UserID: "u1", Description: "repeat offense"})

	assert.Equal(t, ActionBan, out.Action)
	assert.EqualValues(t, BanThreshold, out.Count)
	assert.Equal(t, []string{"u1"}, r.banned)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, EventUserBanned, pub.calls[0].payload["event_type"])
}

func TestDecisionMonotonicInCount(t *testing.T) {
	for prior := int64(0); prior <= 5; prior++ {
		r := &fakeRepo{prior: prior}
		eng := NewEngine(r, deliveredPublisher(), zap.NewNop().Sugar())
		out := eng.ReportViolation(context.Background(), Report{
			UserID:      "u1",
			Description: fmt.Sprintf("violation after %d prior", prior),
		})

		want := ActionWarning
		if prior+1 >= BanThreshold {
			want = ActionBan
		}
		assert.Equalf(t, want, out.Action, "prior=%d", prior)
	}
}

func TestPersistFailureSkipsDecision(t *testing.T) {
	r := &fakeRepo{createErr: errors.New("connection reset by peer")}
	pub := deliveredPublisher()
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{UserID: "u1", Description: "spam"})

	assert.Equal(t, RecordStatusError, out.RecordStatus)
	assert.Empty(t, out.Action)
	assert.Contains(t, out.Detail, "connection reset")
	assert.Zero(t, r.countCalls, "no count against a failed write")
	assert.Empty(t, pub.calls, "no notification without a decision")
}

func TestCountFailureSurfacesError(t *testing.T) {
	r := &fakeRepo{countErr: errors.New("relation missing")}
	pub := deliveredPublisher()
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{UserID: "u1", Description: "spam"})

	// record is in, but a broken count must never authorize a lenient warning
	assert.Equal(t, RecordStatusRecorded, out.RecordStatus)
	assert.Empty(t, out.Action)
	assert.Contains(t, out.Detail, "relation missing")
	assert.Empty(t, pub.calls)
}

func TestNotificationFailureKeepsDecision(t *testing.T) {
	r := &fakeRepo{}
	pub := &fakePublisher{result: broker.Result{Delivered: false, Detail: "dial tcp: connection refused", MessageID: "msg-2"}}
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{UserID: "u1", Description: "spam"})

	assert.Equal(t, RecordStatusRecorded, out.RecordStatus)
	assert.Equal(t, ActionWarning, out.Action)
	assert.False(t, out.Notified)
	assert.Contains(t, out.NotifyDetail, "connection refused")
	assert.Equal(t, "msg-2", out.MessageID)
}

func TestBannedSetFailureIsBestEffort(t *testing.T) {
	r := &fakeRepo{prior: BanThreshold, bannedErr: errors.New("redis down")}
	pub := deliveredPublisher()
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{UserID: "u1", Description: "spam"})

	assert.Equal(t, ActionBan, out.Action)
	assert.True(t, out.Notified)
}

func TestMissingFieldsRejected(t *testing.T) {
	r := &fakeRepo{}
	pub := deliveredPublisher()
	eng := NewEngine(r, pub, zap.NewNop().Sugar())

	out := eng.ReportViolation(context.Background(), Report{Description: "spam"})
	assert.Equal(t, RecordStatusError, out.RecordStatus)

	out = eng.ReportViolation(context.Background(), Report{UserID: "u1"})
	assert.Equal(t, RecordStatusError, out.RecordStatus)

	assert.Empty(t, r.created)
	assert.Empty(t, pub.calls)
}

// TestEscalationFlowSQLite drives the real repository over in-memory sqlite:
// two warnings, then a ban on the third strike.
func TestEscalationFlowSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:engine_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ViolationRecord{}))

	rdb, mock := redismock.NewClientMock()
	mock.ExpectSAdd("banned_users", "u1").SetVal(1)

	log := zap.NewNop().Sugar()
	repository := repo.NewRepository(db, rdb, log)
	pub := deliveredPublisher()
	eng := NewEngine(repository, pub, log)

	ctx := context.Background()
	for i, want := range []string{ActionWarning, ActionWarning, ActionBan} {
		out := eng.ReportViolation(ctx, Report{
			UserID:      "u1",
			Description: fmt.Sprintf("strike %d", i+1),
			TextContent: "bad post",
		})
		assert.Equal(t, RecordStatusRecorded, out.RecordStatus)
		assert.Equalf(t, want, out.Action, "strike %d", i+1)
		assert.EqualValues(t, i+1, out.Count)
	}

	recs, err := repository.ListViolations(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	// a different user starts from a clean slate
	out := eng.ReportViolation(ctx, Report{UserID: "u2", Description: "first strike"})
	assert.Equal(t, ActionWarning, out.Action)

	assert.Len(t, pub.calls, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}
