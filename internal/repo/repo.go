package repo

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/socialstack/moderation-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const bannedUsersKey = "banned_users"

// RepositoryInterface restricts repo methods for unit-test fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	CreateViolation(ctx context.Context, rec *model.ViolationRecord) error
	CountViolations(ctx context.Context, userID string) (int64, error)
	ListViolations(ctx context.Context, userID string, limit int) ([]model.ViolationRecord, error)
	MarkBanned(ctx context.Context, userID string) error
	IsBanned(ctx context.Context, userID string) (bool, error)
}

// Repository implements RepositoryInterface over postgres and redis.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// CreateViolation inserts one audit row. Records are never updated.
func (r *Repository) CreateViolation(ctx context.Context, rec *model.ViolationRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// CountViolations returns the all-time violation count for a user. There is
// no decay window: three strikes ever, not three strikes per period.
func (r *Repository) CountViolations(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ViolationRecord{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ListViolations fetches recent records for the audit endpoint.
func (r *Repository) ListViolations(ctx context.Context, userID string, limit int) ([]model.ViolationRecord, error) {
	var recs []model.ViolationRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// MarkBanned adds the user to the shared banned set read by other services.
func (r *Repository) MarkBanned(ctx context.Context, userID string) error {
	return r.rdb.SAdd(ctx, bannedUsersKey, userID).Err()
}

// IsBanned checks the shared banned set.
func (r *Repository) IsBanned(ctx context.Context, userID string) (bool, error) {
	return r.rdb.SIsMember(ctx, bannedUsersKey, userID).Result()
}
