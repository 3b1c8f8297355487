package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-gateway/internal/db"
	"crm-gateway/internal/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostgresStore keeps profiles in the users table.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(d *db.DB) *PostgresStore {
	return &PostgresStore{db: d.DB}
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Profile, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		// the column is uuid; a non-uuid key can never match
		return nil, ErrNotFound
	}

	var row profileModel
	err := s.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(id)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.logError("profile_store_find_by_id_failed", err, "identity_id", id)
	}
	return row.toProfile()
}

func (s *PostgresStore) FindByField(ctx context.Context, field Field, value string) (*Profile, error) {
	if !field.valid() {
		return nil, ErrUnknownField
	}

	var row profileModel
	err := s.db.WithContext(ctx).
		Where(string(field)+" = ?", normalizeField(field, value)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.logError("profile_store_find_by_field_failed", err, "field", string(field))
	}
	return row.toProfile()
}

func (s *PostgresStore) Insert(ctx context.Context, p Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		return fmt.Errorf("%w: id is not a uuid", ErrInvalidProfile)
	}

	row := profileModelFrom(p)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateContact
		}
		return s.logError("profile_store_insert_failed", err, "identity_id", p.ID)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, u Update) error {
	changes := map[string]any{}
	if u.Name != nil {
		changes["name"] = nullable(*u.Name)
	}
	if u.MobileNumber != nil {
		changes["mobile_number"] = strings.TrimSpace(*u.MobileNumber)
	}
	if u.AvatarURL != nil {
		changes["avatar_url"] = nullable(*u.AvatarURL)
	}
	if len(changes) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).
		Model(&profileModel{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(changes)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error) {
			return ErrDuplicateContact
		}
		return s.logError("profile_store_update_failed", res.Error, "identity_id", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) logError(event string, err error, kv ...string) error {
	fields := map[string]any{
		"event":  event,
		"module": "profile",
		"layer":  "adapter",
		"error":  err.Error(),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	logger.Error("profile store operation failed", fields)
	return err
}

type profileModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Email        string    `gorm:"column:email"`
	Name         *string   `gorm:"column:name"`
	MobileNumber string    `gorm:"column:mobile_number"`
	Role         string    `gorm:"column:role"`
	AvatarURL    *string   `gorm:"column:avatar_url"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (profileModel) TableName() string { return "users" }

func profileModelFrom(p Profile) profileModel {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return profileModel{
		ID:           p.ID,
		Email:        normalizeField(FieldEmail, p.Email),
		Name:         nullable(p.Name),
		MobileNumber: strings.TrimSpace(p.MobileNumber),
		Role:         p.Role.String(),
		AvatarURL:    nullable(p.AvatarURL),
		CreatedAt:    created,
	}
}

func (m profileModel) toProfile() (*Profile, error) {
	role, err := ParseRole(m.Role)
	if err != nil {
		// a row with a role outside the enum is corrupt, not a user
		return nil, fmt.Errorf("profile %s: %w", m.ID, err)
	}
	return &Profile{
		ID:           m.ID,
		Email:        m.Email,
		Name:         deref(m.Name),
		MobileNumber: m.MobileNumber,
		Role:         role,
		AvatarURL:    deref(m.AvatarURL),
		CreatedAt:    m.CreatedAt,
	}, nil
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*PostgresStore)(nil)
