package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"crm-gateway/internal/db"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostgresStore keeps local identities in the identities table.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(d *db.DB) *PostgresStore {
	return &PostgresStore{db: d.DB}
}

type credentialModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Email        string    `gorm:"column:email"`
	DisplayName  string    `gorm:"column:display_name"`
	PasswordHash string    `gorm:"column:password_hash"`
	HashVersion  string    `gorm:"column:hash_version"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (credentialModel) TableName() string { return "identities" }

func (s *PostgresStore) Create(ctx context.Context, c Credential) error {
	row := credentialModel(c)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Credential, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrIdentityNotFound
	}
	return s.first(ctx, "id = ?", id)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	return s.first(ctx, "LOWER(email) = LOWER(?)", strings.TrimSpace(email))
}

func (s *PostgresStore) first(ctx context.Context, query string, arg any) (*Credential, error) {
	var row credentialModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	c := Credential(row)
	return &c, nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id, hash, version string) error {
	res := s.db.WithContext(ctx).
		Model(&credentialModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash": hash,
			"hash_version":  version,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrIdentityNotFound
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&credentialModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
