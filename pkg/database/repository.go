package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Repository wraps the gorm handle with the queries the service needs.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a Repository over db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// FindOrCreateKey fetches the record for an HMAC key, creating it on first
// use, and stamps LastUsed.
func (r *Repository) FindOrCreateKey(key, name string) (*APIKey, error) {
	var apiKey APIKey
	err := r.db.Where(APIKey{Key: key}).Attrs(APIKey{
		Name:       name,
		KeyPreview: Preview(key),
		RateLimit:  10000,
	}).FirstOrCreate(&apiKey).Error
	if err != nil {
		return nil, fmt.Errorf("find api key: %w", err)
	}

	now := r.now()
	if err := r.db.Model(&apiKey).Update("last_used", &now).Error; err != nil {
		return nil, fmt.Errorf("touch api key: %w", err)
	}
	apiKey.LastUsed = &now
	return &apiKey, nil
}

// CreateKey stores a newly issued key.
func (r *Repository) CreateKey(key, name string, rateLimit int) (*APIKey, error) {
	apiKey := APIKey{
		Key:        key,
		Name:       name,
		KeyPreview: Preview(key),
		RateLimit:  rateLimit,
	}
	if err := r.db.Create(&apiKey).Error; err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &apiKey, nil
}

// ListKeys returns every key, newest first.
func (r *Repository) ListKeys() ([]APIKey, error) {
	var keys []APIKey
	if err := r.db.Order("created_at desc").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeKey deletes a key by id.
func (r *Repository) RevokeKey(id uint) error {
	res := r.db.Delete(&APIKey{}, id)
	if res.Error != nil {
		return fmt.Errorf("revoke api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateKeyLimit changes the daily request limit of a key.
func (r *Repository) UpdateKeyLimit(id uint, limit int) error {
	res := r.db.Model(&APIKey{}).Where("id = ?", id).Update("rate_limit", limit)
	if res.Error != nil {
		return fmt.Errorf("update rate limit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordUsage adds one request to today's usage row for keyID using a
// single upsert.
func (r *Repository) RecordUsage(keyID uint, shifts, employees int) error {
	today := r.now().Format("2006-01-02")

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":   gorm.Expr("request_count + ?", 1),
			"total_shifts":    gorm.Expr("total_shifts + ?", shifts),
			"total_employees": gorm.Expr("total_employees + ?", employees),
		}),
	}).Create(&APIUsage{
		KeyID:          keyID,
		Date:           today,
		RequestCount:   1,
		TotalShifts:    shifts,
		TotalEmployees: employees,
	}).Error
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// RequestsToday returns how many requests keyID has made today.
func (r *Repository) RequestsToday(keyID uint) (int, error) {
	var usage APIUsage
	err := r.db.Where("key_id = ? AND date = ?", keyID, r.now().Format("2006-01-02")).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load usage: %w", err)
	}
	return usage.RequestCount, nil
}

// UsageForKey returns the last 30 days of usage for keyID.
func (r *Repository) UsageForKey(keyID uint) ([]APIUsage, error) {
	var usage []APIUsage
	if err := r.db.Where("key_id = ?", keyID).Order("date desc").Limit(30).Find(&usage).Error; err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	return usage, nil
}

// RecordEvent appends to a session's audit trail.
func (r *Repository) RecordEvent(ev *ScheduleEvent) error {
	if err := r.db.Create(ev).Error; err != nil {
		return fmt.Errorf("record schedule event: %w", err)
	}
	return nil
}

// EventsForSession returns a session's audit trail, oldest first.
func (r *Repository) EventsForSession(sessionID string) ([]ScheduleEvent, error) {
	var events []ScheduleEvent
	if err := r.db.Where("session_id = ?", sessionID).Order("id asc").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("load schedule events: %w", err)
	}
	return events, nil
}

// FindUser looks up an admin by username.
func (r *Repository) FindUser(username string) (*MasterUser, error) {
	var user MasterUser
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// CountUsers returns the number of admin accounts.
func (r *Repository) CountUsers() (int64, error) {
	var count int64
	if err := r.db.Model(&MasterUser{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CreateUser stores an admin account.
func (r *Repository) CreateUser(username, passwordHash string) error {
	user := MasterUser{Username: username, PasswordHash: passwordHash}
	if err := r.db.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Preview shortens a key for display, e.g. "tea...9f3a".
func Preview(key string) string {
	if len(key) > 8 {
		return key[:3] + "..." + key[len(key)-4:]
	}
	return "****"
}
