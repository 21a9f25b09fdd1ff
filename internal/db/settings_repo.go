package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"homeweather/internal/types"
)

// DefaultSettingsKey is the row holding the single installation's document.
const DefaultSettingsKey = "default"

const settingsSchema = `CREATE TABLE IF NOT EXISTS home_weather_settings (
	id         TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// SettingsRepository stores the configuration document as a JSONB row. It
// satisfies settings.Store.
type SettingsRepository struct {
	db  DBTX
	key string
}

// NewSettingsRepository creates a SettingsRepository for the default row.
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db, key: DefaultSettingsKey}
}

// EnsureSchema creates the settings table when it does not exist.
func (r *SettingsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, settingsSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create settings table", err)
	}
	return nil
}

// Load returns the stored document decoded over the defaults. found is false
// when no row exists.
func (r *SettingsRepository) Load(ctx context.Context) (*types.Document, bool, error) {
	var raw []byte
	var updatedAt time.Time
	err := r.db.QueryRow(ctx,
		`SELECT document::text, updated_at FROM home_weather_settings WHERE id = $1`,
		r.key,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to load settings", err)
	}

	var doc types.Document
	if err := doc.Scan(raw); err != nil {
		return nil, true, types.NewAppErrorWithDetails(types.ErrCodeParseDocument,
			"failed to decode stored settings", err, map[string]any{"updated_at": updatedAt})
	}
	return &doc, true, nil
}

// Save upserts the document.
func (r *SettingsRepository) Save(ctx context.Context, doc *types.Document) error {
	if doc == nil {
		return types.NewAppError(types.ErrCodeValidationMissingField, "settings document is required", nil)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO home_weather_settings (id, document, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
		r.key,
		*doc,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save settings", err)
	}
	return nil
}

// Name implements the health probe contract.
func (r *SettingsRepository) Name() string { return "settings_database" }

// Check runs a trivial query against the database.
func (r *SettingsRepository) Check(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "settings database unreachable", err)
	}
	return nil
}
