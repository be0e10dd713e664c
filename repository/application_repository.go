package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"aidflow-backend/models"

	"github.com/google/uuid"
)

// ApplicationRepository handles database operations for aid applications
type ApplicationRepository struct {
	db DBTX
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db DBTX) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts one application row and fills in its ID and CreatedAt.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	var metrics []byte
	if app.EligibilityMetrics != nil {
		b, err := json.Marshal(app.EligibilityMetrics)
		if err != nil {
			return fmt.Errorf("failed to encode eligibility metrics: %w", err)
		}
		metrics = b
	}
	documents := app.Documents
	if documents == nil {
		documents = []string{}
	}

	query := `
		INSERT INTO aid_applications (
			user_id, program_id, status, eligibility_score, analysis_result,
			eligibility_metrics, documents, profile_data, category
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return r.db.QueryRow(
		ctx, query,
		app.UserID,
		app.ProgramID,
		app.Status,
		app.EligibilityScore,
		app.AnalysisResult,
		metrics,
		documents,
		app.ProfileData,
		app.Category,
	).Scan(&app.ID, &app.CreatedAt)
}

// ListByUserID returns a user's applications, newest first.
func (r *ApplicationRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Application, error) {
	query := `
		SELECT id, user_id, program_id, status, eligibility_score, analysis_result,
			eligibility_metrics, documents, profile_data, category, created_at
		FROM aid_applications
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app := &models.Application{}
		var metrics []byte
		err := rows.Scan(
			&app.ID,
			&app.UserID,
			&app.ProgramID,
			&app.Status,
			&app.EligibilityScore,
			&app.AnalysisResult,
			&metrics,
			&app.Documents,
			&app.ProfileData,
			&app.Category,
			&app.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metrics) > 0 {
			app.EligibilityMetrics = &models.EligibilityResult{}
			if err := json.Unmarshal(metrics, app.EligibilityMetrics); err != nil {
				return nil, fmt.Errorf("failed to decode eligibility metrics for %s: %w", app.ID, err)
			}
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

// AppliedProgramIDs returns the distinct program IDs a user has applied to.
func (r *ApplicationRepository) AppliedProgramIDs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT DISTINCT program_id
		FROM aid_applications
		WHERE user_id = $1
		ORDER BY program_id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
