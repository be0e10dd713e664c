package repository

import (
	"context"

	"aidflow-backend/models"
)

// ProgramStore reads aid programs.
type ProgramStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]*models.AidProgram, error)
	GetByID(ctx context.Context, id string) (*models.AidProgram, error)
}

// ProgramRepository handles database operations for aid programs
type ProgramRepository struct {
	db DBTX
}

// NewProgramRepository creates a new program repository
func NewProgramRepository(db DBTX) *ProgramRepository {
	return &ProgramRepository{db: db}
}

const programColumns = `program_id, name, description, required_tags, nominal, about,
			details, eligibility, how_to_apply, img, created_at`

func scanProgram(row interface{ Scan(dest ...any) error }) (*models.AidProgram, error) {
	p := &models.AidProgram{}
	err := row.Scan(
		&p.ProgramID,
		&p.Name,
		&p.Description,
		&p.RequiredTags,
		&p.Nominal,
		&p.About,
		&p.Details,
		&p.Eligibility,
		&p.HowToApply,
		&p.Img,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID retrieves one program.
func (r *ProgramRepository) GetByID(ctx context.Context, id string) (*models.AidProgram, error) {
	query := `
		SELECT ` + programColumns + `
		FROM aid_programs
		WHERE program_id = $1`

	p, err := scanProgram(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "aid program "+id)
	}
	return p, nil
}

// GetByIDs retrieves the programs with the given IDs ordered by name.
// Unknown IDs are skipped.
func (r *ProgramRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.AidProgram, error) {
	if len(ids) == 0 {
		return []*models.AidProgram{}, nil
	}

	query := `
		SELECT ` + programColumns + `
		FROM aid_programs
		WHERE program_id = ANY($1)
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	programs := make([]*models.AidProgram, 0, len(ids))
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}

	return programs, rows.Err()
}

// Upsert inserts the program or replaces its descriptive fields.
func (r *ProgramRepository) Upsert(ctx context.Context, p *models.AidProgram) error {
	tags := p.RequiredTags
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO aid_programs (
			program_id, name, description, required_tags, nominal, about,
			details, eligibility, how_to_apply, img
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (program_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			required_tags = EXCLUDED.required_tags,
			nominal = EXCLUDED.nominal,
			about = EXCLUDED.about,
			details = EXCLUDED.details,
			eligibility = EXCLUDED.eligibility,
			how_to_apply = EXCLUDED.how_to_apply,
			img = EXCLUDED.img
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		p.ProgramID,
		p.Name,
		p.Description,
		tags,
		p.Nominal,
		p.About,
		p.Details,
		p.Eligibility,
		p.HowToApply,
		p.Img,
	).Scan(&p.CreatedAt)
}
