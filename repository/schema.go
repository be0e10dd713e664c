package repository

import (
	"context"
	"fmt"
)

// schemaStep is one idempotent DDL statement.
type schemaStep struct {
	name string
	sql  string
}

var schema = []schemaStep{
	{"users", `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    profile JSONB NOT NULL DEFAULT '{}'::jsonb,
    prove_of_identity TEXT[] NOT NULL DEFAULT '{}',
    prove_of_income TEXT,
    additional_document TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
)`},
	{"aid_programs", `
CREATE TABLE IF NOT EXISTS aid_programs (
    program_id VARCHAR(100) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    required_tags TEXT[] NOT NULL DEFAULT '{}',
    nominal BIGINT,
    about TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    eligibility TEXT NOT NULL DEFAULT '',
    how_to_apply TEXT NOT NULL DEFAULT '',
    img TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT NOW()
)`},
	{"documents", `
CREATE TABLE IF NOT EXISTS documents (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    kind VARCHAR(50) NOT NULL CHECK (kind IN ('id_card', 'profile_image', 'pay_slip', 'additional')),
    filename VARCHAR(255) NOT NULL,
    mime_type VARCHAR(100) NOT NULL,
    size BIGINT NOT NULL,
    storage_path TEXT NOT NULL,
    url TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
)`},
	{"aid_applications", `
CREATE TABLE IF NOT EXISTS aid_applications (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    program_id VARCHAR(100) NOT NULL REFERENCES aid_programs(program_id),
    status VARCHAR(50) NOT NULL DEFAULT 'pending',
    eligibility_score INTEGER CHECK (eligibility_score BETWEEN 0 AND 100),
    analysis_result TEXT NOT NULL DEFAULT '',
    eligibility_metrics JSONB,
    documents TEXT[] NOT NULL DEFAULT '{}',
    profile_data JSONB NOT NULL DEFAULT '{}'::jsonb,
    category VARCHAR(100),
    created_at TIMESTAMP DEFAULT NOW()
)`},
	{"application_jobs", `
CREATE TABLE IF NOT EXISTS application_jobs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    program_id VARCHAR(100) NOT NULL,
    status VARCHAR(50) NOT NULL DEFAULT 'pending',
    current_stage VARCHAR(50),
    stages JSONB NOT NULL DEFAULT '[]'::jsonb,
    application_id UUID REFERENCES aid_applications(id) ON DELETE SET NULL,
    result JSONB,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    completed_at TIMESTAMP
)`},
	{"idx_aid_applications_user_id", "CREATE INDEX IF NOT EXISTS idx_aid_applications_user_id ON aid_applications(user_id)"},
	{"idx_aid_applications_created_at", "CREATE INDEX IF NOT EXISTS idx_aid_applications_created_at ON aid_applications(created_at DESC)"},
	{"idx_documents_user_id", "CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents(user_id)"},
	{"idx_application_jobs_status", "CREATE INDEX IF NOT EXISTS idx_application_jobs_status ON application_jobs(status)"},
}

// Migrate creates every table and index the repositories use. It is safe
// to run repeatedly. report, when non-nil, is called after each step.
func Migrate(ctx context.Context, db DBTX, report func(step string)) error {
	for _, step := range schema {
		if _, err := db.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", step.name, err)
		}
		if report != nil {
			report(step.name)
		}
	}
	return nil
}
