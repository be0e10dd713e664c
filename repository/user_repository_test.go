package repository

import (
	"context"
	"testing"
	"time"

	"aidflow-backend/apperr"
	"aidflow-backend/models"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumnNames = []string{
	"id", "email", "password_hash", "name", "profile", "prove_of_identity",
	"prove_of_income", "additional_document", "created_at", "updated_at",
}

func TestUserRepositoryGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	income := "https://files/slip.pdf"
	now := time.Now().UTC()
	mock.ExpectQuery("FROM users WHERE id").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userColumnNames).AddRow(
			id, "siti@example.org", "hash", "Siti",
			[]byte(`{"category":"Education","dependents":3}`),
			[]string{"https://files/ktp.png"}, &income, []string{"https://files/kk.pdf"},
			now, now,
		))

	user, err := NewUserRepository(mock).GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Siti", user.Name)
	assert.Equal(t, "Education", user.Profile["category"])
	assert.Equal(t, []string{
		"https://files/ktp.png",
		"https://files/slip.pdf",
		"https://files/kk.pdf",
	}, user.DocumentURIs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM users WHERE id").WithArgs(id).WillReturnRows(pgxmock.NewRows(userColumnNames))

	_, err = NewUserRepository(mock).GetByID(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	user := &models.User{Email: "a@b.c", PasswordHash: "x", Name: "A", Profile: models.ProfileData{"age": 40}}
	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("a@b.c", "x", "A", user.Profile).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

	require.NoError(t, NewUserRepository(mock).Create(context.Background(), user))
	assert.Equal(t, id, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryAppendDocument(t *testing.T) {
	tests := []struct {
		kind   models.DocumentKind
		column string
	}{
		{models.DocumentIDCard, "prove_of_identity = array_append"},
		{models.DocumentProfileImage, "prove_of_identity = array_append"},
		{models.DocumentPaySlip, "prove_of_income ="},
		{models.DocumentAdditional, "additional_document = array_append"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			id := uuid.New()
			mock.ExpectExec(tt.column).WithArgs(id, "https://files/doc").
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))

			require.NoError(t, NewUserRepository(mock).AppendDocument(context.Background(), id, tt.kind, "https://files/doc"))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepositoryAppendDocumentErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewUserRepository(mock)
	id := uuid.New()

	err = repo.AppendDocument(context.Background(), id, models.DocumentKind("selfie"), "x")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	mock.ExpectExec("UPDATE users").WithArgs(id, "x").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = repo.AppendDocument(context.Background(), id, models.DocumentPaySlip, "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
