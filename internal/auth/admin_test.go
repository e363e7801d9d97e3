package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kospresensi/internal/apperr"
)

func TestEnsureAdminSkipsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM admins WHERE username = $1)`)).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewAdminStore(db)
	require.NoError(t, store.EnsureAdmin(context.Background(), "admin", "rahasia-sekali"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAdminCreatesWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM admins WHERE username = $1)`)).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO admins").
		WithArgs(sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewAdminStore(db)
	require.NoError(t, store.EnsureAdmin(context.Background(), "admin", "rahasia-sekali"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAdminRejectsEmptyCredentials(t *testing.T) {
	store := NewAdminStore(nil)
	assert.Error(t, store.EnsureAdmin(context.Background(), "admin", ""))
	assert.Error(t, store.EnsureAdmin(context.Background(), "", "pw"))
}

func TestAuthenticate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia-sekali"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, password_hash FROM admins").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("admin-1", string(hash)))

	store := NewAdminStore(db)
	id, err := store.Authenticate(context.Background(), "admin", "rahasia-sekali")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", id)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia-sekali"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, password_hash FROM admins").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("admin-1", string(hash)))

	store := NewAdminStore(db)
	_, err = store.Authenticate(context.Background(), "admin", "salah")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, password_hash FROM admins").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}))

	store := NewAdminStore(db)
	_, err = store.Authenticate(context.Background(), "ghost", "pw")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}
