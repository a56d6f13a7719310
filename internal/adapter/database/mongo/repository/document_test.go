package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"fastap/internal/core/domain"
)

func TestToDocument_StoresLegacyRoleAndNullTokens(t *testing.T) {
	account := domain.Account{
		ID:           bson.NewObjectID().Hex(),
		Username:     "alice1",
		Role:         domain.RoleAdmin,
		ConfirmToken: "confirm",
	}

	doc, err := toDocument(account)
	require.NoError(t, err)

	assert.Equal(t, "ADMINISTRADOR", doc.Role)
	assert.Equal(t, "confirm", *doc.ConfirmEmail)
	assert.Nil(t, doc.RecoveryToken)

	_, err = toDocument(domain.Account{ID: "not-an-object-id"})
	assert.Error(t, err)
}

func TestFromDocument_RejectsUnknownRole(t *testing.T) {
	_, err := fromDocument(accountDocument{ID: bson.NewObjectID(), Role: "ROOT"})
	assert.Error(t, err)

	account, err := fromDocument(accountDocument{ID: bson.NewObjectID(), Role: "USUARIO"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleRegular, account.Role)
	assert.Empty(t, account.RecoveryToken)
}

func TestSetDocument_OnlyTouchesChangedFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	name := "Alice Cooper"
	cleared := ""

	set := setDocument(domain.AccountChanges{Name: &name, RecoveryToken: &cleared}, now)

	assert.Equal(t, bson.D{
		{Key: "updatedAt", Value: now},
		{Key: "name", Value: name},
		{Key: "recoveryToken", Value: (*string)(nil)},
	}, set)
}

func TestTranslateError(t *testing.T) {
	duplicate := func(index string) error {
		return mongo.WriteException{WriteErrors: mongo.WriteErrors{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: fastap.accounts index: " + index,
		}}}
	}

	assert.ErrorIs(t, translateError(duplicate("accounts_username_key")), domain.ErrDuplicateUsername)
	assert.ErrorIs(t, translateError(duplicate("accounts_email_key")), domain.ErrDuplicateEmail)
	assert.ErrorIs(t, translateError(mongo.ErrNoDocuments), domain.ErrAccountNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, translateError(other))
}
