package services_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
	"librarycatalog/internal/services"
)

func TestRegisterHashesPassword(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Register(f.ctx, "  alice ", "wonderland")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.NotZero(t, u.UserID)

	var stored models.User
	require.NoError(t, f.db.First(&stored, "user_id = ?", u.UserID).Error)
	require.NotEqual(t, "wonderland", stored.Password)
	require.Equal(t, epoch, stored.CreatedAt.UTC())
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "missing username", username: "", password: "pw"},
		{name: "blank username", username: "   ", password: "pw"},
		{name: "missing password", username: "bob", password: ""},
		{name: "long username", username: strings.Repeat("a", 51), password: "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(f.ctx, tt.username, tt.password)
			require.ErrorIs(t, err, services.ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")

	_, err := f.svc.Register(f.ctx, "alice", "other")
	require.ErrorIs(t, err, services.ErrDuplicateUsername)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	registered, err := f.svc.Register(f.ctx, "alice", "wonderland")
	require.NoError(t, err)

	u, err := f.svc.Login(f.ctx, "alice", "wonderland")
	require.NoError(t, err)
	require.Equal(t, registered.UserID, u.UserID)

	_, err = f.svc.Login(f.ctx, "alice", "looking-glass")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = f.svc.Login(f.ctx, "mallory", "wonderland")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = f.svc.Login(f.ctx, "", "")
	require.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.user(t, "bob")

	updated, err := f.svc.UpdateUser(f.ctx, alice.UserID, "alicia", "new-secret")
	require.NoError(t, err)
	require.Equal(t, "alicia", updated.Username)

	_, err = f.svc.Login(f.ctx, "alicia", "new-secret")
	require.NoError(t, err)
	_, err = f.svc.Login(f.ctx, "alice", "secret-alice")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = f.svc.UpdateUser(f.ctx, alice.UserID, "bob", "pw")
	require.ErrorIs(t, err, services.ErrDuplicateUsername)

	_, err = f.svc.UpdateUser(f.ctx, alice.UserID+100, "carol", "pw")
	require.ErrorIs(t, err, services.ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	b := f.book(t, "Middlemarch", "George Eliot", 1871)

	c, err := f.svc.CheckoutBook(f.ctx, b.BookID, alice.UserID)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.DeleteUser(f.ctx, alice.UserID), services.ErrUserHasActiveCheckouts)

	_, err = f.svc.ReturnCheckout(f.ctx, c.CheckoutID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteUser(f.ctx, alice.UserID))

	_, err = f.svc.GetUser(f.ctx, alice.UserID)
	require.ErrorIs(t, err, services.ErrUserNotFound)
	require.ErrorIs(t, f.svc.DeleteUser(f.ctx, alice.UserID), services.ErrUserNotFound)

	// History survives and the name can be taken again.
	history, err := f.svc.ListCheckouts(f.ctx, repositories.CheckoutFilter{UserID: &alice.UserID})
	require.NoError(t, err)
	require.Len(t, history, 1)

	again, err := f.svc.Register(f.ctx, "alice", "fresh")
	require.NoError(t, err)
	require.NotEqual(t, alice.UserID, again.UserID)

	_, err = f.svc.CheckoutBook(f.ctx, b.BookID, alice.UserID)
	require.ErrorIs(t, err, services.ErrUserNotFound)
}
