package handlers_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/handlers/testutil"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
)

func TestSignUp(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/account/sign-up", map[string]string{
		"email":      "new.visitor@example.com",
		"first_name": "New",
		"last_name":  "Visitor",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	testutil.DecodeInto(t, resp.Data, &result)
	require.Equal(t, users.SignUpMailed, result.Code)

	var user models.User
	require.NoError(t, env.DB.Take(&user, "name = ?", "new.visitor@example.com").Error)
	require.Equal(t, models.UserTypeWebsite, user.UserType)
	require.Equal(t, "New", user.FirstName)
	require.Equal(t, "Visitor", user.LastName)
	require.Equal(t, "New Visitor", user.FullName)

	t.Run("repeat registration reports the existing account", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/sign-up", map[string]string{
			"email":      "New.Visitor@Example.com",
			"first_name": "New",
			"last_name":  "Visitor",
		}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := testutil.DecodeResponse(t, w)
		testutil.DecodeInto(t, resp.Data, &result)
		require.Equal(t, users.SignUpExisting, result.Code)
		require.Equal(t, "Already Registered", result.Message)
	})

	t.Run("first name alone is enough", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/sign-up", map[string]string{
			"email":      "mononym@example.com",
			"first_name": "Teller",
		}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var user models.User
		require.NoError(t, env.DB.Take(&user, "name = ?", "mononym@example.com").Error)
		require.Equal(t, "Teller", user.FirstName)
		require.Empty(t, user.LastName)
	})

	t.Run("rejects a malformed email", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/sign-up", map[string]string{
			"email":      "not-an-email",
			"first_name": "Nope",
		}, "")
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestResetPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("forgetful@example.com", "Frida", "correct horse battery staple")

	t.Run("accepts a known account", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/reset-password", map[string]string{
			"user": "forgetful@example.com",
		}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var user models.User
		require.NoError(t, env.DB.Take(&user, "name = ?", "forgetful@example.com").Error)
		require.NotEmpty(t, user.ResetPasswordKey)
	})

	t.Run("unknown accounts come back not found", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/reset-password", map[string]string{
			"user": "stranger@example.com",
		}, "")
		require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	})

	t.Run("the Administrator cannot be reset", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/reset-password", map[string]string{
			"user": "Administrator",
		}, "")
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestUpdatePasswordWithResetKey(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("rotate@example.com", "Rosa", "correct horse battery staple")

	link, err := env.Reset.IssueResetKey(context.Background(), user, users.IssueOptions{})
	require.NoError(t, err)
	key := resetKeyFromLink(t, link)

	w := env.Request(http.MethodPost, "/api/account/update-password", map[string]string{
		"new_password": "entirely different passphrase",
		"key":          key,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var result struct {
		RedirectTo string                `json:"redirect_to"`
		Tokens     testutil.TokenPayload `json:"tokens"`
	}
	testutil.DecodeInto(t, resp.Data, &result)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.RedirectTo)

	// Old password is gone, new one works.
	env.Login("rotate@example.com", "entirely different passphrase")

	t.Run("a redeemed key cannot be replayed", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/update-password", map[string]string{
			"new_password": "yet another passphrase",
			"key":          key,
		}, "")
		require.Equal(t, http.StatusGone, w.Code, w.Body.String())
	})
}

func TestUpdatePasswordWithOldPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("cycling@example.com", "Cyd", "correct horse battery staple")

	result := env.Login("cycling@example.com", "correct horse battery staple")

	w := env.Request(http.MethodPost, "/api/account/update-password", map[string]any{
		"new_password": "fresh strong replacement",
		"old_password": "correct horse battery staple",
	}, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.Login("cycling@example.com", "fresh strong replacement")

	t.Run("anonymous callers need a key or a session", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/update-password", map[string]string{
			"new_password": "does not matter",
			"old_password": "fresh strong replacement",
		}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	})
}

func TestVerifyPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("checker@example.com", "Chess", "correct horse battery staple")

	result := env.Login("checker@example.com", "correct horse battery staple")

	w := env.Request(http.MethodPost, "/api/account/verify-password", map[string]string{
		"password": "correct horse battery staple",
	}, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("wrong password fails", func(t *testing.T) {
		w := env.Request(http.MethodPost, "/api/account/verify-password", map[string]string{
			"password": "wrong",
		}, result.Tokens.AccessToken)
		require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	})
}

func TestSwitchTheme(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("stylist@example.com", "Sky", "correct horse battery staple")

	result := env.Login("stylist@example.com", "correct horse battery staple")

	w := env.Request(http.MethodPatch, "/api/account/theme", map[string]string{
		"theme": "Dark",
	}, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var user models.User
	require.NoError(t, env.DB.Take(&user, "name = ?", "stylist@example.com").Error)
	require.Equal(t, "Dark", user.DeskTheme)
}

func resetKeyFromLink(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "?")
	require.Positive(t, idx, link)
	values, err := url.ParseQuery(link[idx+1:])
	require.NoError(t, err)
	require.NotEmpty(t, values.Get("key"), link)
	return values.Get("key")
}
