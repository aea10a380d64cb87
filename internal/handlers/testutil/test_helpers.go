package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/app"
	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/cache"
	sharedtestutil "github.com/wardenhq/warden/internal/database/testutil"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/pkg/crypto"
	"github.com/wardenhq/warden/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Users      *users.UserService
	Reset      *users.ResetService
	csrfToken  string
	csrfCookie *http.Cookie
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
	}
	cfg.Server.CSRF.Enabled = true
	cfg.Site.Name = "Warden Test"
	cfg.Site.URL = "http://warden.test"

	store := cache.NewDatabaseStore(db)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	auditSvc, err := users.NewAuditService(db)
	require.NoError(t, err)

	reconciler, err := users.NewRoleProfileReconciler(db)
	require.NoError(t, err)
	policy, err := users.NewPasswordPolicy(db)
	require.NoError(t, err)
	pipeline, err := users.NewPipeline(db, reconciler, policy)
	require.NoError(t, err)

	resetSvc, err := users.NewResetService(db, policy,
		users.WithResetStore(store),
		users.WithResetBaseURL(cfg.Site.URL),
	)
	require.NoError(t, err)

	sealer, err := crypto.NewSealer([]byte("test-suite-encryption-key"))
	require.NoError(t, err)

	userSvc, err := users.NewUserService(db, pipeline, resetSvc,
		users.WithAudit(auditSvc),
		users.WithCache(cache.NewAside(store, time.Minute)),
		users.WithSessions(sessionSvc),
		users.WithSiteName(cfg.Site.Name),
		users.WithSealer(sealer),
	)
	require.NoError(t, err)

	loginMgr, err := iauth.NewLoginManager(db, userSvc, sessionSvc)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{
		DB:        db,
		Config:    cfg,
		JWT:       jwtSvc,
		Sessions:  sessionSvc,
		Login:     loginMgr,
		Users:     userSvc,
		Reset:     resetSvc,
		Audit:     auditSvc,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Sessions: sessionSvc,
		Users:    userSvc,
		Reset:    resetSvc,
	}
}

// CreateUser provisions an enabled account through the save pipeline and
// returns the persisted record. Roles are optional.
func (e *Env) CreateUser(email, firstName, password string, roles ...string) *models.User {
	e.T.Helper()

	result, err := e.Users.Create(e.T.Context(), users.CreateUserInput{
		Email:     email,
		FirstName: firstName,
		Password:  password,
		Roles:     roles,
	})
	require.NoError(e.T, err)
	require.NotNil(e.T, result.User)
	return result.User
}

// CreateManager provisions an account holding the System Manager role.
func (e *Env) CreateManager(email, password string) *models.User {
	e.T.Helper()
	return e.CreateUser(email, "Manager", password, models.RoleSystemManager)
}

// TokenFor opens a session for the named account directly, bypassing the
// credential check, and returns its access token. Accounts allow one
// concurrent session unless configured otherwise, so requesting a second
// token revokes the first.
func (e *Env) TokenFor(name string) string {
	e.T.Helper()

	pair, _, err := e.Sessions.CreateSession(name, iauth.SessionMetadata{
		IPAddress: "127.0.0.1",
		UserAgent: "handler-tests",
	})
	require.NoError(e.T, err)
	return pair.AccessToken
}

// TokenPayload mirrors the token object nested in the login response.
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AccountPayload captures the subset of account fields returned from auth endpoints.
type AccountPayload struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	FirstName string   `json:"first_name"`
	UserType  string   `json:"user_type"`
	Enabled   bool     `json:"enabled"`
	Roles     []string `json:"roles"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPayload   `json:"tokens"`
	User   AccountPayload `json:"user"`
}

// Login authenticates with an email or username and returns the issued tokens.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.NotEmpty(e.T, result.User.Name)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, false)
}

// RequestWithAuthHeader is Request with a verbatim Authorization header,
// for the "token api_key:api_secret" scheme.
func (e *Env) RequestWithAuthHeader(method, path string, body any, authorization string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", authorization)

	if requiresCSRFAttestation(method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	e.captureCSRF(rec.Result())
	return rec
}

func (e *Env) request(method, path string, body any, token string, skipCSRF bool) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if !skipCSRF && requiresCSRFAttestation(method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w.Result())
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	resp := e.request(http.MethodGet, "/health", nil, "", true)
	require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CSRFCookieName {
			// Clone to avoid unintended mutations between tests
			e.csrfCookie = &http.Cookie{
				Name:       c.Name,
				Value:      c.Value,
				Path:       c.Path,
				Domain:     c.Domain,
				Expires:    c.Expires,
				Raw:        c.Raw,
				MaxAge:     c.MaxAge,
				Secure:     c.Secure,
				HttpOnly:   c.HttpOnly,
				SameSite:   c.SameSite,
				RawExpires: c.RawExpires,
			}
			break
		}
	}
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
