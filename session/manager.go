package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cerrors "github.com/homobie/portal-go/internal/errors"
	"github.com/homobie/portal-go/store"
	"github.com/homobie/portal-go/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshLead = 60 * time.Second
	refreshTimeout     = 30 * time.Second

	loginEndpoint        = "/auth/login"
	logoutEndpoint       = "/auth/logout"
	refreshEndpoint      = "/auth/refresh"
	registerEndpoint     = "/register"
	registerUserEndpoint = "/register/user"
)

// Manager owns the Token Store and the session state machine:
// ANONYMOUS → AUTHENTICATED → (REFRESHING) → AUTHENTICATED|ANONYMOUS.
// REFRESHING is transient and single-flight guarded. It implements
// transport.TokenSource so the request adapter can pull and refresh
// the bearer credential.
type Manager struct {
	st  store.Store
	api *transport.Client
	log zerolog.Logger

	nowTime      func() time.Time
	refreshLead  time.Duration
	onExpired    func()
	httpOverride *http.Client

	refreshGroup singleflight.Group

	mu              sync.Mutex
	creds           store.Credentials
	timer           *time.Timer
	expiredNotified bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// WithHTTPClient replaces the http.Client used for the auth endpoints.
func WithHTTPClient(hc *http.Client) ManagerOption {
	return func(m *Manager) { m.httpOverride = hc }
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithRefreshLead sets how long before token expiry the proactive
// refresh fires. Default is one minute.
func WithRefreshLead(lead time.Duration) ManagerOption {
	return func(m *Manager) { m.refreshLead = lead }
}

// WithOnSessionExpired registers the hook invoked when the session is
// torn down by an unrecoverable 401 (the application's cue to return
// the user to the login screen). Fires at most once per session.
func WithOnSessionExpired(fn func()) ManagerOption {
	return func(m *Manager) { m.onExpired = fn }
}

// NewManager builds a Manager over a credential store and the auth API
// at baseURL. Persisted credentials are reloaded so a restart
// reconstructs the session without re-login, and the proactive refresh
// timer is armed when a token is present.
func NewManager(baseURL string, st store.Store, options ...ManagerOption) (*Manager, error) {
	if baseURL == "" {
		return nil, errors.New("[NewManager] base URL is required")
	}
	if st == nil {
		return nil, errors.New("[NewManager] store is required")
	}

	m := &Manager{
		st:          st,
		log:         zerolog.Nop(),
		nowTime:     time.Now,
		refreshLead: defaultRefreshLead,
	}
	for _, opt := range options {
		opt(m)
	}

	apiOptions := []transport.Option{transport.WithLogger(m.log)}
	if m.httpOverride != nil {
		apiOptions = append(apiOptions, transport.WithHTTPClient(m.httpOverride))
	}
	m.api = transport.New(baseURL, apiOptions...)

	creds, err := st.Load()
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] store.Load")
	}

	m.mu.Lock()
	m.creds = *creds
	m.armTimerLocked()
	m.mu.Unlock()

	return m, nil
}

// Login authenticates against the portal backend. A malformed success
// response is reported as ErrInvalidCredentials; a transport failure
// is wrapped with its original message. On success the credential
// triple is persisted and the proactive refresh timer armed.
func (m *Manager) Login(ctx context.Context, creds LoginCredentials) (*Session, error) {
	var resp AuthResponse
	if err := m.api.Post(ctx, loginEndpoint, creds, &resp, transport.SkipAuth()); err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] login request")
	}
	user, err := resp.validate()
	if err != nil {
		return nil, err
	}
	if err := m.install(resp.Token, resp.RefreshToken, user); err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] persist session")
	}
	m.log.Info().Str("email", user.Email).Str("role", user.Role).Msg("logged in")
	return m.Session(), nil
}

// Register creates a new account and, like Login, installs the
// returned session.
func (m *Manager) Register(ctx context.Context, data RegistrationData) (*AuthResponse, error) {
	return m.register(ctx, registerEndpoint, data)
}

// RegisterUser is the end-user registration variant.
func (m *Manager) RegisterUser(ctx context.Context, data RegistrationData) (*AuthResponse, error) {
	return m.register(ctx, registerUserEndpoint, data)
}

func (m *Manager) register(ctx context.Context, endpoint string, data RegistrationData) (*AuthResponse, error) {
	var resp AuthResponse
	if err := m.api.Post(ctx, endpoint, data, &resp, transport.SkipAuth()); err != nil {
		return nil, errors.Wrap(err, "[Manager.register] registration request")
	}
	user, err := resp.validate()
	if err != nil {
		return nil, cerrors.ErrInvalidResponse
	}
	if err := m.install(resp.Token, resp.RefreshToken, user); err != nil {
		return nil, errors.Wrap(err, "[Manager.register] persist session")
	}
	return &resp, nil
}

// Logout invalidates the server-side session best-effort (a network
// failure is logged, never surfaced) and always clears the local
// store. Calling it while already logged out performs no network call.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.creds.AccessToken
	m.mu.Unlock()

	if token != "" {
		if err := m.api.Post(ctx, logoutEndpoint, nil, nil, transport.WithBearer(token)); err != nil {
			m.log.Warn().Err(err).Msg("server-side logout failed")
		}
	}
	return m.clearSession()
}

// Refresh exchanges the refresh token for new credentials. A no-op
// when no refresh token is present. At most one exchange is in flight
// at a time; concurrent callers await the same result. On failure the
// store is cleared entirely, forcing re-login.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.creds.RefreshToken
	m.mu.Unlock()
	if refreshToken == "" {
		return nil
	}

	_, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, m.exchangeRefreshToken(ctx, refreshToken)
	})
	return err
}

// exchangeRefreshToken performs the actual refresh round-trip. The
// refresh token is sent both in the body and as the bearer header so
// either backend revision accepts it.
func (m *Manager) exchangeRefreshToken(ctx context.Context, refreshToken string) error {
	var resp AuthResponse
	err := m.api.Post(ctx, refreshEndpoint, refreshRequest{RefreshToken: refreshToken}, &resp,
		transport.WithBearer(refreshToken))
	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed, clearing session")
		if clearErr := m.clearSession(); clearErr != nil {
			m.log.Warn().Err(clearErr).Msg("failed clearing session store")
		}
		return errors.Wrap(err, "[Manager.exchangeRefreshToken] refresh request")
	}

	user, validateErr := resp.validate()
	if validateErr != nil {
		if clearErr := m.clearSession(); clearErr != nil {
			m.log.Warn().Err(clearErr).Msg("failed clearing session store")
		}
		return cerrors.ErrInvalidResponse
	}
	if err := m.install(resp.Token, resp.RefreshToken, user); err != nil {
		return errors.Wrap(err, "[Manager.exchangeRefreshToken] persist session")
	}
	m.log.Debug().Str("email", user.Email).Msg("token refreshed")
	return nil
}

// Token returns the current access token, empty when anonymous.
// Implements transport.TokenSource.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.AccessToken
}

// User returns a copy of the cached profile, nil when anonymous.
func (m *Manager) User() *store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds.User == nil {
		return nil
	}
	user := *m.creds.User
	return &user
}

// Session returns a snapshot of the current state, nil when not
// authenticated.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds.AccessToken == "" || m.creds.User == nil {
		return nil
	}
	return &Session{
		AccessToken:  m.creds.AccessToken,
		RefreshToken: m.creds.RefreshToken,
		User:         *m.creds.User,
	}
}

// IsAuthenticated reports whether both a token and a user profile are
// present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.AccessToken != "" && m.creds.User != nil
}

// HasRole reports whether the current user holds any of the given
// roles.
func (m *Manager) HasRole(roles ...Role) bool {
	user := m.User()
	if user == nil {
		return false
	}
	for _, role := range roles {
		if Role(user.Role) == role {
			return true
		}
	}
	return false
}

// HasPermission consults the fixed role→permission table for the
// current user's role.
func (m *Manager) HasPermission(permission Permission) bool {
	user := m.User()
	if user == nil {
		return false
	}
	return roleHasPermission(Role(user.Role), permission)
}

// Invalidate tears the session down after an unrecoverable 401: clear
// the store, stop the refresh timer, and fire the session-expired hook
// at most once. Implements transport.TokenSource.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	notify := !m.expiredNotified
	m.expiredNotified = true
	m.stopTimerLocked()
	m.creds = store.Credentials{}
	m.mu.Unlock()

	if err := m.st.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("failed clearing session store")
	}
	if notify && m.onExpired != nil {
		m.onExpired()
	}
}

// HandleUnauthorized classifies err: anything tagged with HTTP status
// 401 tears the session down regardless of which caller it reached.
// Reports whether the error was consumed as a session expiry.
func (m *Manager) HandleUnauthorized(err error) bool {
	if transport.StatusCode(err) != http.StatusUnauthorized {
		return false
	}
	m.Invalidate()
	return true
}

// Close stops the proactive refresh timer. A stale timer firing after
// Close is harmless: Refresh is a no-op once the refresh token is
// gone.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// install persists new credentials and re-arms the refresh timer.
func (m *Manager) install(token, refreshToken string, user *store.User) error {
	creds := store.Credentials{
		AccessToken:  token,
		RefreshToken: refreshToken,
		User:         user,
	}
	if err := m.st.Save(&creds); err != nil {
		return errors.Wrap(err, "[Manager.install] store.Save")
	}

	m.mu.Lock()
	m.creds = creds
	m.expiredNotified = false
	m.armTimerLocked()
	m.mu.Unlock()
	return nil
}

// clearSession drops all local state without firing the expiry hook
// (explicit logout and failed refresh are not "expired" navigations).
func (m *Manager) clearSession() error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.creds = store.Credentials{}
	m.mu.Unlock()

	if err := m.st.Clear(); err != nil {
		return errors.Wrap(err, "[Manager.clearSession] store.Clear")
	}
	return nil
}

// armTimerLocked schedules exactly one proactive refresh at
// exp − refreshLead. Undecodable tokens silently skip scheduling; the
// backend remains the sole authority on token validity, the exp claim
// is only a timing hint.
func (m *Manager) armTimerLocked() {
	m.stopTimerLocked()
	expiry, ok := tokenExpiry(m.creds.AccessToken)
	if !ok {
		return
	}
	delay := expiry.Sub(m.nowTime()) - m.refreshLead
	if delay <= 0 {
		return
	}
	m.timer = time.AfterFunc(delay, m.refreshOnTimer)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) refreshOnTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := m.Refresh(ctx); err != nil {
		m.log.Warn().Err(err).Msg("scheduled token refresh failed")
	}
}

// tokenExpiry reads the exp claim without verifying the signature.
func tokenExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	expiry, err := token.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, false
	}
	return expiry.Time, true
}
