package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/repository"
)

const (
	sessionKey = "session"
	userIDKey  = "userID"
	userKey    = "currentUser"
)

// NotLoggedInMessage is the body of 401 responses from the gate.
const NotLoggedInMessage = "Not logged in"

// DefaultTTL is the absolute session lifetime.
const DefaultTTL = 24 * time.Hour

// Config controls cookie naming and lifetime.
type Config struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
	LoginPath  string
}

// UserLookup resolves the user bound to a session.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Manager binds sessions to requests through a signed cookie.
type Manager struct {
	store  Store
	cfg    Config
	signer tokenSigner
	logger *logrus.Logger
	now    func() time.Time
}

func NewManager(store Store, cfg Config, logger *logrus.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "parcel.sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if logger == nil {
		logger = logrus.New()
	}
	m := &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	m.signer = tokenSigner{secret: []byte(cfg.Secret), now: m.clock}
	return m, nil
}

func (m *Manager) clock() time.Time {
	return m.now()
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Load attaches the caller's session to the gin context. Missing, forged or
// expired cookies produce an unsaved anonymous session.
func (m *Manager) Load() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(sessionKey, m.load(c))
		c.Next()
	}
}

func (m *Manager) load(c *gin.Context) *domain.Session {
	raw, err := c.Cookie(m.cfg.CookieName)
	if err != nil || raw == "" {
		return &domain.Session{}
	}

	id, err := m.signer.parse(raw)
	if err != nil {
		m.logger.WithError(err).Debug("rejecting session cookie")
		return &domain.Session{}
	}

	ctx := c.Request.Context()
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.logger.WithError(err).Warn("load session")
		}
		return &domain.Session{}
	}

	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			m.logger.WithError(err).Warn("delete expired session")
		}
		return &domain.Session{}
	}
	return s
}

// FromContext returns the session attached by Load, or an anonymous one.
func FromContext(c *gin.Context) *domain.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*domain.Session); ok && s != nil {
			return s
		}
	}
	return &domain.Session{}
}

// UserID returns the authenticated user id set by RequireLogin.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// CurrentUser returns the user loaded by RequireRole.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok && u != nil
}

// Start issues a fresh session bound to userID and sets the cookie. Any
// previous session is discarded; its dark mode preference carries over.
func (m *Manager) Start(c *gin.Context, userID int64) (*domain.Session, error) {
	ctx := c.Request.Context()
	prev := FromContext(c)
	if prev.ID != "" {
		if err := m.store.Delete(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("discard previous session: %w", err)
		}
	}

	uid := userID
	s := m.newSession()
	s.UserID = &uid
	s.DarkMode = prev.DarkMode
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := m.setCookie(c, s); err != nil {
		return nil, err
	}
	c.Set(sessionKey, s)
	return s, nil
}

// Save persists changes to the request session, creating it when needed.
func (m *Manager) Save(c *gin.Context, s *domain.Session) error {
	ctx := c.Request.Context()
	if s.ID == "" {
		fresh := m.newSession()
		s.ID = fresh.ID
		s.CreatedAt = fresh.CreatedAt
		s.ExpiresAt = fresh.ExpiresAt
		if err := m.store.Create(ctx, s); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := m.setCookie(c, s); err != nil {
			return err
		}
	} else if err := m.store.Update(ctx, s); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	c.Set(sessionKey, s)
	return nil
}

// Destroy removes the request session and clears the cookie.
func (m *Manager) Destroy(c *gin.Context) error {
	s := FromContext(c)
	if s.ID != "" {
		if err := m.store.Delete(c.Request.Context(), s.ID); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cfg.CookieName, "", -1, "/", "", m.cfg.Secure, true)
	c.Set(sessionKey, &domain.Session{})
	return nil
}

// RequireLogin rejects requests without an authenticated session. Page
// clients are redirected to the login page; JSON-only clients get 401.
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := FromContext(c)
		if !s.Authenticated() {
			m.logger.WithField("path", c.Request.URL.Path).Debug("user not logged in")
			if wantsJSON(c.Request) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": NotLoggedInMessage})
				return
			}
			c.Redirect(http.StatusFound, m.cfg.LoginPath)
			c.Abort()
			return
		}
		c.Set(userIDKey, *s.UserID)
		c.Next()
	}
}

// RequireRole must run after RequireLogin.
func (m *Manager) RequireRole(users UserLookup, role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": NotLoggedInMessage})
			return
		}
		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": NotLoggedInMessage})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": domain.ErrForbidden.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// Sweep deletes expired sessions from the store.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now().UTC())
}

// RunSweeper sweeps on every tick until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.WithError(err).Warn("sweep expired sessions")
				continue
			}
			if n > 0 {
				m.logger.Infof("swept %d expired sessions", n)
			}
		}
	}
}

func (m *Manager) newSession() *domain.Session {
	now := m.now().UTC()
	return &domain.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
}

func (m *Manager) setCookie(c *gin.Context, s *domain.Session) error {
	token, err := m.signer.sign(s.ID, s.ExpiresAt)
	if err != nil {
		return err
	}
	maxAge := int(s.ExpiresAt.Sub(m.now()).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cfg.CookieName, token, maxAge, "/", "", m.cfg.Secure, true)
	return nil
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
