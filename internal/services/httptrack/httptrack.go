// Package httptrack wires server-rendered page loads into the telemetry
// pipeline. The middleware keeps a long-lived anonymous visitor id in a
// signed cookie, attributes the telemetry session to it until a real user
// signs in, and reports every request as a navigation.
package httptrack

import (
	"crypto/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/services/signals"
	"streamview/telemetry/internal/shared"
)

// VisitorCookie is the cookie carrying the anonymous visitor id.
const VisitorCookie = "__sv_visitor"

const visitorKey = "visitorId"

// SessionTracker is the slice of the telemetry manager the middleware needs.
type SessionTracker interface {
	Identify(userID string)
	Session() shared.Session
}

// Middleware stamps visitor identity and navigation signals onto requests.
type Middleware struct {
	store   *sessions.CookieStore
	tracker SessionTracker
	hub     *signals.Hub
	logger  *logger.Logger
}

// New creates a Middleware. The cookie is scoped to the whole site, HttpOnly,
// SameSite Lax, and lives one year; it is marked Secure when STREAMVIEW_ENV
// is "production".
func New(secret []byte, tracker SessionTracker, hub *signals.Hub, log *logger.Logger) *Middleware {
	if log == nil {
		log = logger.New("httptrack")
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   os.Getenv("STREAMVIEW_ENV") == "production",
		SameSite: http.SameSiteLaxMode,
	}

	return &Middleware{
		store:   store,
		tracker: tracker,
		hub:     hub,
		logger:  log,
	}
}

// SecretFromEnv reads the cookie signing key from TELEMETRY_COOKIE_SECRET.
// When unset it falls back to an ephemeral random key, so visitor ids reset
// on restart instead of the host failing to boot.
func SecretFromEnv(log *logger.Logger) []byte {
	if secret := os.Getenv("TELEMETRY_COOKIE_SECRET"); secret != "" {
		return []byte(secret)
	}

	if log != nil {
		log.Warn("TELEMETRY_COOKIE_SECRET not set, visitor ids reset on restart")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return []byte(uuid.NewString())
	}
	return key
}

// Handler wraps next: it ensures the visitor cookie, identifies the visitor
// while the session is anonymous, and emits one route-change per request.
func (mw *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := mw.store.Get(r, VisitorCookie)
		if err != nil {
			// A stale or tampered cookie decodes into a fresh session; the
			// visitor just gets a new id.
			mw.logger.Debugf("visitor cookie reset: %v", err)
		}

		visitorID, _ := session.Values[visitorKey].(string)
		if visitorID == "" {
			visitorID = "visitor_" + uuid.NewString()
			session.Values[visitorKey] = visitorID
			if err := session.Save(r, w); err != nil {
				mw.logger.Warnf("failed to persist visitor cookie: %v", err)
			}
		}

		if mw.tracker != nil && mw.tracker.Session().UserID == "" {
			mw.tracker.Identify(visitorID)
		}

		if mw.hub != nil {
			mw.hub.EmitRouteChange(r.URL.Path)
		}

		next.ServeHTTP(w, r)
	})
}
