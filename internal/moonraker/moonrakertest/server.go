// Package moonrakertest provides an in-process fake Moonraker server
// for client and driver tests. It implements just enough of the REST
// surface to exercise the real HTTP paths: printer info, object
// query/list, G-code script submission, firmware restart and the JWT
// session endpoints.
//
// The zero-configuration server answers as a ready 400x400x300 machine
// with nothing homed. Tests mutate state through the Set/Patch helpers
// and inspect received G-code through Scripts.
package moonrakertest

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = time.Hour

// Server is a fake Moonraker instance bound to a local listener.
// All methods are safe for concurrent use.
type Server struct {
	httpSrv *httptest.Server

	mu              sync.Mutex
	klippyState     string
	klippyMessage   string
	hostname        string
	softwareVersion string
	objects         map[string]map[string]any
	scripts         []string
	gcodeStatus     int
	gcodeMessage    string
	restarts        int
	queries         int
	onQuery         func(n int)

	apiKey      string
	username    string
	password    string
	signingKey  []byte
	tokenTTL    time.Duration
	failRefresh bool
	logins      int
	refreshes   int
}

// New starts a fake server in the ready state with default objects.
// Callers must Close it.
func New() *Server {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("moonrakertest: cannot seed signing key: " + err.Error())
	}

	s := &Server{
		klippyState:     "ready",
		klippyMessage:   "Printer is ready",
		hostname:        "fakeprinter",
		softwareVersion: "v0.12.0-fake",
		objects:         defaultObjects(),
		signingKey:      key,
		tokenTTL:        defaultTokenTTL,
	}

	r := chi.NewRouter()
	r.Get("/printer/info", s.withAuth(s.handleInfo))
	r.Get("/printer/objects/query", s.withAuth(s.handleObjectsQuery))
	r.Get("/printer/objects/list", s.withAuth(s.handleObjectsList))
	r.Post("/printer/gcode/script", s.withAuth(s.handleGCodeScript))
	r.Post("/printer/firmware_restart", s.withAuth(s.handleFirmwareRestart))
	r.Post("/access/login", s.handleLogin)
	r.Post("/access/refresh_jwt", s.handleRefresh)

	s.httpSrv = httptest.NewServer(r)
	return s
}

// defaultObjects mirrors a freshly booted single-toolhead machine:
// ready, nothing homed, cold bed, 400x400x300 travel.
func defaultObjects() map[string]map[string]any {
	return map[string]map[string]any{
		"webhooks": {
			"state":         "ready",
			"state_message": "Printer is ready",
		},
		"toolhead": {
			"position":     []float64{0, 0, 0, 0},
			"homed_axes":   "",
			"axis_minimum": []float64{0, 0, 0, 0},
			"axis_maximum": []float64{400, 400, 300, 0},
			"max_velocity": 500.0,
			"max_accel":    3000.0,
			"moving":       false,
			"extruder":     "extruder",
		},
		"gcode_move": {
			"speed_factor":         1.0,
			"absolute_coordinates": true,
			"position":             []float64{0, 0, 0, 0},
		},
		"print_stats": {
			"state":    "standby",
			"filename": "",
		},
		"extruder": {
			"temperature": 21.4,
			"target":      0.0,
			"power":       0.0,
		},
		"heater_bed": {
			"temperature": 21.6,
			"target":      0.0,
			"power":       0.0,
		},
	}
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// Close shuts the listener down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// SetKlippyState sets the state and message reported by /printer/info.
func (s *Server) SetKlippyState(state, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.klippyState = state
	s.klippyMessage = message
}

// SetObject replaces one Klipper object's attributes. Unknown names
// create new objects, which is how tests grow chamber sensors.
func (s *Server) SetObject(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	s.objects[name] = copied
}

// PatchObject sets a single attribute on an existing object, creating
// the object when absent.
func (s *Server) PatchObject(name, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	if !ok {
		obj = make(map[string]any)
		s.objects[name] = obj
	}
	obj[key] = value
}

// RemoveObject deletes an object so queries for it come back empty.
func (s *Server) RemoveObject(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
}

// Scripts returns every G-code script received, oldest first.
func (s *Server) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.scripts))
	copy(out, s.scripts)
	return out
}

// LastScript returns the most recent G-code script, or "".
func (s *Server) LastScript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scripts) == 0 {
		return ""
	}
	return s.scripts[len(s.scripts)-1]
}

// FailGCode makes subsequent gcode/script calls answer with the given
// status and message. Status 0 restores success.
func (s *Server) FailGCode(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcodeStatus = status
	s.gcodeMessage = message
}

// Restarts returns how many firmware restarts were requested.
func (s *Server) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// OnObjectsQuery registers a hook called with the 1-based query count
// before each objects/query response. Wait-loop tests use it to flip
// the moving flag after a few polls.
func (s *Server) OnObjectsQuery(fn func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQuery = fn
}

// RequireAPIKey makes /printer routes demand this X-Api-Key value.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

// EnableJWT makes /printer routes demand a bearer token issued by
// /access/login with these credentials.
func (s *Server) EnableJWT(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.password = password
}

// SetTokenTTL controls the lifetime of issued access tokens. Short
// TTLs force the client's refresh path.
func (s *Server) SetTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = d
}

// FailRefresh makes /access/refresh_jwt answer 401 regardless of the
// token, forcing clients down the re-login path.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// Logins returns how many /access/login calls succeeded.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Refreshes returns how many /access/refresh_jwt calls succeeded.
func (s *Server) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// ===== Handlers =====

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	result := map[string]any{
		"state":            s.klippyState,
		"state_message":    s.klippyMessage,
		"hostname":         s.hostname,
		"software_version": s.softwareVersion,
	}
	s.mu.Unlock()
	writeResult(w, result)
}

func (s *Server) handleObjectsQuery(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries++
	n := s.queries
	hook := s.onQuery
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	s.mu.Lock()
	status := make(map[string]any)
	for name := range r.URL.Query() {
		if obj, ok := s.objects[name]; ok {
			copied := make(map[string]any, len(obj))
			for k, v := range obj {
				copied[k] = v
			}
			status[name] = copied
		}
	}
	s.mu.Unlock()

	writeResult(w, map[string]any{
		"eventtime": float64(time.Now().UnixMilli()) / 1000.0,
		"status":    status,
	})
}

func (s *Server) handleObjectsList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	s.mu.Unlock()
	writeResult(w, map[string]any{"objects": names})
}

func (s *Server) handleGCodeScript(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Script string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	if s.gcodeStatus != 0 {
		status, message := s.gcodeStatus, s.gcodeMessage
		s.mu.Unlock()
		writeError(w, status, message)
		return
	}
	s.scripts = append(s.scripts, payload.Script)
	s.mu.Unlock()

	writeResult(w, "ok")
}

func (s *Server) handleFirmwareRestart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
	writeResult(w, "ok")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Source   string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username == "" || payload.Username != s.username || payload.Password != s.password {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	s.logins++
	writeResult(w, map[string]any{
		"username":      payload.Username,
		"token":         s.issueToken(payload.Username),
		"refresh_token": s.issueToken(payload.Username + ":refresh"),
		"source":        payload.Source,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRefresh || !s.tokenValid(payload.RefreshToken) {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	s.refreshes++
	writeResult(w, map[string]any{
		"username": s.username,
		"token":    s.issueToken(s.username),
	})
}

// ===== Auth plumbing =====

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	s.mu.Lock()
	apiKey, username := s.apiKey, s.username
	s.mu.Unlock()

	if apiKey == "" && username == "" {
		return true
	}
	if apiKey != "" && r.Header.Get("X-Api-Key") == apiKey {
		return true
	}
	if username != "" {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if bearer != r.Header.Get("Authorization") && s.bearerValid(bearer) {
			return true
		}
	}
	return false
}

func (s *Server) bearerValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenValid(token)
}

// tokenValid verifies signature and expiry. Callers hold s.mu.
func (s *Server) tokenValid(token string) bool {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && parsed.Valid
}

// issueToken signs an HS256 token with the server TTL. Callers hold s.mu.
func (s *Server) issueToken(subject string) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		panic("moonrakertest: signing token: " + err.Error())
	}
	return token
}

// ===== Response helpers =====

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}
