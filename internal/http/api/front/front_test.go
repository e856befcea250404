package front

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/identity"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/nickname"
	"github.com/router-for-me/mclink/internal/ratelimit"
	"github.com/router-for-me/mclink/internal/tokens"
	"gorm.io/gorm"
)

type testEnv struct {
	engine *gin.Engine
	conn   *gorm.DB
}

func newTestEnv(t *testing.T, provider http.HandlerFunc) *testEnv {
	t.Helper()
	return newTestEnvWithLimiter(t, provider, ratelimit.NewManager(config.RateLimitConfig{}, nil, nil))
}

func newTestEnvWithLimiter(t *testing.T, provider http.HandlerFunc, limiter *ratelimit.Manager) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "front.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	upstream := httptest.NewServer(provider)
	t.Cleanup(upstream.Close)

	jwtCfg := config.JWTConfig{Secret: "front-test-secret", AccessExpiry: time.Minute, RefreshExpiry: time.Hour}
	client := identity.NewClient(upstream.URL, time.Second)
	linker := linking.NewLinker(conn, nickname.NewResolver(client, nickname.NewGormClaims(conn)))

	engine := gin.New()
	engine.Use(middleware.Languages(conn, jwtCfg))
	RegisterFrontRoutes(engine, conn, jwtCfg, config.CookieConfig{}, Services{
		Tokens:  tokens.NewService(conn),
		Linker:  linker,
		Limiter: limiter,
	})
	return &testEnv{engine: engine, conn: conn}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &out); errUnmarshal != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), errUnmarshal)
	}
	return out
}

// login registers a user and returns the auth cookies.
func (e *testEnv) login(t *testing.T, username string) []*http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/accounts/register/", map[string]string{
		"username": username, "email": username + "@example.com", "password": "correct-horse",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/api/accounts/token/", map[string]string{
		"username": username, "password": "correct-horse",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func randomUserOK(names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type name struct {
			First string `json:"first"`
			Last  string `json:"last"`
		}
		type result struct {
			Name name `json:"name"`
		}
		var payload struct {
			Results []result `json:"results"`
		}
		for i := 0; i+1 < len(names); i += 2 {
			payload.Results = append(payload.Results, result{Name: name{First: names[i], Last: names[i+1]}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func TestAccountsFlow(t *testing.T) {
	env := newTestEnv(t, randomUserOK("Ada", "Lovelace"))

	rec := env.do(t, http.MethodPost, "/api/accounts/register/", map[string]string{"username": "steve", "password": "short"}, nil)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["password"] == nil {
		t.Fatalf("expected password validation error, got %d %s", rec.Code, rec.Body.String())
	}

	cookies := env.login(t, "steve")
	var access, refresh string
	for _, cookie := range cookies {
		switch cookie.Name {
		case middleware.AccessCookieName:
			access = cookie.Value
			if !cookie.HttpOnly {
				t.Fatalf("access cookie must be HttpOnly")
			}
		case middleware.RefreshCookieName:
			refresh = cookie.Value
		}
	}
	if access == "" || refresh == "" {
		t.Fatalf("expected both auth cookies, got %+v", cookies)
	}

	rec = env.do(t, http.MethodPost, "/api/accounts/register/", map[string]string{"username": "steve", "password": "another-pass"}, nil)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["username"] == nil {
		t.Fatalf("expected duplicate username error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/accounts/token/", map[string]string{"username": "steve", "password": "wrong-pass"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/accounts/me/", nil, cookies)
	if rec.Code != http.StatusOK || decode(t, rec)["username"] != "steve" {
		t.Fatalf("unexpected me response: %d %s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodGet, "/api/accounts/me/", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookies, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/accounts/refresh/", map[string]string{"refresh": refresh}, nil)
	if rec.Code != http.StatusOK || decode(t, rec)["access"] == "" {
		t.Fatalf("unexpected refresh response: %d %s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodPost, "/api/accounts/refresh/", map[string]string{"refresh": access}, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token must not refresh, got %d", rec.Code)
	}

	if rec = env.do(t, http.MethodPost, "/api/accounts/verify/", map[string]string{"token": access}, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected verify 200, got %d", rec.Code)
	}
	if rec = env.do(t, http.MethodPost, "/api/accounts/verify/", map[string]string{"token": "nope"}, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected verify 401, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/accounts/logout/", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge >= 0 {
			t.Fatalf("expected %s to be cleared", cookie.Name)
		}
	}
}

func TestIssueAndLink(t *testing.T) {
	env := newTestEnv(t, randomUserOK("Ålex", "Stone"))
	cookies := env.login(t, "steve")

	if rec := env.do(t, http.MethodPost, "/api/accounts/tokens/", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/minecraft/link-token/", nil, cookies)
	if rec.Code != http.StatusForbidden || decode(t, rec)["detail"] != "No available tokens. Generate one first." {
		t.Fatalf("expected 403 no tokens, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/accounts/tokens/", nil, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	issued := decode(t, rec)
	if issued["active"] != true || issued["value"] == "" || issued["generated_at"] == nil {
		t.Fatalf("unexpected token payload: %v", issued)
	}

	rec = env.do(t, http.MethodPost, "/api/accounts/tokens/", nil, cookies)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 quota exceeded, got %d", rec.Code)
	}
	quota := decode(t, rec)
	if quota["limit"] != float64(1) || quota["current"] != float64(1) || quota["detail"] == nil {
		t.Fatalf("unexpected quota payload: %v", quota)
	}

	rec = env.do(t, http.MethodGet, "/api/minecraft/link-token/?gender=male&nationality=us", nil, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 link, got %d %s", rec.Code, rec.Body.String())
	}
	linked := decode(t, rec)
	if linked["ok"] != true || linked["nickname"] != "alex_stone" || linked["uuid"] != nil || linked["account_id"] == nil {
		t.Fatalf("unexpected link payload: %v", linked)
	}

	rec = env.do(t, http.MethodGet, "/api/accounts/tokens/", nil, cookies)
	list := decode(t, rec)
	items, _ := list["tokens"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["active"] != false || items[0].(map[string]any)["account_id"] == nil {
		t.Fatalf("unexpected token list: %v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/minecraft/accounts/", nil, cookies)
	accounts, _ := decode(t, rec)["accounts"].([]any)
	if len(accounts) != 1 {
		t.Fatalf("expected one account, got %s", rec.Body.String())
	}
}

func TestLinkUpstreamFailures(t *testing.T) {
	cases := []struct {
		name     string
		provider http.HandlerFunc
		detail   string
	}{
		{
			name:     "status",
			provider: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			detail:   "Identity provider error.",
		},
		{
			name:     "exhaustion",
			provider: randomUserOK("", ""),
			detail:   "Currently impossible to generate a new user, please try again later.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.provider)
			cookies := env.login(t, "steve")
			if rec := env.do(t, http.MethodPost, "/api/accounts/tokens/", nil, cookies); rec.Code != http.StatusCreated {
				t.Fatalf("issue: %d", rec.Code)
			}

			rec := env.do(t, http.MethodPost, "/api/minecraft/link-token/", nil, cookies)
			if rec.Code != http.StatusBadGateway || decode(t, rec)["detail"] != tc.detail {
				t.Fatalf("expected 502 %q, got %d %s", tc.detail, rec.Code, rec.Body.String())
			}

			var active int64
			env.conn.Model(&models.GameToken{}).Where("is_active = ?", true).Count(&active)
			var accounts int64
			env.conn.Model(&models.MinecraftAccount{}).Count(&accounts)
			if active != 1 || accounts != 0 {
				t.Fatalf("expected untouched state, active=%d accounts=%d", active, accounts)
			}
		})
	}
}

func TestLinkUpstreamUnreachable(t *testing.T) {
	env := newTestEnv(t, randomUserOK())
	cookies := env.login(t, "steve")
	if rec := env.do(t, http.MethodPost, "/api/accounts/tokens/", nil, cookies); rec.Code != http.StatusCreated {
		t.Fatalf("issue: %d", rec.Code)
	}

	// Point the linker at a closed server.
	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closed.Close()
	jwtCfg := config.JWTConfig{Secret: "front-test-secret", AccessExpiry: time.Minute, RefreshExpiry: time.Hour}
	linker := linking.NewLinker(env.conn, nickname.NewResolver(identity.NewClient(closed.URL, time.Second), nickname.NewGormClaims(env.conn)))
	engine := gin.New()
	RegisterFrontRoutes(engine, env.conn, jwtCfg, config.CookieConfig{}, Services{Tokens: tokens.NewService(env.conn), Linker: linker})
	env.engine = engine

	rec := env.do(t, http.MethodPost, "/api/minecraft/link-token/", nil, cookies)
	if rec.Code != http.StatusBadGateway || decode(t, rec)["detail"] != "Failed to generate identity. Please try again." {
		t.Fatalf("expected 502 unreachable, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRoutesThrottledPerIP(t *testing.T) {
	now := time.Unix(1700000000, 0)
	limiter := ratelimit.NewManager(config.RateLimitConfig{AuthPerSecond: 2}, func() time.Time { return now }, nil)
	env := newTestEnvWithLimiter(t, randomUserOK(), limiter)

	creds := map[string]string{"username": "steve", "password": "wrong-pass"}
	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodPost, "/api/accounts/token/", creds, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/accounts/token/", creds, nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 once the ip budget is spent, got %d %v", rec.Code, rec.Header())
	}
	// register and refresh share the same per-ip budget.
	if rec := env.do(t, http.MethodPost, "/api/accounts/register/", map[string]string{"username": "alex", "password": "correct-horse"}, nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected register to be throttled, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/accounts/refresh/", map[string]string{"refresh": "x"}, nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected refresh to be throttled, got %d", rec.Code)
	}

	now = now.Add(time.Second)
	if rec := env.do(t, http.MethodPost, "/api/accounts/token/", creds, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected next window to pass the limiter, got %d", rec.Code)
	}
}
