package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	"github.com/router-for-me/mclink/internal/tokens"
	"gorm.io/gorm"
)

const testSecret = "admin-test-secret"

type fixtures struct {
	engine  *gin.Engine
	conn    *gorm.DB
	staff   models.User
	player  models.User
	account models.MinecraftAccount
	free    models.GameToken
}

func setup(t *testing.T) *fixtures {
	t.Helper()
	return setupWithOTP(t, false)
}

func setupWithOTP(t *testing.T, requireOTP bool) *fixtures {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	f := &fixtures{conn: conn}
	f.staff = models.User{Username: "op", Email: "op@example.com", Password: "x", IsStaff: true}
	f.player = models.User{Username: "Steve", Email: "steve@example.com", Password: "x", Slots: 2}
	for _, u := range []*models.User{&f.staff, &f.player} {
		if errCreate := conn.Create(u).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}

	now := time.Now().UTC()
	bound := models.GameToken{UserID: f.player.ID, Value: "bound-token", IsActive: false, GeneratedAt: now.Add(-time.Hour)}
	f.free = models.GameToken{UserID: f.player.ID, Value: "free-token", IsActive: true, GeneratedAt: now}
	for _, tok := range []*models.GameToken{&bound, &f.free} {
		if errCreate := conn.Create(tok).Error; errCreate != nil {
			t.Fatalf("create token: %v", errCreate)
		}
	}
	conn.Model(&bound).Update("is_active", false)
	f.account = models.MinecraftAccount{Nickname: "ada_lovelace", OwnerID: f.player.ID, TokenID: bound.ID, IsActive: true}
	if errCreate := conn.Create(&f.account).Error; errCreate != nil {
		t.Fatalf("create account: %v", errCreate)
	}

	f.engine = gin.New()
	jwtCfg := config.JWTConfig{Secret: testSecret, AccessExpiry: time.Minute}
	RegisterAdminRoutes(f.engine, conn, jwtCfg, requireOTP, linking.NewLinker(conn, nil), tokens.NewService(conn))
	return f
}

func (f *fixtures) do(t *testing.T, userID uint64, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var token string
	if userID != 0 {
		var err error
		token, err = security.IssueUserToken(testSecret, userID, security.TokenTypeAccess, time.Minute, time.Now())
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
	}
	return f.send(t, token, method, path, body)
}

func (f *fixtures) send(t *testing.T, token, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestAdminRequiresStaff(t *testing.T) {
	f := setup(t)
	if code, _ := f.do(t, 0, http.MethodGet, "/api/admin/users/", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 anonymous, got %d", code)
	}
	if code, _ := f.do(t, f.player.ID, http.MethodGet, "/api/admin/users/", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for regular user, got %d", code)
	}
	if code, _ := f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/", nil); code != http.StatusOK {
		t.Fatalf("expected 200 for staff, got %d", code)
	}
}

func TestAdminUsers(t *testing.T) {
	f := setup(t)

	code, out := f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/?search=STEVE", nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	users, _ := out["users"].([]any)
	if len(users) != 1 || users[0].(map[string]any)["username"] != "Steve" {
		t.Fatalf("unexpected search result %v", out)
	}

	code, out = f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/?is_staff=true", nil)
	if users, _ = out["users"].([]any); code != http.StatusOK || len(users) != 1 {
		t.Fatalf("expected one staff user, got %d %v", code, out)
	}

	code, out = f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/"+itoa(f.player.ID)+"/", nil)
	if code != http.StatusOK || out["tokens_issued"] != float64(2) || out["accounts"] != float64(1) || out["slots"] != float64(2) {
		t.Fatalf("unexpected detail %d %v", code, out)
	}

	if code, _ = f.do(t, f.staff.ID, http.MethodPatch, "/api/admin/users/"+itoa(f.player.ID)+"/", map[string]any{"slots": 0}); code != http.StatusBadRequest {
		t.Fatalf("expected zero slots to be rejected, got %d", code)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodPatch, "/api/admin/users/"+itoa(f.player.ID)+"/", map[string]any{"preferred_language": "de"}); code != http.StatusBadRequest {
		t.Fatalf("expected unsupported language to be rejected, got %d", code)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodPatch, "/api/admin/users/"+itoa(f.player.ID)+"/", map[string]any{"slots": 5, "preferred_language": "UK"}); code != http.StatusOK {
		t.Fatalf("update: %d", code)
	}
	var reloaded models.User
	f.conn.First(&reloaded, f.player.ID)
	if reloaded.Slots != 5 || reloaded.PreferredLanguage != "uk" {
		t.Fatalf("update not applied: %+v", reloaded)
	}

	if code, _ = f.do(t, f.staff.ID, http.MethodPatch, "/api/admin/users/999/", map[string]any{"slots": 1}); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/abc/", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", code)
	}

	if code, _ = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/users/"+itoa(f.player.ID)+"/disable/", nil); code != http.StatusOK {
		t.Fatalf("disable: %d", code)
	}
	if code, _ = f.do(t, f.player.ID, http.MethodGet, "/api/admin/users/", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected disabled user to be rejected, got %d", code)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/users/"+itoa(f.player.ID)+"/enable/", nil); code != http.StatusOK {
		t.Fatalf("enable: %d", code)
	}

	if code, _ = f.do(t, f.staff.ID, http.MethodPut, "/api/admin/users/"+itoa(f.player.ID)+"/password/", map[string]string{"password": "short"}); code != http.StatusBadRequest {
		t.Fatalf("expected short password to be rejected, got %d", code)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodPut, "/api/admin/users/"+itoa(f.player.ID)+"/password/", map[string]string{"password": "a-long-password"}); code != http.StatusOK {
		t.Fatalf("change password: %d", code)
	}
	f.conn.First(&reloaded, f.player.ID)
	if !security.CheckPassword(reloaded.Password, "a-long-password") {
		t.Fatalf("expected new password hash")
	}

	code, out = f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/"+itoa(f.player.ID)+"/tokens/", nil)
	toks, _ := out["tokens"].([]any)
	if code != http.StatusOK || len(toks) != 2 {
		t.Fatalf("unexpected tokens %d %v", code, out)
	}
	if newest := toks[0].(map[string]any); newest["account_id"] != nil || newest["value"] != nil {
		t.Fatalf("newest token should be unbound and hide its value: %v", newest)
	}
}

func TestAdminAccountsAndTokens(t *testing.T) {
	f := setup(t)

	code, out := f.do(t, f.staff.ID, http.MethodGet, "/api/admin/minecraft/accounts/?nickname=ADA&owner_id="+itoa(f.player.ID), nil)
	accounts, _ := out["accounts"].([]any)
	if code != http.StatusOK || len(accounts) != 1 {
		t.Fatalf("unexpected accounts %d %v", code, out)
	}
	code, out = f.do(t, f.staff.ID, http.MethodGet, "/api/admin/minecraft/accounts/?is_dead=true", nil)
	if accounts, _ = out["accounts"].([]any); code != http.StatusOK || len(accounts) != 0 {
		t.Fatalf("expected no dead accounts, got %v", out)
	}

	code, out = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/minecraft/accounts/"+itoa(f.account.ID)+"/deactivate/", nil)
	if code != http.StatusOK || out["is_active"] != false || out["deactivated_at"] == nil {
		t.Fatalf("deactivate: %d %v", code, out)
	}
	code, out = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/minecraft/accounts/"+itoa(f.account.ID)+"/activate/", nil)
	if code != http.StatusOK || out["is_active"] != true || out["deactivated_at"] != nil {
		t.Fatalf("activate: %d %v", code, out)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/minecraft/accounts/999/deactivate/", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}

	if code, _ = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/tokens/"+itoa(f.account.TokenID)+"/revoke/", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for bound token, got %d", code)
	}
	code, out = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/tokens/"+itoa(f.free.ID)+"/revoke/", nil)
	if code != http.StatusOK || out["active"] != false {
		t.Fatalf("revoke: %d %v", code, out)
	}
	if code, _ = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/tokens/999/revoke/", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func TestAdminTOTPVerification(t *testing.T) {
	f := setupWithOTP(t, true)

	code, out := f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/", nil)
	if code != http.StatusForbidden || out["otp_required"] != true {
		t.Fatalf("expected otp required, got %d %v", code, out)
	}
	if code, _ := f.do(t, f.player.ID, http.MethodGet, "/api/admin/otp/status/", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for regular user on otp routes, got %d", code)
	}
	if code, _ := f.do(t, f.staff.ID, http.MethodPost, "/api/admin/otp/verify/", map[string]string{"code": "123456"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 verify without device, got %d", code)
	}

	code, out = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/otp/totp/prepare/", nil)
	secret, _ := out["secret"].(string)
	if code != http.StatusOK || secret == "" {
		t.Fatalf("prepare: %d %v", code, out)
	}
	if code, _ := f.do(t, f.staff.ID, http.MethodPost, "/api/admin/otp/totp/confirm/", map[string]string{"code": "000000x"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad code, got %d", code)
	}

	current := func() string {
		c, err := totp.GenerateCode(secret, time.Now())
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		return c
	}
	code, out = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/otp/totp/confirm/", map[string]string{"code": current()})
	confirmed, _ := out["access"].(string)
	if code != http.StatusOK || confirmed == "" {
		t.Fatalf("confirm: %d %v", code, out)
	}
	if code, _ := f.send(t, confirmed, http.MethodGet, "/api/admin/users/", nil); code != http.StatusOK {
		t.Fatalf("expected 200 with verified token, got %d", code)
	}
	if code, _ := f.do(t, f.staff.ID, http.MethodPost, "/api/admin/otp/totp/prepare/", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 on second prepare, got %d", code)
	}

	// A fresh login still needs the verify step.
	if code, _ := f.do(t, f.staff.ID, http.MethodGet, "/api/admin/users/", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified token, got %d", code)
	}
	code, out = f.do(t, f.staff.ID, http.MethodPost, "/api/admin/otp/verify/", map[string]string{"code": current()})
	verified, _ := out["access"].(string)
	if code != http.StatusOK || verified == "" {
		t.Fatalf("verify: %d %v", code, out)
	}
	code, out = f.send(t, verified, http.MethodGet, "/api/admin/otp/status/", nil)
	if code != http.StatusOK || out["totp_enabled"] != true || out["otp_verified"] != true {
		t.Fatalf("status: %d %v", code, out)
	}

	if code, _ := f.send(t, verified, http.MethodPost, "/api/admin/otp/totp/disable/", map[string]string{"code": current()}); code != http.StatusOK {
		t.Fatalf("disable: %d", code)
	}
	if code, _ := f.send(t, verified, http.MethodGet, "/api/admin/users/", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 once the device is removed, got %d", code)
	}
	var staff models.User
	if errFind := f.conn.First(&staff, f.staff.ID).Error; errFind != nil {
		t.Fatalf("reload staff: %v", errFind)
	}
	if staff.TOTPEnabled || staff.TOTPSecret != "" {
		t.Fatalf("expected device cleared, got %+v", staff)
	}
}
