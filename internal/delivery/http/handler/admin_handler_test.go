package handler

import (
	"encoding/json"
	"testing"

	"notebook-scout/internal/delivery/http/dto"
	"notebook-scout/internal/domain/scraperjob"

	"github.com/gofiber/fiber/v3"
)

func newAdminApp(cfg *fakeConfigs) *fiber.App {
	return newTestApp(func(r fiber.Router) {
		NewAdminHandler(cfg, fakeAuth{}).RegisterRoutes(r, guard())
	})
}

func TestAdminHandler_Login(t *testing.T) {
	app := newAdminApp(&fakeConfigs{})

	if status, _, _ := do(t, app, fiber.MethodPost, "/api/v1/auth/admin/login", `{"username":"admin","password":"nope"}`, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}

	status, env, raw := do(t, app, fiber.MethodPost, "/api/v1/auth/admin/login", `{"username":"admin","password":"correct horse"}`, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	var out dto.AdminLoginResponse
	if err := json.Unmarshal(env.Data, &out); err != nil || out.AccessToken != "good-token" || out.ExpiresAt != "2024-03-12T22:00:00Z" {
		t.Fatalf("unexpected login payload %s %v", env.Data, err)
	}
}

func TestAdminHandler_Config(t *testing.T) {
	cfgs := &fakeConfigs{cfg: scraperjob.DefaultConfig()}
	app := newAdminApp(cfgs)

	status, env, _ := do(t, app, fiber.MethodGet, "/api/v1/admin/config", "", nil)
	var got dto.ScraperConfigResponse
	if status != fiber.StatusOK || json.Unmarshal(env.Data, &got) != nil || got.PageLimit != 5 {
		t.Fatalf("unexpected config read %d %s", status, env.Data)
	}

	body := `{"keywords":["thinkpad"],"categories":["c278"],"page_limit":10,"update_interval_minutes":30,"is_active":true}`
	if status, _, _ := do(t, app, fiber.MethodPut, "/api/v1/admin/config", body, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	if status, _, raw := do(t, app, fiber.MethodPut, "/api/v1/admin/config", body, bearer); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	if !cfgs.cfg.IsActive || cfgs.cfg.PageLimit != 10 {
		t.Fatalf("config not saved %+v", cfgs.cfg)
	}
	if status, _, _ := do(t, app, fiber.MethodPut, "/api/v1/admin/config", `{"page_limit":0}`, bearer); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}

	status, env, _ = do(t, app, fiber.MethodGet, "/api/v1/admin/categories", "", nil)
	var cats []map[string]string
	if status != fiber.StatusOK || json.Unmarshal(env.Data, &cats) != nil || len(cats) == 0 || cats[0]["code"] != "c278" {
		t.Fatalf("unexpected categories %d %s", status, env.Data)
	}
}
