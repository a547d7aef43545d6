package cache

import (
	"context"
	"testing"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/models"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init redis failed: %v", err)
	}
	if Enabled() {
		t.Fatalf("cache should be disabled")
	}
	ctx := context.Background()
	if err := SetUserAuthState(ctx, BuildUserAuthState(&models.User{ID: 1})); err != nil {
		t.Fatalf("set should be a no-op: %v", err)
	}
	state, hit, err := GetUserAuthState(ctx, 1)
	if err != nil || hit || state != nil {
		t.Fatalf("get should miss: state=%v hit=%v err=%v", state, hit, err)
	}
	if err := Ping(ctx); err != nil {
		t.Fatalf("ping should be a no-op: %v", err)
	}
}

func TestBuildKey(t *testing.T) {
	UseClient(nil, "mc")
	if got := BuildKey("auth:user:1"); got != "mc:auth:user:1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := BuildKey("  "); got != "mc" {
		t.Fatalf("unexpected empty key: %s", got)
	}
}

func TestBuildAdminAuthState(t *testing.T) {
	state := BuildAdminAuthState(&models.Admin{ID: 3, TokenVersion: 2, IsSuper: true})
	if state.ID != 3 || state.TokenVersion != 2 || !state.IsSuper {
		t.Fatalf("unexpected state: %+v", state)
	}
	if BuildAdminAuthState(nil) != nil {
		t.Fatalf("nil admin should produce nil state")
	}
}
