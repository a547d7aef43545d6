package config

import "testing"

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("VOUCHER_MAX_BULK_QUANTITY", "250")

	cfg := Load()
	if cfg.Server.Port != "9090" {
		t.Fatalf("env override not applied: %q", cfg.Server.Port)
	}
	if cfg.Voucher.MaxBulkQuantity != 250 {
		t.Fatalf("voucher max bulk want 250 got %d", cfg.Voucher.MaxBulkQuantity)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Verification.Length != 6 {
		t.Fatalf("defaults not applied: driver=%s length=%d", cfg.Database.Driver, cfg.Verification.Length)
	}
	if cfg.Notify.SMSProvider != "log" || cfg.Notify.EmailProvider != "log" {
		t.Fatalf("notify providers should default to log")
	}
}

func TestNormalizeRepairsInvalidValues(t *testing.T) {
	cfg := &Config{
		Verification: VerificationConfig{Length: 2, ExpireMinutes: -1},
		Voucher:      VoucherConfig{CodeLength: 3, ApplyRetryLimit: -5},
		Metrics:      MetricsConfig{Path: "  "},
	}
	cfg.normalize()

	if cfg.Verification.Length != 6 || cfg.Verification.ExpireMinutes != 15 {
		t.Fatalf("verification not normalized: %+v", cfg.Verification)
	}
	if cfg.Verification.MaxAttempts != 5 || cfg.Verification.DispatchTimeoutSeconds != 5 {
		t.Fatalf("verification defaults missing: %+v", cfg.Verification)
	}
	if cfg.Voucher.CodeLength != 10 || cfg.Voucher.ApplyRetryLimit != 3 || cfg.Voucher.MaxBulkQuantity != 10000 {
		t.Fatalf("voucher not normalized: %+v", cfg.Voucher)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics path want /metrics got %q", cfg.Metrics.Path)
	}
}
