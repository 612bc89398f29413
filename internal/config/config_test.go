package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.MaxComboSize != 4 || cfg.MaxActivations != 3 || cfg.MaxTopUps != 15 || cfg.TopNSolutions != 10 {
		t.Errorf("unexpected optimizer defaults: %+v", cfg)
	}
	if cfg.HasslePenalty != 0.50 {
		t.Errorf("expected hassle penalty 0.50, got %v", cfg.HasslePenalty)
	}
	if cfg.DisplayCurrency != "USD" || cfg.DisplayRate != 1.0 {
		t.Errorf("unexpected display defaults %s %v", cfg.DisplayCurrency, cfg.DisplayRate)
	}
	if cfg.SearchSpaceMax != 50 || cfg.LargeCapacityMB != 10240 || !cfg.IncludeAllFree {
		t.Errorf("unexpected search space defaults: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAX_COMBO_SIZE", "3")
	t.Setenv("MAX_ESIM_ACTIVATIONS", "5")
	t.Setenv("HASSLE_PENALTY", "1.25")
	t.Setenv("DISPLAY_CURRENCY", "cad")
	t.Setenv("DISPLAY_RATE", "1.37")
	t.Setenv("RESULT_CACHE_TTL", "30")
	t.Setenv("SEARCH_TIMEOUT", "2s")
	t.Setenv("INCLUDE_ALL_FREE", "false")
	t.Setenv("MAX_COMBINATIONS", "not-a-number")

	cfg := Load()
	if cfg.MaxComboSize != 3 || cfg.MaxActivations != 5 {
		t.Errorf("limits not read from env: %+v", cfg)
	}
	if cfg.HasslePenalty != 1.25 {
		t.Errorf("expected 1.25, got %v", cfg.HasslePenalty)
	}
	if cfg.DisplayCurrency != "CAD" || cfg.DisplayRate != 1.37 {
		t.Errorf("unexpected display config %s %v", cfg.DisplayCurrency, cfg.DisplayRate)
	}
	if cfg.ResultCacheTTL != 30*time.Second {
		t.Errorf("expected seconds fallback, got %v", cfg.ResultCacheTTL)
	}
	if cfg.SearchTimeout != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.SearchTimeout)
	}
	if cfg.IncludeAllFree {
		t.Error("expected free plan inclusion disabled")
	}
	if cfg.MaxCombinations != 0 {
		t.Errorf("invalid value must fall back to default, got %d", cfg.MaxCombinations)
	}
}
