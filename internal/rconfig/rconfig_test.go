package rconfig

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CwndStart != DefaultCwndStart {
		t.Fatalf("expected default cwnd %d, got %d", DefaultCwndStart, cfg.CwndStart)
	}
	if cfg.SingleSegmentMax != DefaultSingleSegmentSizeMax {
		t.Fatalf("expected default max segment size %d, got %d", DefaultSingleSegmentSizeMax, cfg.SingleSegmentMax)
	}
}

func TestLoadRejectsInvalidSegmentBounds(t *testing.T) {
	v := viper.New()
	v.Set("single_segment_size_min", 100)
	v.Set("single_segment_size_max", 10)
	if _, err := Load(v, ""); err == nil {
		t.Fatalf("expected validation error for inverted bounds")
	}
}

func TestEnvPrefixOverridesDefault(t *testing.T) {
	t.Setenv("RDFT_CWND_START", "42")
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CwndStart != 42 {
		t.Fatalf("expected env override to set cwnd to 42, got %d", cfg.CwndStart)
	}
}
