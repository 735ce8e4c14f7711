package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "KRAKEN_API_KEY", "KRAKEN_API_SECRET",
		"AUTONOMOUS_TRADING", "MULTI_PROFILE_ENABLED", "MAX_DRAWDOWN_PERCENT",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadAppliesDefaultsWithoutAutonomousTrading(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.False(t, cfg.AutonomousTrading)
	require.Len(t, cfg.Profiles, 1)
	require.Equal(t, "equity-standard", cfg.Profiles[0].Name)
}

func TestLoadFailsWhenAutonomousTradingMissingAlpacaCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTONOMOUS_TRADING", "true")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadSucceedsWithCredentialsPresent(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTONOMOUS_TRADING", "true")
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "secret")
	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.AutonomousTrading)
}

func TestMultiProfileEnabledAddsCryptoProfile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTONOMOUS_TRADING", "true")
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "secret")
	t.Setenv("KRAKEN_API_KEY", "key")
	t.Setenv("KRAKEN_API_SECRET", "secret")
	t.Setenv("MULTI_PROFILE_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Profiles, 2)
	require.Equal(t, "crypto-micro", cfg.Profiles[1].Name)
}

func TestValidateRejectsNonPositiveMaxDrawdown(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_DRAWDOWN_PERCENT", "0")
	_, err := Load("")
	require.Error(t, err)
}
