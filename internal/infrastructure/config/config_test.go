package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledgerlink", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "ledgerlink", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("profiling defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.False(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://localhost:4040", cfg.Telemetry.ProfilingAddress)
		assert.False(t, cfg.Telemetry.SpanProfiles)
	})

	t.Run("profiling from environment", func(t *testing.T) {
		t.Setenv("LEDGERLINK_TELEMETRY_PROFILING_ENABLED", "true")
		t.Setenv("LEDGERLINK_TELEMETRY_PROFILING_ADDRESS", "http://pyroscope:4040")
		t.Setenv("LEDGERLINK_TELEMETRY_SPAN_PROFILES", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.True(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://pyroscope:4040", cfg.Telemetry.ProfilingAddress)
		assert.True(t, cfg.Telemetry.SpanProfiles)
	})

	t.Run("sync defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"86536": "deal_currency", "78831": "deal_currency_code"}, cfg.Sync.CurrencyFields)
		assert.Empty(t, cfg.Sync.QuoteStages)
		assert.Equal(t, 20, cfg.Sync.PollHour)
		assert.Equal(t, 0, cfg.Sync.PollMinute)
		assert.Equal(t, "Australia/Sydney", cfg.Sync.PollTimezone)
		assert.True(t, cfg.Sync.PollEnabled)
		assert.False(t, cfg.Sync.PropagateDeletions)
		assert.Equal(t, 24*time.Hour, cfg.Sync.DedupTTL)
		assert.Equal(t, 3, cfg.Sync.RetryAttempts)

		factor, err := cfg.Sync.WriteBackFactor()
		require.NoError(t, err)
		assert.True(t, factor.Equal(decimal.RequireFromString("1.10")))

		loc, err := cfg.Sync.Location()
		require.NoError(t, err)
		assert.Equal(t, "Australia/Sydney", loc.String())
	})

	t.Run("loads values from environment variables with LEDGERLINK prefix", func(t *testing.T) {
		t.Setenv("LEDGERLINK_APP_PORT", "9000")
		t.Setenv("LEDGERLINK_DATABASE_HOST", "testdb.local")
		t.Setenv("LEDGERLINK_DATABASE_PORT", "5433")
		t.Setenv("LEDGERLINK_DATABASE_PASSWORD", "testpass")
		t.Setenv("LEDGERLINK_CRM_CLIENT_ID", "client")
		t.Setenv("LEDGERLINK_CRM_CLIENT_SECRET", "secret")
		t.Setenv("LEDGERLINK_SYNC_POLL_HOUR", "0")
		t.Setenv("LEDGERLINK_SYNC_POLL_MINUTE", "45")
		t.Setenv("LEDGERLINK_SYNC_PROPAGATE_DELETIONS", "true")
		t.Setenv("LEDGERLINK_SYNC_DEAL_AMOUNT_WRITEBACK_FACTOR", "1.0")
		t.Setenv("LEDGERLINK_SYNC_RETRY_ATTEMPTS", "0")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "client", cfg.CRM.ClientID)
		assert.Equal(t, "secret", cfg.CRM.ClientSecret)
		assert.Equal(t, 0, cfg.Sync.PollHour, "an explicit midnight is kept")
		assert.Equal(t, 45, cfg.Sync.PollMinute)
		assert.True(t, cfg.Sync.PropagateDeletions)
		assert.Equal(t, 0, cfg.Sync.RetryAttempts)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("LEDGERLINK_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("LEDGERLINK_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		t.Setenv("LEDGERLINK_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})
}

func TestLoad_SyncValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"poll hour out of range", "LEDGERLINK_SYNC_POLL_HOUR", "24", "PollHour"},
		{"poll minute out of range", "LEDGERLINK_SYNC_POLL_MINUTE", "60", "PollMinute"},
		{"unknown time zone", "LEDGERLINK_SYNC_POLL_TIMEZONE", "Mars/Olympus", "PollTimezone"},
		{"non-numeric factor", "LEDGERLINK_SYNC_DEAL_AMOUNT_WRITEBACK_FACTOR", "ten percent", "DealAmountWriteBackFactor"},
		{"negative factor", "LEDGERLINK_SYNC_DEAL_AMOUNT_WRITEBACK_FACTOR", "-1.1", "must be positive"},
		{"negative workers", "LEDGERLINK_SYNC_WORKERS", "-2", "Workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("LEDGERLINK_APP_ENV", "production")
		t.Setenv("LEDGERLINK_OPS_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("LEDGERLINK_DATABASE_PASSWORD", "secure-password")
		t.Setenv("LEDGERLINK_DATABASE_SSLMODE", "require")
		t.Setenv("LEDGERLINK_CRM_CLIENT_ID", "client")
		t.Setenv("LEDGERLINK_CRM_CLIENT_SECRET", "secret")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires CRM app credentials", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGERLINK_CRM_CLIENT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crm.client_id and crm.client_secret are required")
	})

	t.Run("requires a long ops jwt secret", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGERLINK_OPS_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ops.jwt_secret must be at least 32 characters")
	})

	t.Run("requires database.password", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGERLINK_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGERLINK_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
