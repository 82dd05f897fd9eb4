package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

const admin = "0x00000000000000000000000000000000000000ad"

func TestFromEnv(t *testing.T) {
	t.Setenv("LEDGER_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("REDIS_POOL_SIZE", "nope")
	t.Setenv("OUTBOX_RELAY_INTERVAL", "250ms")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10, cfg.Redis.PoolSize, "unparseable values fall back to defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.RelayInterval)
	assert.Equal(t, "ledger.audit", cfg.Kafka.AuditTopicPrefix)
}

func TestLoadGenesis(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		g, err := LoadGenesis("")
		require.NoError(t, err)
		assert.Equal(t, DefaultGenesis(), g)
		assert.Equal(t, domain.Bps(300), g.Token.BurnRateBps)
		assert.Equal(t, 60*24*time.Hour, g.Token.PackTiers[0].LockDuration)
	})

	t.Run("file overrides only what it names", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "genesis.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
admin: "`+admin+`"
compliance_gated: true
token:
  burn_rate_bps: 250
governance:
  voting_period: 72h
  executors:
    - "0x00000000000000000000000000000000000000e1"
`), 0o600))

		g, err := LoadGenesis(path)
		require.NoError(t, err)
		require.NoError(t, g.Validate())
		assert.True(t, g.ComplianceGated)
		assert.Equal(t, domain.MustAddress(admin), g.Admin)
		assert.Equal(t, domain.Bps(250), g.Token.BurnRateBps)
		assert.Equal(t, 7*24*time.Hour, g.Token.LockDuration)
		assert.Equal(t, 72*time.Hour, g.Governance.VotingPeriod)
		assert.Len(t, g.Governance.Executors, 1)
		assert.Equal(t, domain.Bps(9000), g.Revenue.MerchantBps)
	})

	t.Run("malformed address is a validation error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "genesis.yaml")
		require.NoError(t, os.WriteFile(path, []byte("admin: nope\n"), 0o600))
		_, err := LoadGenesis(path)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestGenesisValidate(t *testing.T) {
	valid := func() Genesis {
		g := DefaultGenesis()
		g.Admin = domain.MustAddress(admin)
		return g
	}

	tests := []struct {
		name   string
		mutate func(*Genesis)
		code   dErrors.Code
	}{
		{"missing admin", func(g *Genesis) { g.Admin = domain.Address{} }, dErrors.CodeValidation},
		{"burn rate above 100%", func(g *Genesis) { g.Token.BurnRateBps = 10001 }, dErrors.CodeValidation},
		{"split not conserving", func(g *Genesis) { g.Revenue.ReferrerBps = 200 }, dErrors.CodeConservation},
		{"withholding above 100%", func(g *Genesis) { g.Tax.ForeignSurchargeBps = 9500 }, dErrors.CodeConservation},
		{"no signatures", func(g *Genesis) { g.Governance.RequiredSignatures = 0 }, dErrors.CodeValidation},
		{"duplicate tier", func(g *Genesis) { g.Token.PackTiers = append(g.Token.PackTiers, g.Token.PackTiers[0]) }, dErrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := valid()
			tt.mutate(&g)
			err := g.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.code), err.Error())
		})
	}

	require.NoError(t, valid().Validate())
}
