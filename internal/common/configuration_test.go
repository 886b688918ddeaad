package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 5010, cfg.Server.Port)
	require.Equal(t, BackendMemory, cfg.ABAC.Backend)
	require.Equal(t, "abac_access_rules", cfg.ABAC.RulesTable)
	require.Equal(t, int64(1024), cfg.ABAC.RegexCacheSize)
	require.Equal(t, "basyx:abac:rules", cfg.Redis.Channel)
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 6000
  contextPath: /api/v3
abac:
  enabled: true
  backend: postgres
  rulesTable: rules
redis:
  addr: localhost:6379
`)
	t.Setenv("ABAC_RULESTABLE", "rules_from_env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 6000, cfg.Server.Port)
	require.Equal(t, "/api/v3", cfg.Server.ContextPath)
	require.True(t, cfg.ABAC.Enabled)
	require.Equal(t, BackendPostgres, cfg.ABAC.Backend)
	require.Equal(t, "rules_from_env", cfg.ABAC.RulesTable)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "abac:\n  backend: etcd\n"))
	require.ErrorContains(t, err, "abac.backend")
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	valid := Config{ABAC: ABACConfig{Backend: BackendMemory, ModelPath: "rules.json", RegexCacheSize: 8}}
	require.NoError(t, valid.Validate())

	noModel := valid
	noModel.ABAC.ModelPath = " "
	require.Error(t, noModel.Validate())

	mongo := noModel
	mongo.ABAC.Backend = BackendMongo
	require.NoError(t, mongo.Validate())

	noCache := valid
	noCache.ABAC.RegexCacheSize = 0
	require.Error(t, noCache.Validate())
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "rules"}
	require.Equal(t, "postgres://u:p@db:5432/rules?sslmode=disable", p.DSN())
	p.SSLMode = "require"
	require.Equal(t, "postgres://u:p@db:5432/rules?sslmode=require", p.DSN())
}
