package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/group-service/infrastructure"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o600))
	return dir
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	dir := writeConfig(t, "test", `{
		"nodes": [" node-a:5000 ", "", "node-b:5000"],
		"retry": {"max_attempts": 5, "base_delay": "1s", "max_delay": "2s"},
		"saga": {"probe_on_conflict": false, "compensation_scope": "last"},
		"compensation": {"delay": "30s", "max_attempts": 4}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"node-a:5000", "node-b:5000"}, cfg.Nodes)
	assert.Equal(t, []domain.Node{"node-a:5000", "node-b:5000"}, cfg.NodeHosts())
	assert.Equal(t, domain.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 2 * time.Second}, cfg.RetryPolicy())
	assert.Equal(t, 30*time.Second, cfg.Compensation.Delay)
	assert.Equal(t, 4, cfg.Compensation.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.NodeClient.RequestTimeout)

	options := cfg.SagaOptions()
	assert.False(t, options.ProbeOnConflict)
	assert.True(t, options.CompensateLastOnly)
	assert.False(t, options.CompensateOnAlreadyExists)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("ENVIRONMENT", "missing")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost"}, cfg.Nodes)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, domain.DefaultRetryPolicy(), cfg.RetryPolicy())
	assert.Equal(t, time.Minute, cfg.Compensation.Delay)
	assert.Equal(t, 0, cfg.Compensation.MaxAttempts)
	assert.Equal(t, QueueMemory, cfg.Compensation.Queue)
	assert.True(t, cfg.SagaOptions().ProbeOnConflict)
	assert.False(t, cfg.SagaOptions().CompensateLastOnly)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("HOSTS", "node-a:5000, node-b:5000,,node-c:5000")
	t.Setenv("GROUP_COMPENSATION_DELAY", "5s")
	t.Setenv("GROUP_SAGA_COMPENSATE_ON_ALREADY_EXISTS", "true")
	dir := writeConfig(t, "test", `{"nodes": ["ignored:1"]}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"node-a:5000", "node-b:5000", "node-c:5000"}, cfg.Nodes)
	assert.Equal(t, 5*time.Second, cfg.Compensation.Delay)
	assert.True(t, cfg.SagaOptions().CompensateOnAlreadyExists)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Nodes:        []string{"node-a:5000"},
			Retry:        Retry{MaxAttempts: 3},
			NodeClient:   NodeClient{RequestTimeout: time.Second},
			Saga:         Saga{CompensationScope: ScopeAll},
			Compensation: Compensation{Queue: QueueMemory},
		}
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedError string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no nodes", mutate: func(c *Config) { c.Nodes = nil }, expectedError: "at least one node host"},
		{name: "no retry attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, expectedError: "retry max attempts"},
		{name: "zero request timeout", mutate: func(c *Config) { c.NodeClient.RequestTimeout = 0 }, expectedError: "request timeout"},
		{name: "unknown scope", mutate: func(c *Config) { c.Saga.CompensationScope = "first" }, expectedError: "compensation scope"},
		{name: "negative max attempts", mutate: func(c *Config) { c.Compensation.MaxAttempts = -1 }, expectedError: "must not be negative"},
		{name: "sqs without url", mutate: func(c *Config) { c.Compensation.Queue = QueueSQS }, expectedError: "queue_url"},
		{name: "unknown queue", mutate: func(c *Config) { c.Compensation.Queue = "kafka" }, expectedError: "unknown compensation queue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{Database: Database{Host: "db", Port: 5432, User: "u", Password: "p", Database: "groups", SSLMode: "disable"}}
	assert.Equal(t, "postgres://u:p@db:5432/groups?sslmode=disable", cfg.GetDatabaseURL())

	cfg.Database.URL = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.GetDatabaseURL())
}

func TestBuildDependencies_MemoryQueue(t *testing.T) {
	t.Setenv("ENVIRONMENT", "missing")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	deps, err := BuildDependencies(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer deps.Close()

	assert.IsType(t, &infrastructure.MemoryCompensationQueue{}, deps.CompensationQueue)
	assert.IsType(t, events.NopPublisher{}, deps.EventPublisher)
	assert.Nil(t, deps.Journal)
	assert.Equal(t, []domain.Node{"localhost"}, deps.GroupSaga.Nodes())
	assert.NotNil(t, deps.GroupHandlers)
	assert.NotNil(t, deps.GroupEventHandlers)
}
