package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type sampleDataset struct {
	CIK   string             `json:"cik"`
	Facts map[string]float64 `json:"facts"`
}

func TestDatasetStore_FileTier(t *testing.T) {
	s := NewDatasetStore(nil, t.TempDir(), nil)
	require.True(t, s.Enabled())
	ctx := context.Background()

	var out sampleDataset
	hit, err := s.Load(ctx, DatasetKey("AAPL"), time.Hour, &out)
	require.NoError(t, err)
	assert.False(t, hit)

	in := sampleDataset{CIK: "0000320193", Facts: map[string]float64{"us-gaap:Revenues": 1}}
	require.NoError(t, s.Save(ctx, DatasetKey("AAPL"), in))

	hit, err = s.Load(ctx, DatasetKey("AAPL"), time.Hour, &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, in, out)
}

func TestDatasetStore_FileTierStale(t *testing.T) {
	s := NewDatasetStore(nil, t.TempDir(), nil)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", sampleDataset{CIK: "1"}))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	var out sampleDataset
	hit, err := s.Load(ctx, "k", time.Hour, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestDatasetStore_Disabled(t *testing.T) {
	s := NewDatasetStore(nil, "", nil)
	assert.False(t, s.Enabled())
	require.NoError(t, s.Save(context.Background(), "k", 1))
	var out int
	hit, err := s.Load(context.Background(), "k", 0, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestDatasetStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "factcalc",
				"POSTGRES_PASSWORD": "factcalc",
				"POSTGRES_DB":       "factcalc",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := Connect(ctx, fmt.Sprintf("postgres://factcalc:factcalc@%s:%s/factcalc?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewDatasetStore(pool, "", nil)
	require.NoError(t, s.EnsureSchema(ctx))

	in := sampleDataset{CIK: "0000789019", Facts: map[string]float64{"us-gaap:Revenues": 245122000000}}
	require.NoError(t, s.Save(ctx, DatasetKey("MSFT"), in))
	require.NoError(t, s.Save(ctx, DatasetKey("MSFT"), in))

	var out sampleDataset
	hit, err := s.Load(ctx, DatasetKey("MSFT"), time.Hour, &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, in, out)

	hit, err = s.Load(ctx, DatasetKey("NOPE"), time.Hour, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
