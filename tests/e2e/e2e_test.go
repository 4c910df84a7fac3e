//
// Employee Portal - End-to-End Test
//
// Purpose:
//   Runs the portal against real Postgres and MinIO containers started with
//   dockertest. The database connection is resolved through the Docker
//   branch of the env detection, migrations are applied through the shared
//   pool, and the rendered page, JSON API and image route are exercised over
//   HTTP.
//
// Usage:
//   Requires Docker available to the test runner. Run:
//     go test -v ./tests/e2e -run TestPortalFlow
//   Optional env:
//     EP_MINIO_TEST_TAG  override MinIO image tag for compatibility.
//
// Notes:
//   - Ports are mapped dynamically by dockertest; the test injects the
//     assigned Postgres port as PORT_DB.
//   - The test is skipped when no Docker daemon is reachable.

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"employee-portal/internal/db"
	"employee-portal/internal/server"
)

const (
	pgPassword = "secret"
	pgDatabase = "portal"
	splashJPEG = "\xff\xd8\xff\xe0fake-jpeg"
)

func TestPortalFlow(t *testing.T) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	pgPort := startPostgres(t, pool)
	assets := startMinio(t, pool)

	// Resolve the connection exactly the way the backend does.
	env := map[string]string{
		db.EnvPostgresHost:     "localhost",
		db.EnvPostgresUser:     "postgres",
		db.EnvPostgresPassword: pgPassword,
		db.EnvPostgresPort:     pgPort,
		db.EnvPostgresDB:       pgDatabase,
	}
	require.Equal(t, db.SourceDocker, db.DetectSource(env))
	cfg, err := db.ResolveConfig(env)
	require.NoError(t, err)
	port, _ := strconv.Atoi(pgPort)
	require.Equal(t, port, cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	provider, err := db.NewProvider(ctx, cfg, db.WithCheckInterval(500*time.Millisecond))
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, provider.Migrate())
	// Running again is a no-op.
	require.NoError(t, provider.Migrate())

	srv := server.New(server.Config{
		Build:     server.BuildInfo{Version: "e2e"},
		DB:        provider,
		Employees: db.NewEmployeeRepository(provider.DB()),
		Fruits:    db.NewFruitRepository(provider.DB()),
		Assets:    assets,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	t.Run("home page", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), server.SplashImage)
		assert.Equal(t, 1, strings.Count(string(body), "window.open("))
	})

	t.Run("splash image from bucket", func(t *testing.T) {
		resp, err := client.Get(ts.URL + server.SplashImage)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, splashJPEG, string(body))

		missing, err := client.Get(ts.URL + "/images/nope.jpg")
		require.NoError(t, err)
		missing.Body.Close()
		assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	})

	t.Run("get started", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/get-started")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, server.GetStartedURL, resp.Header.Get("Location"))
	})

	t.Run("employees", func(t *testing.T) {
		var body struct {
			Employees []db.Employee `json:"employees"`
		}
		getJSON(t, client, ts.URL+"/api/employees", &body)

		require.Len(t, body.Employees, 4)
		for i := 1; i < len(body.Employees); i++ {
			assert.LessOrEqual(t, body.Employees[i-1].LastName, body.Employees[i].LastName)
		}
	})

	var fruits []db.Fruit
	t.Run("fruits", func(t *testing.T) {
		var body struct {
			Fruits []db.Fruit `json:"fruits"`
		}
		getJSON(t, client, ts.URL+"/api/fruits", &body)

		require.Len(t, body.Fruits, 7)
		fruits = body.Fruits
	})

	t.Run("pick and favorites", func(t *testing.T) {
		require.NotEmpty(t, fruits)
		target := fruits[len(fruits)-1]

		for _, picker := range []string{"ada", "grace"} {
			payload, _ := json.Marshal(map[string]interface{}{"fruit_id": target.ID, "picker": picker})
			resp, err := client.Post(ts.URL+"/api/fruits/picks", "application/json", bytes.NewReader(payload))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusCreated, resp.StatusCode)
		}

		resp, err := client.Post(ts.URL+"/api/fruits/picks", "application/json",
			strings.NewReader(`{"fruit_id":9999,"picker":"ada"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		var fav struct {
			Favorites []db.FruitCount `json:"favorites"`
		}
		getJSON(t, client, ts.URL+"/api/fruits/favorites?limit=1", &fav)
		require.Len(t, fav.Favorites, 1)
		assert.Equal(t, target.ID, fav.Favorites[0].ID)
		assert.Equal(t, int64(2), fav.Favorites[0].Picks)
	})

	t.Run("ready and health", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/ready")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var health server.Health
		getJSON(t, client, ts.URL+"/health", &health)
		assert.Equal(t, server.HealthStatusHealthy, health.Status)
		assert.Equal(t, "minio", health.Components["assets"].Details.(map[string]interface{})["backend"])
	})

	t.Run("pool is shared", func(t *testing.T) {
		assert.Same(t, provider.Pool(), provider.Pool())
		assert.Same(t, provider.DB(), provider.DB())
		assert.NoError(t, provider.Err())
		assert.GreaterOrEqual(t, provider.Stats().TotalConns, int32(1))
	})

	// Must run last: it breaks the shared pool.
	t.Run("terminated backend is fatal", func(t *testing.T) {
		dsn := fmt.Sprintf("postgres://postgres:%s@localhost:%s/%s?sslmode=disable", pgPassword, pgPort, pgDatabase)
		admin, err := sql.Open("postgres", dsn)
		require.NoError(t, err)
		defer admin.Close()

		_, err = admin.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity
			WHERE datname = current_database() AND pid <> pg_backend_pid()`)
		require.NoError(t, err)

		select {
		case err := <-provider.Fatal():
			assert.True(t, db.IsPoolFatal(err), "got %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("terminating the pool's sessions did not raise a fatal error")
		}
		assert.True(t, db.IsPoolFatal(provider.Err()))
	})
}

func startPostgres(t *testing.T, pool *dockertest.Pool) string {
	t.Helper()

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15",
		Env: []string{
			"POSTGRES_PASSWORD=" + pgPassword,
			"POSTGRES_DB=" + pgDatabase,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	require.NoError(t, err, "could not start postgres")
	t.Cleanup(func() { _ = pool.Purge(res) })

	port := res.GetPort("5432/tcp")
	dsn := fmt.Sprintf("postgres://postgres:%s@localhost:%s/%s?sslmode=disable", pgPassword, port, pgDatabase)
	err = pool.Retry(func() error {
		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.Ping()
	})
	require.NoError(t, err, "postgres not ready")
	return port
}

func startMinio(t *testing.T, pool *dockertest.Pool) server.Assets {
	t.Helper()

	tag := os.Getenv("EP_MINIO_TEST_TAG")
	if tag == "" {
		tag = "RELEASE.2024-01-31T20-20-33Z"
	}
	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "minio/minio",
		Tag:        tag,
		Cmd:        []string{"server", "/data"},
		Env: []string{
			"MINIO_ROOT_USER=minio",
			"MINIO_ROOT_PASSWORD=minio123",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	require.NoError(t, err, "could not start minio")
	t.Cleanup(func() { _ = pool.Purge(res) })

	endpoint := "localhost:" + res.GetPort("9000/tcp")
	err = pool.Retry(func() error {
		resp, err := http.Get("http://" + endpoint + "/minio/health/live")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("minio not ready: %d", resp.StatusCode)
		}
		return nil
	})
	require.NoError(t, err, "minio not ready")

	mc, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minio", "minio123", ""),
	})
	require.NoError(t, err)

	ctx := context.Background()
	const bucket = "portal-assets"
	require.NoError(t, mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	_, err = mc.PutObject(ctx, bucket, strings.TrimPrefix(server.SplashImage, "/"),
		strings.NewReader(splashJPEG), int64(len(splashJPEG)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)

	assets, err := server.NewMinioAssets(ctx, "http://"+endpoint, "minio", "minio123", bucket)
	require.NoError(t, err)
	return assets
}

func getJSON(t *testing.T, client *http.Client, url string, v interface{}) {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
