//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
	"github.com/hbl-templ/bakerloo-line-extension/internal/mqtt"
)

const repoRootRel = ".." // relative to ./e2e

const mqttPort = nat.Port("1883/tcp")

// genderBody is a JSON-stat value vector with total, female and male count/percent pairs.
const genderBody = `{"value":[200,100,120,60,80,40]}`

func TestSmoke(t *testing.T) {
	repoRoot := repoRootPath(t)
	host, port := startMosquitto(t)
	nomis, hits := startFakeNomis(t)

	serverBin := buildBinary(t, repoRoot, "./cmd/server", "ble-server")
	ctlBin := buildBinary(t, repoRoot, "./cmd/blectl", "blectl")

	dir := t.TempDir()
	addr := pickFreeAddr(t)
	env := append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,
		"DB_DRIVER=sqlite3",
		"SQLITE_PATH="+filepath.Join(dir, "app.db"),
		"NOMIS_BASE_URL="+nomis.URL,
		"FETCH_BASE_DELAY=10ms",
		"FETCH_MAX_DELAY=20ms",
		"MQTT_BROKER="+host,
		"MQTT_PORT="+strconv.Itoa(port),
		"MQTT_TOPIC=ble/cache/invalidate",
	)

	cmd := exec.Command(serverBin)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + addr
	waitForOK(t, client, base+"/healthz", 10*time.Second)

	t.Run("healthz reports broker", func(t *testing.T) {
		deadline := time.Now().Add(10 * time.Second)
		for {
			var body map[string]string
			getJSON(t, client, base+"/healthz", http.StatusOK, &body)
			if body["mqtt"] == "connected" {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("mqtt=%q want=connected", body["mqtt"])
			}
			time.Sleep(100 * time.Millisecond)
		}
	})

	tableURL := base + "/api/v1/stations/Old%20Kent%20Road/datasets/gender"

	t.Run("comparison table is memoized", func(t *testing.T) {
		var body struct {
			Table struct {
				Labels []string `json:"labels"`
				Rows   []struct {
					Area string `json:"area"`
				} `json:"rows"`
			} `json:"table"`
		}
		getJSON(t, client, tableURL, http.StatusOK, &body)
		if strings.Join(body.Table.Labels, ",") != "Female,Male" {
			t.Fatalf("labels=%v", body.Table.Labels)
		}
		if len(body.Table.Rows) == 0 || body.Table.Rows[0].Area != "Local Study Area" {
			t.Fatalf("rows=%+v", body.Table.Rows)
		}

		first := hits.Load()
		getJSON(t, client, tableURL, http.StatusOK, &body)
		if got := hits.Load(); got != first {
			t.Fatalf("upstream hits after repeat=%d want=%d", got, first)
		}
	})

	t.Run("invalidation over mqtt clears caches", func(t *testing.T) {
		before := hits.Load()

		cfg := config.Config{MQTTBroker: host, MQTTPort: port, MQTTTopic: "ble/cache/invalidate"}
		pub := mqtt.NewPublisher(cfg, "e2e-publisher", slog.New(slog.DiscardHandler))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pub.Connect(ctx); err != nil {
			t.Fatalf("publisher connect: %v", err)
		}
		defer pub.Disconnect()
		if err := pub.PublishInvalidation(ctx, mqtt.Invalidation{Source: "e2e"}); err != nil {
			t.Fatalf("publish: %v", err)
		}

		deadline := time.Now().Add(10 * time.Second)
		for {
			var stats struct {
				Records struct {
					Entries int `json:"entries"`
				} `json:"records"`
			}
			getJSON(t, client, base+"/api/v1/cache", http.StatusOK, &stats)
			if stats.Records.Entries == 0 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("record cache still holds %d entries", stats.Records.Entries)
			}
			time.Sleep(100 * time.Millisecond)
		}

		var body map[string]any
		getJSON(t, client, tableURL, http.StatusOK, &body)
		if got := hits.Load(); got <= before {
			t.Fatalf("upstream hits=%d want > %d after invalidation", got, before)
		}
	})

	t.Run("blectl import is served", func(t *testing.T) {
		csvPath := filepath.Join(dir, "crime.csv")
		csv := "Borough_SNT,Month_Year,Offence Group,Offence Subgroup,Count\n" +
			"Lewisham,2024-03,Theft,Shoplifting,12\n" +
			"Lewisham,2024-04,Theft,Shoplifting,9\n"
		if err := os.WriteFile(csvPath, []byte(csv), 0o600); err != nil {
			t.Fatal(err)
		}

		imp := exec.Command(ctlBin, "import", "crime", csvPath)
		imp.Env = env
		out, err := imp.CombinedOutput()
		if err != nil {
			t.Fatalf("blectl import crime: %v\n%s", err, out)
		}

		var summary struct {
			Borough string `json:"borough"`
			Total   int    `json:"total"`
		}
		getJSON(t, client, base+"/api/v1/crime/Lewisham", http.StatusOK, &summary)
		if summary.Total != 21 {
			t.Fatalf("summary=%+v want total 21", summary)
		}
	})

	stopServer(t, cmd)
}

func startMosquitto(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{string(mqttPort)},
		// The image ships a listener config that allows anonymous clients.
		Cmd:        []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor: wait.ForListeningPort(mqttPort).WithStartupTimeout(30 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("mosquitto host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mosquitto port: %v", err)
	}
	return host, mapped.Int()
}

// startFakeNomis answers every dataset request with the gender vector and counts requests.
func startFakeNomis(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasSuffix(r.URL.Path, ".jsonstat.json") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, genderBody)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot, pkg, name string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), name)

	build := exec.Command("go", "build", "-o", out, pkg)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build %s failed: %v\n%s", pkg, err, string(b))
	}

	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func getJSON(t *testing.T, client *http.Client, url string, wantStatus int, out any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status=%d want=%d", url, resp.StatusCode, wantStatus)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
