package di

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/config"
)

const marketFrame = `{"type":"MARKET_UPDATE","status":"OK","source":"Yahoo Finance","data":[{"symbol":"GARAN","price":82.5,"change":1.1,"volume":"14M"}]}`

func marketService(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(marketFrame)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/api/portfolio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"cash":95000,"realized_pnl":120,"positions":{},"trade_history":[],"closed_trades":[]}`)
	})
	mux.HandleFunc("/api/market-data/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"time":"2024-01-02","open":1,"high":2,"low":0.5,"close":1.5,"volume":100}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Environment = "test"
	cfg.Logging.Level = "error"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Stream.URL = "ws" + strings.TrimPrefix(upstream, "http") + "/ws"
	cfg.API.BaseURL = upstream
	cfg.Cache.Type = "none"
	return cfg
}

func getJSON(t *testing.T, url string, dest interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
	return resp.StatusCode
}

func TestInitializeAppServesLiveData(t *testing.T) {
	upstream := marketService(t)
	app, err := InitializeApp(testConfig(t, upstream.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	select {
	case <-app.Ready():
	case err := <-runErr:
		t.Fatalf("app exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("app not ready")
	}
	base := "http://" + app.HTTP().Addr().String()

	require.Eventually(t, func() bool {
		var body struct {
			Data struct {
				Tickers []struct {
					Symbol string `json:"symbol"`
				} `json:"tickers"`
				Seeded bool `json:"seeded"`
			} `json:"data"`
		}
		getJSON(t, base+"/api/market/tickers", &body)
		return !body.Data.Seeded && len(body.Data.Tickers) == 1 && body.Data.Tickers[0].Symbol == "GARAN"
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		var body struct {
			Data struct {
				Status struct {
					Source string `json:"source"`
				} `json:"status"`
			} `json:"data"`
		}
		getJSON(t, base+"/api/portfolio", &body)
		return body.Data.Status.Source != "none" && body.Data.Status.Source != ""
	}, 5*time.Second, 20*time.Millisecond)

	var status struct {
		Data struct {
			Connection struct {
				State string `json:"state"`
			} `json:"connection"`
			Feed struct {
				Level string `json:"level"`
			} `json:"feed"`
		} `json:"data"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, base+"/api/status", &status))
	assert.Equal(t, "OPEN", status.Data.Connection.State)
	assert.Equal(t, "OK", status.Data.Feed.Level)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	scrape, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(scrape), "dashboard_stream_frames_total")

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestInitializeAppRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Cache.Type = "redis"
	cfg.Cache.Addr = "127.0.0.1:1"

	_, err := InitializeApp(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis cache")
}
