package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/credential"
	"github.com/sells-group/market-intel/internal/export"
	"github.com/sells-group/market-intel/internal/intel"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/session"
	"github.com/sells-group/market-intel/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "analyze", "health", "history", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "market-intel", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, flag)
	assert.Equal(t, ".env", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	require.NotNil(t, analyzeCmd.Flags().Lookup("query"))
	require.NotNil(t, analyzeCmd.Flags().Lookup("json"))
	assert.Error(t, analyzeCmd.Args(analyzeCmd, nil))
	assert.NoError(t, analyzeCmd.Args(analyzeCmd, []string{"SPY"}))
}

func TestHistoryCommand_Flags(t *testing.T) {
	for _, name := range []string{"limit", "narrative", "export"} {
		assert.NotNil(t, historyCmd.Flags().Lookup(name), name)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Intel.Provider = "gemini"
	c.Intel.Temperature = 0.1
	c.Intel.Retry = config.RetryConfig{MaxAttempts: 1, InitialBackoffMs: 1, Multiplier: 1}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "intel.db")
	c.Store.QueueSize = 16
	c.Session = config.SessionConfig{ThrottleMs: 500, FeedIntervalMs: 250, Volatility: 0.001, SpreadFloor: 0.02, LiquidityFloor: 5, MinDepthSize: 3}
	c.Server.Port = 8080
	c.Log = config.LogConfig{Level: "info", Format: "json"}
	return c
}

func credentialFor(t *testing.T, key string) *credential.Selector {
	t.Helper()
	return credential.NewSelector("MARKETINTEL_TEST_UNSET_KEY", "", key)
}

func TestInitStore_Drivers(t *testing.T) {
	c := testConfig(t)

	st, err := initStore(c)
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, st)

	c.Store.Driver = "postgres"
	c.Store.DatabaseURL = ""
	_, err = initStore(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL")

	c.Store.DatabaseURL = "postgres://localhost/intel"
	st, err = initStore(c)
	require.NoError(t, err)
	assert.IsType(t, &store.PostgresStore{}, st)

	c.Store.Driver = "mysql"
	_, err = initStore(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestSessionConfig_Mapping(t *testing.T) {
	sc := sessionConfig(testConfig(t).Session)

	assert.Equal(t, 500*time.Millisecond, sc.Throttle)
	assert.Equal(t, 250*time.Millisecond, sc.FeedInterval)
	assert.InDelta(t, 0.001, sc.Feed.Volatility, 1e-12)
	assert.InDelta(t, 0.02, sc.Feed.SpreadFloor, 1e-12)
	assert.InDelta(t, 5, sc.Feed.LiquidityFloor, 1e-12)
	assert.InDelta(t, 3, sc.Feed.MinDepthSize, 1e-12)
	assert.Equal(t, session.DefaultConfig().Feed.SizeJitter, sc.Feed.SizeJitter)
	assert.Equal(t, session.DefaultConfig().SubscriberBuffer, sc.SubscriberBuffer)
}

func TestInitIntel_Providers(t *testing.T) {
	c := testConfig(t)
	sel := credentialFor(t, "k")

	client, err := initIntel(c, sel, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", client.Provider())

	c.Intel.Provider = "anthropic"
	client, err = initIntel(c, sel, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Provider())

	c.Intel.Provider = "openai"
	_, err = initIntel(c, sel, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported intel provider")
}

func TestInitIntel_MissingPromptFile(t *testing.T) {
	c := testConfig(t)
	c.Intel.PromptFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initIntel(c, credentialFor(t, "k"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt: read")
}

func TestSessionEnv_CloseNil(t *testing.T) {
	env := &sessionEnv{}
	assert.NotPanics(t, env.Close)
}

type pingProvider struct{}

func (pingProvider) Name() string { return "fake" }

func (pingProvider) Generate(_ context.Context, _ intel.GenerateRequest) (*intel.GenerateResponse, error) {
	return &intel.GenerateResponse{Text: "pong"}, nil
}

func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRunServer_Lifecycle(t *testing.T) {
	client, err := intel.NewClient(pingProvider{})
	require.NoError(t, err)
	st := store.NewSQLite(filepath.Join(t.TempDir(), "intel.db"))
	writer := store.NewAsyncWriter(st, 8)
	env := &sessionEnv{
		Store:      st,
		Writer:     writer,
		Intel:      client,
		Controller: session.New(client, writer),
	}
	defer env.Close()

	port := getFreePort(t)
	srv := &http.Server{
		Addr: fmt.Sprintf("127.0.0.1:%d", port),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runServer(ctx, srv, env) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return env.Controller.State(context.Background()).Health.Status == intel.StateOnline
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestMigrateAndHistoryExport(t *testing.T) {
	dir := chdirTemp(t)
	dbPath := filepath.Join(dir, "intel.db")
	t.Setenv("MARKETINTEL_STORE_DATABASE_URL", dbPath)

	rootCmd.SetArgs([]string{"migrate"})
	require.NoError(t, rootCmd.Execute())

	st := store.NewSQLite(dbPath)
	ctx := context.Background()
	require.NoError(t, st.StoreSnapshot(ctx, "SPY", model.Microstructure{Bid: 500, Ask: 500.05, Spread: 0.05, LiquidityScore: 90}))
	require.NoError(t, st.StoreNarrative(ctx, "SPY", model.NarrativeIntelligence{SentimentIndex: 15, NarrativeArchetype: "Soft landing"}))
	require.NoError(t, st.Close())

	out := filepath.Join(dir, "spy.xlsx")
	rootCmd.SetArgs([]string{"history", "SPY", "--export", out})
	require.NoError(t, rootCmd.Execute())

	rows, err := export.ReadSheet(out, export.SheetNarrative)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Soft landing", rows[1][5])
}

func TestFormatSnapshots(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshots(&buf, []model.SnapshotEntry{{Timestamp: 1_700_000_000_000, Bid: 1.5, Ask: 1.75, Spread: 0.25, LiquidityScore: 70}})

	out := buf.String()
	assert.Contains(t, out, "BID")
	assert.Contains(t, out, "1.5000")
	assert.Contains(t, out, "0.2500")
}

func TestFormatNarratives_TruncatesArchetype(t *testing.T) {
	var buf bytes.Buffer
	formatNarratives(&buf, []model.NarrativeEntry{{
		SentimentIndex: -30,
		Archetype:      "An extremely long narrative archetype label that keeps going",
		Entities:       model.Entities{Companies: []string{"A", "B"}},
	}})

	out := buf.String()
	assert.Contains(t, out, "-30")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "keeps going")
}

func TestFormatAnalysis(t *testing.T) {
	var buf bytes.Buffer
	rec := &model.AnalysisRecord{
		AssetName:    "Nvidia Corp",
		Symbol:       "NVDA",
		MarketRegime: model.MarketRegime("Trending Bullish"),
		RiskFactors:  []string{"export controls", "valuation"},
	}
	rec.DirectionalAssessment.ShortTerm = model.HorizonAssessment{
		Bias:        "Bullish",
		Probability: model.ProbabilityDistribution{Bullish: 3, Neutral: 1, Bearish: 0},
	}
	formatAnalysis(&buf, rec)

	out := buf.String()
	assert.Contains(t, out, "Nvidia Corp (NVDA)")
	assert.Contains(t, out, "bull 75%")
	assert.Contains(t, out, "export controls; valuation")
}
