package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v2"
)

const triangle = `
name: triangle
tokens:
  - {symbol: AAA, holders: {alice: "1000000e18"}}
  - {symbol: BBB, holders: {alice: "1000000e18"}}
  - {symbol: CCC, holders: {alice: "1000000e18"}}
  - {symbol: DDD, holders: {alice: "1000000e18"}}
pools:
  - {token_a: AAA, token_b: BBB, amount_a: "1000e18", amount_b: "1000e18", provider: alice}
  - {token_a: BBB, token_b: CCC, amount_a: "1000e18", amount_b: "1000e18", provider: alice}
  - {token_a: CCC, token_b: AAA, amount_a: "1000e18", amount_b: "2000e18", provider: alice}
  - {token_a: AAA, token_b: DDD, amount_a: "1000e18", amount_b: "1000e18", provider: alice}
steps:
  - {op: swap_exact_in, sender: alice, to: bob, path: [AAA, BBB], amount: "1e18"}
  - {op: advance, seconds: 30}
`

// writeFiles creates a scenario and a config file in a temp dir and returns
// their paths
func writeFiles(t *testing.T, scenario string, edit func(*config.Config)) (string, string) {
	t.Helper()
	dir := t.TempDir()

	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(scenario), 0o644))

	cfg := config.DefaultConfig()
	if edit != nil {
		edit(cfg)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	return scenarioPath, cfgPath
}

// execute runs the root command with args and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// flags keep their values between executions
	cfgFile, envFile, outputFormat = "", "", "yaml"
	quotePath, quoteAmount, quoteExactOut, quoteBest, quoteMaxHops = nil, "1e18", false, false, 3
	arbBase, arbAmount, arbLimit, arbExecute, arbReceiver = "WETH", "1e18", "", false, "arbitrageur"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSimulateCommand(t *testing.T) {
	scenario, cfgPath := writeFiles(t, triangle, nil)

	out, err := execute(t, "simulate", scenario, "--config", cfgPath, "-o", "json")
	require.NoError(t, err)

	var report simulator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "triangle", report.Scenario)
	assert.Zero(t, report.Failed())
	assert.Len(t, report.Steps, 2)
	assert.Len(t, report.Pairs, 4)
	assert.NotZero(t, report.Events)
}

func TestSimulateReportsFailedSteps(t *testing.T) {
	scenario, cfgPath := writeFiles(t, triangle+`  - {op: swap_exact_in, sender: bob, path: [AAA, BBB], amount: "1e18"}
`, nil)

	out, err := execute(t, "simulate", scenario, "--config", cfgPath)
	assert.ErrorContains(t, err, "1 of 3 steps failed")

	var report simulator.Report
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.False(t, report.Steps[2].Success)
}

func TestSimulateRefusesUsedJournal(t *testing.T) {
	dir := t.TempDir()
	scenario, cfgPath := writeFiles(t, triangle, func(cfg *config.Config) {
		cfg.Store.Path = filepath.Join(dir, "journal")
	})

	_, err := execute(t, "simulate", scenario, "--config", cfgPath)
	require.NoError(t, err)

	_, err = execute(t, "simulate", scenario, "--config", cfgPath)
	assert.ErrorContains(t, err, "already holds events")
}

func TestQuoteCommand(t *testing.T) {
	scenario, cfgPath := writeFiles(t, triangle, nil)

	out, err := execute(t, "quote", scenario, "--config", cfgPath, "--path", "BBB,DDD", "--best", "--amount", "1e18")
	require.NoError(t, err)

	var result quoteResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	// the detour through CCC/AAA beats the direct hop
	assert.Equal(t, []string{"BBB", "CCC", "AAA", "DDD"}, result.Path)
	assert.Len(t, result.Pairs, 3)
	assert.Len(t, result.Amounts, 4)

	_, err = execute(t, "quote", scenario, "--config", cfgPath, "--path", "BBB")
	assert.ErrorContains(t, err, "at least two tokens")
}

func TestArbCommand(t *testing.T) {
	scenario, cfgPath := writeFiles(t, triangle, nil)

	out, err := execute(t, "arb", scenario, "--config", cfgPath, "--base", "AAA", "--limit", "1000e18", "--execute")
	require.NoError(t, err)

	var result arbResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Opportunities)
	assert.Equal(t, []string{"AAA", "BBB", "CCC", "AAA"}, result.Opportunities[0].Path)
	require.NotNil(t, result.Executed)
	assert.NotEqual(t, "0", result.Executed.Profit)
	assert.False(t, strings.HasPrefix(result.Executed.Profit, "-"))
}

func TestHandler(t *testing.T) {
	scenario, _ := writeFiles(t, triangle, nil)

	rt, err := newRuntime(config.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rt.Close()
	_, err = rt.run(context.Background(), scenario)
	require.NoError(t, err)

	srv := httptest.NewServer(rt.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, body.String(), "miniswap_swaps_total")
	assert.Contains(t, body.String(), "miniswap_pairs_created_total 4")

	resp, err = http.Get(srv.URL + "/pairs")
	require.NoError(t, err)
	var pairs map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pairs))
	resp.Body.Close()
	assert.Len(t, pairs, 4)

	ab, ok := rt.env.Factory.GetPair(rt.sim.Resolve("AAA"), rt.sim.Resolve("BBB"))
	require.True(t, ok)
	resp, err = http.Get(srv.URL + "/events?n=2&pair=" + ab.Address().Hex())
	require.NoError(t, err)
	var recent []json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
	resp.Body.Close()
	assert.Len(t, recent, 2)

	resp, err = http.Get(srv.URL + "/events?pair=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
