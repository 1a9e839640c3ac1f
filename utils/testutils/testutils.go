package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/simulator"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// StartTime is the simulated clock's start in deployments made by Deploy
var StartTime = time.Unix(1_700_000_000, 0)

// Deploy creates a default deployment and sets up the YAML scenario on it:
// tokens issued, holders funded, pools seeded. Steps are not run.
func Deploy(t *testing.T, scenario string) (*simulator.Simulator, *simulator.Env) {
	t.Helper()

	cfg := config.DefaultConfig()
	env, err := simulator.NewEnv(cfg, StartTime)
	require.NoError(t, err)

	sc, err := simulator.ParseScenario([]byte(scenario))
	require.NoError(t, err)

	sim := simulator.NewSimulator(env, &cfg.Simulator, zaptest.NewLogger(t))
	require.NoError(t, sim.Setup(context.Background(), sc))

	return sim, env
}
