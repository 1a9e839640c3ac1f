package simulator

import (
	"fmt"
	"time"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/dex/uniswap"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/token"
)

// Env is an in-process deployment: custody, factory, router, and the event
// bus they publish to
type Env struct {
	Bank    *token.Bank
	Clock   *uniswap.ManualClock
	Bus     *events.Bus
	Factory *uniswap.Factory
	Router  *uniswap.Router
	WETH    *token.WETH
}

// NewEnv deploys a factory and router as described by cfg, with the clock
// starting at start
func NewEnv(cfg *config.Config, start time.Time) (*Env, error) {
	env := &Env{
		Bank:  token.NewBank(),
		Clock: uniswap.NewManualClock(start),
		Bus:   events.NewBus(),
	}

	env.Factory = uniswap.NewFactory(
		cfg.FactoryAddress(),
		cfg.FeeToSetter(),
		env.Bank,
		uniswap.WithEventBus(env.Bus),
		uniswap.WithClock(env.Clock),
		uniswap.WithProtocolFeeDenominator(cfg.Factory.ProtocolFeeDenominator),
		uniswap.WithFeeTo(cfg.FeeTo()),
	)

	weth, err := token.NewWETH(env.Bank, cfg.WETHAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to deploy WETH: %w", err)
	}
	env.WETH = weth
	env.Router = uniswap.NewRouter(cfg.RouterAddress(), env.Factory, weth)

	return env, nil
}
