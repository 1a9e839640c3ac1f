package simulator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/dex/uniswap"
	"github.com/michaelpento.lv/miniswap/token"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// stepDeadline is how far past the simulated clock router deadlines are set
const stepDeadline = time.Minute

// SimulationResult is the outcome of one scenario step
type SimulationResult struct {
	Index   int      `json:"index" yaml:"index"`
	Op      string   `json:"op" yaml:"op"`
	Success bool     `json:"success" yaml:"success"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
	Amounts []string `json:"amounts,omitempty" yaml:"amounts,omitempty"`
}

// PairReport is a pair's state at the end of a run
type PairReport struct {
	Pair        common.Address `json:"pair" yaml:"pair"`
	Token0      string         `json:"token0" yaml:"token0"`
	Token1      string         `json:"token1" yaml:"token1"`
	Reserve0    string         `json:"reserve0" yaml:"reserve0"`
	Reserve1    string         `json:"reserve1" yaml:"reserve1"`
	TotalSupply string         `json:"total_supply" yaml:"total_supply"`
}

type Report struct {
	Scenario string             `json:"scenario" yaml:"scenario"`
	Steps    []SimulationResult `json:"steps" yaml:"steps"`
	Pairs    []PairReport       `json:"pairs" yaml:"pairs"`
	Events   uint64             `json:"events" yaml:"events"`
}

// Failed returns the number of steps that did not go as scripted
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Success {
			n++
		}
	}
	return n
}

// Observer is told about every executed step
type Observer interface {
	Observe(op string, start time.Time, err error)
}

// Simulator replays scenarios against an Env
type Simulator struct {
	env      *Env
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer

	symbols map[string]common.Address
	names   map[common.Address]string
}

// NewSimulator creates a simulator that executes at most cfg.OpsPerSecond
// steps per second
func NewSimulator(env *Env, cfg *config.SimulatorConfig, logger *zap.Logger) *Simulator {
	return &Simulator{
		env:     env,
		limiter: rate.NewLimiter(rate.Limit(cfg.OpsPerSecond), cfg.Burst),
		logger:  logger,
		symbols: map[string]common.Address{"WETH": env.WETH.Address()},
		names:   map[common.Address]string{env.WETH.Address(): "WETH"},
	}
}

// WithObserver reports every step to o
func (s *Simulator) WithObserver(o Observer) *Simulator {
	s.observer = o
	return s
}

// Resolve maps a token symbol or account name to its address
func (s *Simulator) Resolve(name string) common.Address {
	if addr, ok := s.symbols[name]; ok {
		return addr
	}
	return NamedAddress(name)
}

// Name returns the symbol of a token address, or its hex form
func (s *Simulator) Name(addr common.Address) string {
	if name, ok := s.names[addr]; ok {
		return name
	}
	return addr.Hex()
}

// Setup issues the scenario's tokens, funds holders, and seeds its pools
func (s *Simulator) Setup(ctx context.Context, sc *Scenario) error {
	if sc.Start != 0 {
		s.env.Clock.Set(time.Unix(sc.Start, 0))
	}

	for _, spec := range sc.Tokens {
		addr := NamedAddress(spec.Symbol)
		if spec.Address != "" {
			addr = common.HexToAddress(spec.Address)
		}

		var opts []token.Option
		if spec.TransferFeeBps > 0 {
			opts = append(opts, token.WithTransferFee(spec.TransferFeeBps))
		}
		tok, err := s.env.Bank.Issue(addr, spec.Symbol, opts...)
		if err != nil {
			return fmt.Errorf("failed to issue %s: %w", spec.Symbol, err)
		}
		s.symbols[spec.Symbol] = addr
		s.names[addr] = spec.Symbol

		for holder, amount := range spec.Holders {
			who := s.Resolve(holder)
			if err := tok.Mint(ctx, who, amount.Big()); err != nil {
				return fmt.Errorf("failed to fund %s with %s: %w", holder, spec.Symbol, err)
			}
			if err := tok.Approve(ctx, who, s.env.Router.Address(), token.MaxUint256); err != nil {
				return fmt.Errorf("failed to approve router for %s: %w", holder, err)
			}
		}
	}

	for holder, amount := range sc.Native {
		who := s.Resolve(holder)
		if err := s.env.WETH.Native().Mint(ctx, who, amount.Big()); err != nil {
			return fmt.Errorf("failed to fund %s with native value: %w", holder, err)
		}
		if err := s.env.WETH.Approve(ctx, who, s.env.Router.Address(), token.MaxUint256); err != nil {
			return fmt.Errorf("failed to approve router for %s: %w", holder, err)
		}
	}

	for i, pool := range sc.Pools {
		provider := s.Resolve(pool.Provider)
		amounts, err := s.addLiquidity(ctx, provider,
			s.Resolve(pool.TokenA), s.Resolve(pool.TokenB),
			pool.AmountA.Big(), pool.AmountB.Big(), provider)
		if err != nil {
			return fmt.Errorf("failed to seed pool %d (%s/%s): %w", i, pool.TokenA, pool.TokenB, err)
		}
		s.logger.Debug("Seeded pool",
			zap.String("token_a", pool.TokenA),
			zap.String("token_b", pool.TokenB),
			zap.String("liquidity", amounts[2].String()))
	}

	return nil
}

// Run sets up sc and executes its steps. Step failures are recorded in the
// report; the returned error covers setup and cancellation only.
func (s *Simulator) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	if err := s.Setup(ctx, sc); err != nil {
		return nil, err
	}

	report := &Report{Scenario: sc.Name}
	for i, step := range sc.Steps {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		start := time.Now()
		amounts, err := s.execute(ctx, step)
		if s.observer != nil {
			s.observer.Observe(step.Op, start, err)
		}

		result := SimulationResult{Index: i, Op: step.Op}
		switch {
		case step.ExpectError != "":
			result.Success = err != nil && strings.Contains(err.Error(), step.ExpectError)
			if err == nil {
				result.Error = fmt.Sprintf("expected error %q", step.ExpectError)
			} else {
				result.Error = err.Error()
			}
		case err != nil:
			result.Error = err.Error()
		default:
			result.Success = true
		}
		for _, a := range amounts {
			result.Amounts = append(result.Amounts, a.String())
		}
		report.Steps = append(report.Steps, result)

		if !result.Success {
			s.logger.Warn("Step failed",
				zap.Int("step", i),
				zap.String("op", step.Op),
				zap.String("error", result.Error))
		}
	}

	report.Pairs = s.Pairs(ctx)
	report.Events = s.env.Bus.Seq()
	return report, nil
}

// Pairs reports the state of every registered pair
func (s *Simulator) Pairs(ctx context.Context) []PairReport {
	var out []PairReport
	for _, pair := range s.env.Factory.Pairs() {
		reserve0, reserve1, _ := pair.GetReserves()
		out = append(out, PairReport{
			Pair:        pair.Address(),
			Token0:      s.Name(pair.Token0()),
			Token1:      s.Name(pair.Token1()),
			Reserve0:    reserve0.String(),
			Reserve1:    reserve1.String(),
			TotalSupply: pair.TotalSupply(ctx).String(),
		})
	}
	return out
}

func (s *Simulator) deadline() time.Time {
	return s.env.Clock.Now().Add(stepDeadline)
}

func (s *Simulator) path(names []string) []common.Address {
	path := make([]common.Address, len(names))
	for i, name := range names {
		path[i] = s.Resolve(name)
	}
	return path
}

func (s *Simulator) recipient(step Step) common.Address {
	if step.To != "" {
		return s.Resolve(step.To)
	}
	return s.Resolve(step.Sender)
}

// addLiquidity deposits through the router, paying the WETH side of a pool in
// native value. It returns the amounts of a and b deposited and the liquidity.
func (s *Simulator) addLiquidity(ctx context.Context, sender, a, b common.Address, amountA, amountB *big.Int, to common.Address) ([]*big.Int, error) {
	router := s.env.Router
	weth := s.env.WETH.Address()

	switch weth {
	case a:
		amountToken, amountETH, liquidity, err := router.AddLiquidityETH(ctx, sender, b, amountB, new(big.Int), new(big.Int), amountA, to, s.deadline())
		if err != nil {
			return nil, err
		}
		return []*big.Int{amountETH, amountToken, liquidity}, nil
	case b:
		amountToken, amountETH, liquidity, err := router.AddLiquidityETH(ctx, sender, a, amountA, new(big.Int), new(big.Int), amountB, to, s.deadline())
		if err != nil {
			return nil, err
		}
		return []*big.Int{amountToken, amountETH, liquidity}, nil
	}

	amountA, amountB, liquidity, err := router.AddLiquidity(ctx, sender, a, b, amountA, amountB, new(big.Int), new(big.Int), to, s.deadline())
	if err != nil {
		return nil, err
	}
	return []*big.Int{amountA, amountB, liquidity}, nil
}

func (s *Simulator) execute(ctx context.Context, step Step) ([]*big.Int, error) {
	router := s.env.Router
	sender := s.Resolve(step.Sender)
	to := s.recipient(step)

	switch step.Op {
	case OpAddLiquidity:
		return s.addLiquidity(ctx, sender, s.Resolve(step.TokenA), s.Resolve(step.TokenB), step.AmountA.Big(), step.AmountB.Big(), to)

	case OpRemoveLiquidity:
		tokenA, tokenB := s.Resolve(step.TokenA), s.Resolve(step.TokenB)
		pair, ok := s.env.Factory.GetPair(tokenA, tokenB)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", uniswap.ErrPairNotFound, step.TokenA, step.TokenB)
		}
		liquidity := step.Amount.Big()
		if liquidity.Sign() == 0 {
			liquidity = pair.BalanceOf(ctx, sender)
		}
		if err := pair.Shares().Approve(ctx, sender, router.Address(), liquidity); err != nil {
			return nil, err
		}
		a, b, err := router.RemoveLiquidity(ctx, sender, tokenA, tokenB, liquidity,
			step.AmountA.Big(), step.AmountB.Big(), to, s.deadline())
		if err != nil {
			return nil, err
		}
		return []*big.Int{a, b}, nil

	case OpSwapExactIn:
		return router.SwapExactTokensForTokens(ctx, sender, step.Amount.Big(), step.Limit.Big(), s.path(step.Path), to, s.deadline())

	case OpSwapExactOut:
		limit := step.Limit.Big()
		if limit.Sign() == 0 {
			limit = token.MaxUint256
		}
		return router.SwapTokensForExactTokens(ctx, sender, step.Amount.Big(), limit, s.path(step.Path), to, s.deadline())

	case OpSwapSupportingFee:
		path := s.path(step.Path)
		out, err := s.env.Bank.Token(path[len(path)-1])
		if err != nil {
			return nil, err
		}
		before := out.BalanceOf(ctx, to)
		if err := router.SwapExactTokensForTokensSupportingFeeOnTransferTokens(ctx, sender, step.Amount.Big(), step.Limit.Big(), path, to, s.deadline()); err != nil {
			return nil, err
		}
		return []*big.Int{new(big.Int).Sub(out.BalanceOf(ctx, to), before)}, nil

	case OpSwapExactETHIn:
		return router.SwapExactETHForTokens(ctx, sender, step.Limit.Big(), step.Amount.Big(), s.path(step.Path), to, s.deadline())

	case OpAdvance:
		s.env.Clock.Advance(time.Duration(step.Seconds) * time.Second)
		return nil, nil

	case OpSetFeeTo:
		var feeTo common.Address
		if step.To != "" {
			feeTo = s.Resolve(step.To)
		}
		return nil, s.env.Factory.SetFeeTo(sender, feeTo)
	}

	return nil, fmt.Errorf("unknown op %q", step.Op)
}
