package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/flashloan"
	"github.com/michaelpento.lv/miniswap/strategies/arbitrage"
	"github.com/michaelpento.lv/miniswap/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	arbBase     string
	arbAmount   string
	arbLimit    string
	arbExecute  bool
	arbReceiver string
)

type opportunityView struct {
	Path        []string `json:"path" yaml:"path"`
	AmountIn    string   `json:"amount_in" yaml:"amount_in"`
	AmountOut   string   `json:"amount_out" yaml:"amount_out"`
	Profit      string   `json:"profit" yaml:"profit"`
	PriceImpact uint64   `json:"price_impact_bps" yaml:"price_impact_bps"`
}

type arbResult struct {
	Opportunities []opportunityView `json:"opportunities" yaml:"opportunities"`
	Executed      *executionView    `json:"executed,omitempty" yaml:"executed,omitempty"`
}

type executionView struct {
	Lender    string `json:"lender" yaml:"lender"`
	Borrowed  string `json:"borrowed" yaml:"borrowed"`
	Repayment string `json:"repayment" yaml:"repayment"`
	Profit    string `json:"profit" yaml:"profit"`
}

var arbCmd = &cobra.Command{
	Use:   "arb <scenario.yaml>",
	Short: "Find cycles through the scenario's pools that return more than they take",
	Long: `Runs the scenario, then prices every cycle from --base back to itself with
--amount. With --limit each cycle's input is optimised up to that amount. With
--execute the best opportunity is traded for --receiver on capital borrowed by
flash swap from a pool outside the cycle.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := config.ParseAmount(arbAmount)
		if err != nil {
			return err
		}

		rt, err := newRuntime(cfg, cfg.Logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		if _, err := rt.run(ctx, args[0]); err != nil {
			return err
		}

		detector := arbitrage.NewDetector(rt.env.Router, cfg, cfg.Logger)
		opportunities, err := detector.FindArbitrage(ctx, rt.sim.Resolve(arbBase), amount.Big())
		if err != nil {
			return err
		}

		if arbLimit != "" {
			limit, err := config.ParseAmount(arbLimit)
			if err != nil {
				return err
			}
			for i, opp := range opportunities {
				best, err := detector.OptimizeInput(ctx, opp.Route.Path, limit.Big())
				if err != nil {
					cfg.Logger.Debug("Keeping fixed input", zap.Error(err))
					continue
				}
				opportunities[i] = best
			}
			sortByProfit(opportunities)
		}

		result := arbResult{}
		for _, opp := range opportunities {
			result.Opportunities = append(result.Opportunities, rt.view(opp))
		}

		if arbExecute {
			if len(opportunities) == 0 {
				return fmt.Errorf("no opportunity to execute")
			}
			flash := flashloan.NewManager(rt.env.Bank, rt.registry, cfg.Logger)
			executor := arbitrage.NewExecutor(rt.env.Router, rt.env.Bank, flash, cfg.Logger)
			exec, err := executor.Execute(ctx, opportunities[0], rt.sim.Resolve(arbReceiver), rt.env.Clock.Now().Add(time.Minute))
			if err != nil {
				return err
			}
			result.Executed = &executionView{
				Lender:    exec.Lender.Hex(),
				Borrowed:  exec.Loan.Amount.String(),
				Repayment: exec.Loan.Repayment.String(),
				Profit:    exec.Profit.String(),
			}
		}

		return write(cmd.OutOrStdout(), result)
	},
}

func init() {
	rootCmd.AddCommand(arbCmd)
	arbCmd.Flags().StringVar(&arbBase, "base", "WETH", "token the cycles start and end with")
	arbCmd.Flags().StringVar(&arbAmount, "amount", "1e18", "input amount of the base token")
	arbCmd.Flags().StringVar(&arbLimit, "limit", "", "optimise each cycle's input up to this amount")
	arbCmd.Flags().BoolVar(&arbExecute, "execute", false, "execute the best opportunity with a flash swap")
	arbCmd.Flags().StringVar(&arbReceiver, "receiver", "arbitrageur", "account that keeps the profit")
}

func (rt *runtime) view(opp *types.ArbitrageOpportunity) opportunityView {
	v := opportunityView{
		AmountIn:    opp.Route.AmountIn.String(),
		AmountOut:   opp.Route.AmountOut.String(),
		Profit:      opp.ExpectedProfit.String(),
		PriceImpact: opp.PriceImpact,
	}
	for _, addr := range opp.Route.Path {
		v.Path = append(v.Path, rt.sim.Name(addr))
	}
	return v
}

func sortByProfit(opportunities []*types.ArbitrageOpportunity) {
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].ExpectedProfit.Cmp(opportunities[j].ExpectedProfit) > 0
	})
}
