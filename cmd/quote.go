package cmd

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/config"
	"github.com/spf13/cobra"
)

var (
	quotePath     []string
	quoteAmount   string
	quoteExactOut bool
	quoteBest     bool
	quoteMaxHops  int
)

type quoteResult struct {
	Path    []string `json:"path" yaml:"path"`
	Pairs   []string `json:"pairs,omitempty" yaml:"pairs,omitempty"`
	Amounts []string `json:"amounts" yaml:"amounts"`
}

var quoteCmd = &cobra.Command{
	Use:   "quote <scenario.yaml>",
	Short: "Price a path against the pools a scenario leaves behind",
	Long: `Runs the scenario, then prices --amount along --path. With --exact-out the
amount is the desired output. With --best only the ends of --path are used and
the most rewarding route of at most --max-hops swaps is searched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(quotePath) < 2 {
			return fmt.Errorf("--path needs at least two tokens")
		}
		amount, err := config.ParseAmount(quoteAmount)
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

		path := make([]common.Address, len(quotePath))
		for i, name := range quotePath {
			path[i] = rt.sim.Resolve(name)
		}

		router := rt.env.Router
		var (
			amounts []*big.Int
			pairs   []common.Address
		)
		switch {
		case quoteBest:
			route, err := router.BestTradeExactIn(ctx, amount.Big(), path[0], path[len(path)-1], quoteMaxHops)
			if err != nil {
				return err
			}
			path, pairs, amounts = route.Path, route.Pairs, route.Amounts
		case quoteExactOut:
			amounts, err = router.GetAmountsIn(ctx, amount.Big(), path)
		default:
			amounts, err = router.GetAmountsOut(ctx, amount.Big(), path)
		}
		if err != nil {
			return err
		}

		result := quoteResult{}
		for _, addr := range path {
			result.Path = append(result.Path, rt.sim.Name(addr))
		}
		for _, addr := range pairs {
			result.Pairs = append(result.Pairs, addr.Hex())
		}
		for _, a := range amounts {
			result.Amounts = append(result.Amounts, a.String())
		}
		return write(cmd.OutOrStdout(), result)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().StringSliceVar(&quotePath, "path", nil, "token symbols or addresses to route through")
	quoteCmd.Flags().StringVar(&quoteAmount, "amount", "1e18", "input amount, or output amount with --exact-out")
	quoteCmd.Flags().BoolVar(&quoteExactOut, "exact-out", false, "quote the input needed for --amount of output")
	quoteCmd.Flags().BoolVar(&quoteBest, "best", false, "search for the best route between the ends of --path")
	quoteCmd.Flags().IntVar(&quoteMaxHops, "max-hops", 3, "longest route searched with --best")
}
