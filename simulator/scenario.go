package simulator

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/miniswap/config"
	"gopkg.in/yaml.v2"
)

// Step operations
const (
	OpAddLiquidity      = "add_liquidity"
	OpRemoveLiquidity   = "remove_liquidity"
	OpSwapExactIn       = "swap_exact_in"
	OpSwapExactOut      = "swap_exact_out"
	OpSwapSupportingFee = "swap_exact_in_supporting_fee"
	OpSwapExactETHIn    = "swap_exact_eth_in"
	OpAdvance           = "advance"
	OpSetFeeTo          = "set_fee_to"
)

// Scenario describes the tokens, seeded pools, and steps of one simulation.
// Accounts and tokens are named: a hex string is used as is, a token symbol
// resolves to its token, anything else hashes to a stable address.
type Scenario struct {
	Name string `yaml:"name"`
	// Start is the unix time of the simulated clock
	Start  int64                    `yaml:"start"`
	Tokens []TokenSpec              `yaml:"tokens"`
	Native map[string]config.Amount `yaml:"native"`
	Pools  []PoolSpec               `yaml:"pools"`
	Steps  []Step                   `yaml:"steps"`
}

type TokenSpec struct {
	Symbol         string                   `yaml:"symbol"`
	Address        string                   `yaml:"address"`
	TransferFeeBps uint16                   `yaml:"transfer_fee_bps"`
	Holders        map[string]config.Amount `yaml:"holders"`
}

type PoolSpec struct {
	TokenA   string        `yaml:"token_a"`
	TokenB   string        `yaml:"token_b"`
	AmountA  config.Amount `yaml:"amount_a"`
	AmountB  config.Amount `yaml:"amount_b"`
	Provider string        `yaml:"provider"`
}

type Step struct {
	Op     string   `yaml:"op"`
	Sender string   `yaml:"sender"`
	To     string   `yaml:"to"`
	Path   []string `yaml:"path"`
	// Amount is the exact input or output of a swap, or the liquidity to burn
	// (zero burns all of the sender's shares)
	Amount config.Amount `yaml:"amount"`
	// Limit is the minimum output or maximum input
	Limit   config.Amount `yaml:"limit"`
	TokenA  string        `yaml:"token_a"`
	TokenB  string        `yaml:"token_b"`
	AmountA config.Amount `yaml:"amount_a"`
	AmountB config.Amount `yaml:"amount_b"`
	Seconds int64         `yaml:"seconds"`
	// ExpectError makes the step succeed only if it fails with a matching message
	ExpectError string `yaml:"expect_error"`
}

// LoadScenario reads a YAML scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and checks a YAML scenario
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.UnmarshalStrict(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	var errors []string

	seen := make(map[string]bool)
	for i, tok := range sc.Tokens {
		if tok.Symbol == "" {
			errors = append(errors, fmt.Sprintf("token %d has no symbol", i))
		}
		if seen[tok.Symbol] {
			errors = append(errors, fmt.Sprintf("token %s declared twice", tok.Symbol))
		}
		seen[tok.Symbol] = true
		if tok.TransferFeeBps >= 10000 {
			errors = append(errors, fmt.Sprintf("token %s transfer fee must be below 10000 bps", tok.Symbol))
		}
	}

	for i, pool := range sc.Pools {
		if pool.TokenA == "" || pool.TokenB == "" || pool.Provider == "" {
			errors = append(errors, fmt.Sprintf("pool %d needs token_a, token_b and provider", i))
		}
	}

	for i, step := range sc.Steps {
		switch step.Op {
		case OpAddLiquidity, OpRemoveLiquidity:
			if step.TokenA == "" || step.TokenB == "" {
				errors = append(errors, fmt.Sprintf("step %d (%s) needs token_a and token_b", i, step.Op))
			}
		case OpSwapExactIn, OpSwapExactOut, OpSwapSupportingFee, OpSwapExactETHIn:
			if len(step.Path) < 2 {
				errors = append(errors, fmt.Sprintf("step %d (%s) needs a path of at least two tokens", i, step.Op))
			}
		case OpAdvance:
			if step.Seconds <= 0 {
				errors = append(errors, fmt.Sprintf("step %d (advance) needs positive seconds", i))
			}
		case OpSetFeeTo:
		default:
			errors = append(errors, fmt.Sprintf("step %d has unknown op %q", i, step.Op))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("scenario validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// NamedAddress maps a name to an account address
func NamedAddress(name string) common.Address {
	if common.IsHexAddress(name) {
		return common.HexToAddress(name)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(name))[12:])
}
