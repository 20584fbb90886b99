package main

import (
	"fmt"

	"github.com/artpar/lexgate/config"
	"github.com/artpar/lexgate/domain/budget"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Estimate the cost of a provider call",
	Long: `Estimate the cost of one provider call under the configured prices.

Examples:
  lexgate cost --input 1200 --output 400
  lexgate cost --input 1000000 --output 0 --config prod.yaml`,
	RunE: runCost,
}

var (
	costInputTokens  int64
	costOutputTokens int64
)

func init() {
	rootCmd.AddCommand(costCmd)

	costCmd.Flags().Int64Var(&costInputTokens, "input", 0, "input tokens")
	costCmd.Flags().Int64Var(&costOutputTokens, "output", 0, "output tokens")
}

func runCost(cmd *cobra.Command, args []string) error {
	if costInputTokens < 0 || costOutputTokens < 0 {
		return fmt.Errorf("token counts must not be negative")
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	pricing := budget.NewPricing(cfg.Budget.InputPerMillionUSD, cfg.Budget.OutputPerMillionUSD)
	cents := budget.EstimateCost(costInputTokens, costOutputTokens, pricing)
	share := cents.Div(decimal.NewFromInt(cfg.Budget.DailyCents)).Mul(decimal.NewFromInt(100))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tokens:       %d input, %d output\n", costInputTokens, costOutputTokens)
	fmt.Fprintf(out, "Prices:       $%s input, $%s output per million\n",
		pricing.InputPerMillion.String(), pricing.OutputPerMillion.String())
	fmt.Fprintf(out, "Cost:         %s cents\n", cents.StringFixed(2))
	fmt.Fprintf(out, "Daily budget: %s%% of %d cents\n", share.StringFixed(2), cfg.Budget.DailyCents)
	return nil
}
