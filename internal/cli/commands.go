package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/andreyvit/stablestore/ledger"
)

// ClaimResult is the output of submit-claim: the claim and the id to fetch it by.
type ClaimResult struct {
	ClaimID uint64                 `json:"claim_id" yaml:"claim_id"`
	Claim   *ledger.InsuranceClaim `json:"claim" yaml:"claim"`
}

func newDebtCommands(opts *RootOptions) []*cobra.Command {
	var addPayload, updatePayload ledger.DebtPayload

	add := &cobra.Command{
		Use:   "add-debt",
		Short: "Record a new debt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.AddDebt(addPayload)
			})
		},
	}
	addDebtFlags(add, &addPayload)

	update := &cobra.Command{
		Use:   "update-debt <id>",
		Short: "Replace debtor, creditor and amount of a debt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.UpdateDebt(id, updatePayload)
			})
		},
	}
	addDebtFlags(update, &updatePayload)

	get := &cobra.Command{
		Use:   "get-debt <id>",
		Short: "Show a debt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.GetDebt(id)
			})
		},
	}

	return []*cobra.Command{add, update, get}
}

func addDebtFlags(cmd *cobra.Command, p *ledger.DebtPayload) {
	cmd.Flags().StringVar(&p.Debtor, "debtor", "", "who owes")
	cmd.Flags().StringVar(&p.Creditor, "creditor", "", "who is owed")
	cmd.Flags().Uint64Var(&p.Amount, "amount", 0, "amount owed")
}

func newEscrowCommands(opts *RootOptions) []*cobra.Command {
	var p ledger.EscrowPayload

	create := &cobra.Command{
		Use:   "create-escrow",
		Short: "Put an amount in escrow against a debt, replacing any previous escrow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.CreateEscrow(p)
			})
		},
	}
	create.Flags().Uint64Var(&p.DebtID, "debt-id", 0, "debt to secure")
	create.Flags().Uint64Var(&p.Amount, "amount", 0, "amount held")

	get := &cobra.Command{
		Use:   "get-escrow <debt-id>",
		Short: "Show the escrow of a debt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debtID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.GetEscrow(debtID)
			})
		},
	}

	return []*cobra.Command{create, get}
}

func newInsuranceCommands(opts *RootOptions) []*cobra.Command {
	var p ledger.CropInsurancePayload
	var start, end string

	purchase := &cobra.Command{
		Use:   "purchase-insurance",
		Short: "Issue a crop insurance policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if p.CoverageStartDate, err = parseTimestamp(start); err != nil {
				return err
			}
			if p.CoverageEndDate, err = parseTimestamp(end); err != nil {
				return err
			}
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.PurchaseCropInsurance(p)
			})
		},
	}
	purchase.Flags().StringVar(&p.Farmer, "farmer", "", "insured farmer")
	purchase.Flags().StringVar(&p.CropType, "crop-type", "", "insured crop")
	purchase.Flags().Uint64Var(&p.CoverageAmount, "coverage", 0, "coverage amount")
	purchase.Flags().StringVar(&start, "start", "", "coverage start (RFC 3339, YYYY-MM-DD or Unix nanoseconds)")
	purchase.Flags().StringVar(&end, "end", "", "coverage end (RFC 3339, YYYY-MM-DD or Unix nanoseconds)")

	getPolicy := &cobra.Command{
		Use:   "get-insurance <id>",
		Short: "Show a crop insurance policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.GetCropInsurance(id)
			})
		},
	}

	var cp ledger.InsuranceClaimPayload
	submit := &cobra.Command{
		Use:   "submit-claim",
		Short: "File a claim against a crop insurance policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) (any, error) {
				claimID, claim, err := a.ledger.SubmitInsuranceClaim(cp)
				if err != nil {
					return nil, err
				}
				return &ClaimResult{ClaimID: claimID, Claim: claim}, nil
			})
		},
	}
	submit.Flags().Uint64Var(&cp.InsuranceID, "insurance-id", 0, "policy to claim against")
	submit.Flags().Uint64Var(&cp.ClaimAmount, "amount", 0, "claimed amount")

	getClaim := &cobra.Command{
		Use:   "get-claim <claim-id>",
		Short: "Show an insurance claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.GetInsuranceClaim(id)
			})
		},
	}

	return []*cobra.Command{purchase, getPolicy, submit, getClaim}
}

func newDumpCommand(opts *RootOptions) *cobra.Command {
	var from uint64
	var limit int
	cmd := &cobra.Command{
		Use:       "dump <table>",
		Short:     "List the records of a table in key order",
		Long:      "List the records of a table in key order.\n\nTables: crop_insurance, debts, escrows, insurance_claims.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"crop_insurance", "debts", "escrows", "insurance_claims"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) (any, error) {
				return a.ledger.Dump(args[0], from, limit)
			})
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first key")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 = all)")
	return cmd
}

// StatsResult is the output of the stats command.
type StatsResult struct {
	LastID     uint64 `json:"last_id" yaml:"last_id"`
	StoreBytes int64  `json:"store_bytes" yaml:"store_bytes"`
	Regions    any    `json:"regions" yaml:"regions"`
}

func newStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the last minted id and per-region usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) (any, error) {
				regions, err := a.mm.Stats()
				if err != nil {
					return nil, err
				}
				size, err := a.mm.StoreSize()
				if err != nil {
					return nil, err
				}
				return &StatsResult{LastID: a.ledger.LastID(), StoreBytes: size, Regions: regions}, nil
			})
		},
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid id %q", s), Err: err}
	}
	return id, nil
}

func parseTimestamp(s string) (ledger.Timestamp, error) {
	if s == "" {
		return 0, nil
	}
	if ns, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ledger.Timestamp(ns), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Before(time.Unix(0, 0)) || t.After(time.Unix(0, math.MaxInt64)) {
				return 0, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid date %q: must be between 1970 and 2262", s)}
			}
			return ledger.TimestampOf(t), nil
		}
	}
	return 0, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid date %q", s)}
}
