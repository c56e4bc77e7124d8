package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/inaiurai/jobmeter/internal/models"
	"github.com/inaiurai/jobmeter/internal/repository"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage metered accounts",
	}
	cmd.AddCommand(
		newAccountCreateCmd(a),
		newAccountTopUpCmd(a),
	)
	return cmd
}

func newAccountCreateCmd(a *app) *cobra.Command {
	var balance, plan string
	var superadmin bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bal, err := decimal.NewFromString(balance)
			if err != nil || bal.IsNegative() {
				return fmt.Errorf("invalid --balance %q", balance)
			}
			acc := &models.Account{Balance: bal, IsSuperadmin: superadmin}
			if plan != "" {
				acc.PlanKey = &plan
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, a.cfg.DatabaseURL, a.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.NewAccountRepo(pool).Create(ctx, acc); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", acc.ID, acc.Balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&balance, "balance", "0", "starting balance")
	cmd.Flags().StringVar(&plan, "plan", "", "plan key")
	cmd.Flags().BoolVar(&superadmin, "superadmin", false, "exempt the account from charges")
	return cmd
}

func newAccountTopUpCmd(a *app) *cobra.Command {
	var id, amount string
	cmd := &cobra.Command{
		Use:   "topup",
		Short: "Add credits to an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accountID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid --id %q", id)
			}
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q", amount)
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, a.cfg.DatabaseURL, a.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			bal, err := repository.NewAccountRepo(pool).AddCredits(ctx, accountID, amt)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("account %s not found", accountID)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", accountID, bal)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to add")
	return cmd
}
