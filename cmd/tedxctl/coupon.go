package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/repository"
	"github.com/tedxreg/registration/internal/service/coupon"
)

func couponCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupon",
		Short: "Manage discount coupons",
	}
	cmd.AddCommand(couponCreateCmd(), couponListCmd())
	return cmd
}

func couponCreateCmd() *cobra.Command {
	var (
		discount int64
		expires  string
	)
	cmd := &cobra.Command{
		Use:   "create [code]",
		Short: "Create a single-use coupon",
		Example: `  tedxctl coupon create EARLYBIRD --discount 150
  tedxctl coupon create SPEAKER --discount 500 --expires 2026-11-30T23:59:59+05:30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := coupon.CreateCouponInput{Code: args[0], Discount: discount}
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("--expires: %w", err)
				}
				input.ExpiresAt = &t
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			created, err := coupon.NewCouponService(repository.NewCouponRepository(pool)).Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			printCoupons(cmd.OutOrStdout(), []domain.Coupon{*created})
			return nil
		},
	}
	cmd.Flags().Int64VarP(&discount, "discount", "d", 0, "discount in rupees")
	cmd.Flags().StringVar(&expires, "expires", "", "expiry time (RFC 3339)")
	_ = cmd.MarkFlagRequired("discount")
	return cmd
}

func couponListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List coupons and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			coupons, err := coupon.NewCouponService(repository.NewCouponRepository(pool)).List(cmd.Context())
			if err != nil {
				return err
			}
			printCoupons(cmd.OutOrStdout(), coupons)
			return nil
		},
	}
}

func printCoupons(out io.Writer, coupons []domain.Coupon) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tDISCOUNT\tEXPIRES\tSTATE")
	for _, c := range coupons {
		expires := "-"
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.Format(time.RFC3339)
		}
		state := "available"
		var ic domain.InvalidCouponError
		if err := c.Check(time.Now()); errors.As(err, &ic) {
			state = string(ic.Reason)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Code, c.Discount, expires, state)
	}
	_ = tw.Flush()
}
