package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tedxreg/registration/internal/rpc"
)

func quoteCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "quote [coupon]",
		Short: "Ask a running server for the ticket price",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			client, conn, err := rpc.Dial(addr, []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())})
			if err != nil {
				return err
			}
			defer conn.Close()

			q, err := client.Quote(cmd.Context(), code)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "base %d  discount %d  final %d\n", q.BasePrice, q.DiscountAmount, q.FinalPrice)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC server address")
	return cmd
}
