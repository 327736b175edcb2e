package cli

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/client"
)

// CallOptions holds call flags.
type CallOptions struct {
	Addr    string
	Token   string
	Timeout time.Duration
}

// NewCallCommand sends one request envelope and prints the response data.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{}

	cmd := &cobra.Command{
		Use:   "call <method> [args-json]",
		Short: "Call a method on a running server, or on a fresh in-process simulator",
		Long: `Call sends {"method": <method>, "args": <args-json>} and prints the data
of a successful response. With --addr the request goes to a serve instance's
framed RPC port; otherwise a simulator is created from the config for the
duration of the call.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var callArgs json.RawMessage
			if len(args) == 2 {
				callArgs = json.RawMessage(args[1])
				if !json.Valid(callArgs) {
					return fmt.Errorf("args must be valid JSON")
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			transport, err := openTransport(ctx, rootOpts, opts)
			if err != nil {
				return err
			}
			c := client.New(transport)
			defer func() { _ = c.Close() }()

			out, err := client.Call[json.RawMessage](ctx, c, args[0], callArgs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "framed RPC address, e.g. 127.0.0.1:30001")
	cmd.Flags().StringVar(&opts.Token, "token", "", "RPC auth token")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	return cmd
}

func openTransport(ctx context.Context, rootOpts *RootOptions, opts *CallOptions) (client.Transport, error) {
	if opts.Addr != "" {
		t, err := client.DialFrame(ctx, opts.Addr, opts.Token)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return nil, err
	}
	h, err := bridge.CreateWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return client.NewOwned(h), nil
}

// NewMethodsCommand lists the registered method names.
func NewMethodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the methods the dispatch registry serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range bridge.DefaultRegistry().Methods() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
