package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardpost/invite-host/pkg/client"
	"github.com/spf13/cobra"
)

type options struct {
	server      string
	mode        string
	fallback    bool
	stallWindow time.Duration
	ceiling     int64
	selfTest    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "invitectl",
		Short: "Upload invitations to an invite host",
		Long: `invitectl allocates invitation ids and publishes invitation archives
(index.html, merged.(jpg|jpeg|png), thumb_1200x630.(jpg|jpeg)).

Examples:
  invitectl new-id
  invitectl publish invite.zip
  invitectl publish --id 1234567 --mode direct invite.zip
  invitectl selftest`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("INVITE_HOST", "http://localhost:1337"), "Invite host base URL")

	root.AddCommand(newIDCmd(opts), newPublishCmd(opts), newSelfTestCmd(opts))
	return root
}

func newIDCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new-id",
		Short: "Allocate a free invitation id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := client.NewAPI(opts.server, httpClient()).NewID(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newPublishCmd(opts *options) *cobra.Command {
	var id string
	var noFallback bool
	cmd := &cobra.Command{
		Use:   "publish <archive.zip>",
		Short: "Publish an invitation archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if m := client.Mode(opts.mode); m != client.ModeServer && m != client.ModeDirect {
				return fmt.Errorf("unknown mode %q (want server or direct)", opts.mode)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if id == "" {
				id, err = client.NewAPI(opts.server, httpClient()).NewID(ctx)
				if err != nil {
					return fmt.Errorf("allocate id: %w", err)
				}
			}

			o := orchestrator(opts, !noFallback)
			if opts.selfTest && client.Mode(opts.mode) == client.ModeDirect {
				if res := o.SelfTest(ctx); !res.Viable {
					fmt.Fprintf(cmd.ErrOrStderr(), "direct uploads look blocked (%v); using server mode\n", res.Err)
					opts.mode = string(client.ModeServer)
					o = orchestrator(opts, !noFallback)
				}
			}

			res, err := o.Publish(ctx, id, data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "published %s via %s", res.ID, res.Mode)
			if res.FellBack {
				fmt.Fprint(out, " (after direct upload failed)")
			}
			fmt.Fprintln(out)
			for _, key := range res.Uploaded {
				fmt.Fprintln(out, "  "+key)
			}
			fmt.Fprintf(out, "%s/i/%s/\n", opts.server, res.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Invitation id (allocated when empty)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(client.ModeServer), "Upload mode: server or direct")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "Do not retry through the server when a direct upload fails")
	cmd.Flags().DurationVar(&opts.stallWindow, "stall-window", client.DefaultStallWindow, "Abort a direct upload after this long without progress")
	cmd.Flags().Int64Var(&opts.ceiling, "ceiling", client.DefaultRelayCeiling, "Largest body the server relay accepts, in bytes")
	cmd.Flags().BoolVar(&opts.selfTest, "self-test", false, "Probe direct uploads first and switch to server mode if they fail")
	return cmd
}

func newSelfTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check whether direct uploads to storage work from here",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := orchestrator(opts, false).SelfTest(cmd.Context())
			if !res.Viable {
				fmt.Fprintf(cmd.OutOrStdout(), "direct uploads: not viable after %s: %v\n", res.Elapsed.Round(time.Millisecond), res.Err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "direct uploads: ok in %s\n", res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

func orchestrator(opts *options, fallback bool) *client.Orchestrator {
	return client.NewHTTP(opts.server, httpClient(), client.Config{
		Mode:         client.Mode(opts.mode),
		Fallback:     fallback,
		RelayCeiling: opts.ceiling,
		StallWindow:  opts.stallWindow,
	})
}

func httpClient() *http.Client {
	// no overall timeout: stalls are caught by the watchdog
	return &http.Client{}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
