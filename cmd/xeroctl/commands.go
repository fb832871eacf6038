package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var authorizeURLCmd = &cobra.Command{
	Use:   "authorize-url",
	Short: "Print the OAuth authorization URL",
	Long: `Print the URL to open in a browser to authorize the application
with the remote ledger. After consenting, exchange the returned code with
"xeroctl authorize <code>".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		state, _ := cmd.Flags().GetString("state")
		path := "/api/authorize-url"
		if state != "" {
			path += "?state=" + url.QueryEscape(state)
		}
		raw, err := c.do(http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <code>",
	Short: "Exchange an authorization code for credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		raw, err := c.do(http.MethodPost, "/api/authorize", map[string]string{"code": args[0]})
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authorization and sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		raw, err := c.do(http.MethodGet, "/api/status", nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a sync run",
}

var syncPaymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Poll remote payment state for unsettled invoices",
	Args:  cobra.NoArgs,
	RunE:  runSync("/api/sync/payments"),
}

var syncVoidedCmd = &cobra.Command{
	Use:   "voided",
	Short: "Sweep remote voided invoices and cancel local counterparts",
	Args:  cobra.NoArgs,
	RunE:  runSync("/api/sync/voided"),
}

func runSync(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		raw, err := c.do(http.MethodPost, path, nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	}
}

var pushInvoiceCmd = &cobra.Command{
	Use:   "push-invoice <id>",
	Short: "Push a local invoice to the remote ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runByID("/api/invoices/%s/push"),
}

var cancelInvoiceCmd = &cobra.Command{
	Use:   "cancel-invoice <id>",
	Short: "Cancel a local invoice and void its remote counterpart",
	Args:  cobra.ExactArgs(1),
	RunE:  runByID("/api/invoices/%s/cancel"),
}

var pushPaymentCmd = &cobra.Command{
	Use:   "push-payment <id>",
	Short: "Push a local payment entry to the remote ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runByID("/api/payments/%s/push"),
}

var pushContactCmd = &cobra.Command{
	Use:   "push-contact <id>",
	Short: "Push a local contact to the remote ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runByID("/api/contacts/%s/push"),
}

func runByID(pathFormat string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		raw, err := c.do(http.MethodPost, fmt.Sprintf(pathFormat, url.PathEscape(args[0])), nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	}
}

func init() {
	authorizeURLCmd.Flags().String("state", "", "Opaque state passed through the OAuth flow")

	syncCmd.AddCommand(syncPaymentsCmd, syncVoidedCmd)
	rootCmd.AddCommand(
		authorizeURLCmd,
		authorizeCmd,
		statusCmd,
		syncCmd,
		pushInvoiceCmd,
		cancelInvoiceCmd,
		pushPaymentCmd,
		pushContactCmd,
	)
}
