package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/config"
	"txkernel/pkg/debug/ledgerreader"
	"txkernel/pkg/debug/ui"
	"txkernel/pkg/logging"
	"txkernel/pkg/primitives"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:           "txkernel",
		Short:         "Transaction ledger and lock table toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return logging.Init(cfg.Logging())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Close()
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newCreateCommand(&cfg),
		newBeginCommand(&cfg),
		newFinishCommand(&cfg, "commit", "Mark transactions committed"),
		newFinishCommand(&cfg, "abort", "Mark transactions aborted"),
		newStatusCommand(&cfg),
		newActiveCommand(&cfg),
		newDemoCommand(&cfg),
		newInspectCommand(&cfg),
	)
	return root
}

func ledgerOptions(cfg *config.Config) []transaction.Option {
	return []transaction.Option{transaction.WithStatusCache(cfg.StatusCacheSize)}
}

func newCreateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create an empty ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := primitives.Filepath(cfg.LedgerPath())
			if err := path.MkdirAll(primitives.DirMode); err != nil {
				return errors.Wrap(err, "create data directory")
			}

			l, err := transaction.Create(path.String(), ledgerOptions(cfg)...)
			if err != nil {
				return err
			}
			defer l.Close()

			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessStyle.Render("✓ created "+l.Path()))
			return nil
		},
	}
}

func newBeginCommand(cfg *config.Config) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Start transactions and print their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := transaction.Open(cfg.LedgerPath(), ledgerOptions(cfg)...)
			if err != nil {
				return err
			}
			defer l.Close()

			for i := 0; i < count; i++ {
				xid, err := l.Begin()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), uint64(xid))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of transactions to start")
	return cmd
}

func newFinishCommand(cfg *config.Config, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " XID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			xids, err := parseXIDs(args)
			if err != nil {
				return err
			}

			l, err := transaction.Open(cfg.LedgerPath(), ledgerOptions(cfg)...)
			if err != nil {
				return err
			}
			defer l.Close()

			finish := l.Commit
			if verb == "abort" {
				finish = l.Abort
			}
			for _, xid := range xids {
				if err := finish(xid); err != nil {
					return err
				}
				status, _ := l.Status(xid)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10d %s\n", uint64(xid), ui.StatusBadge(status.String()))
			}
			return nil
		},
	}
}

func newStatusCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status [XID...]",
		Short: "Show the ledger header, or the status of the given transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := transaction.Inspect(cfg.LedgerPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				counts := snap.Counts()
				fmt.Fprint(out, ui.RenderKeyValue("Ledger", snap.Path))
				fmt.Fprint(out, ui.RenderKeyValue("Size", fmt.Sprintf("%d bytes", snap.Size)))
				fmt.Fprint(out, ui.RenderKeyValue("Counter", strconv.FormatUint(counts.Counter, 10)))
				fmt.Fprint(out, ui.RenderKeyValue("Active", strconv.FormatUint(counts.Active, 10)))
				fmt.Fprint(out, ui.RenderKeyValue("Committed", strconv.FormatUint(counts.Committed, 10)))
				fmt.Fprint(out, ui.RenderKeyValue("Aborted", strconv.FormatUint(counts.Aborted, 10)))
				return snap.Validate()
			}

			xids, err := parseXIDs(args)
			if err != nil {
				return err
			}
			rows := make([][]string, len(xids))
			for i, xid := range xids {
				rows[i] = []string{strconv.FormatUint(uint64(xid), 10), snap.Status(xid).String()}
			}
			fmt.Fprint(out, ui.RenderTable([]string{"XID", "STATUS"}, rows, -1))
			return nil
		},
	}
}

func newActiveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List transactions still recorded as active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := transaction.Inspect(cfg.LedgerPath())
			if err != nil {
				return err
			}
			for i, st := range snap.Statuses {
				if st == transaction.StatusActive {
					fmt.Fprintln(cmd.OutOrStdout(), i+1)
				}
			}
			return nil
		},
	}
}

func newInspectCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Browse the ledger interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ledgerreader.Run(cfg.LedgerPath())
		},
	}
}

func parseXIDs(args []string) ([]primitives.XID, error) {
	xids := make([]primitives.XID, len(args))
	for i, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid transaction id %q", arg)
		}
		xids[i] = primitives.XID(n)
	}
	return xids, nil
}

// banner renders the title shown before the demo workload.
func banner() string {
	return lipgloss.NewStyle().
		Foreground(ui.PrimaryColor).
		Bold(true).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ui.SecondaryColor).
		Padding(0, 2).
		Render("txkernel · transaction ledger + lock table")
}
