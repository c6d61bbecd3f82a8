package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewAccountsCommand returns the accounts subcommand.
func NewAccountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "Manage the credential pool and its budgets",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add an account to the pool",
				ArgsUsage: "<name> <credential> [initial_credits]",
				Action:    runAccountsAdd,
			},
			{
				Name:      "remove",
				Usage:     "Remove an account",
				ArgsUsage: "<name>",
				Action:    runAccountsRemove,
			},
			{
				Name:   "list",
				Usage:  "List all accounts",
				Action: runAccountsList,
			},
			{
				Name:   "next",
				Usage:  "Pick the least recently used account",
				Action: runAccountsNext,
			},
			{
				Name:   "optimal",
				Usage:  "Pick the account with the most credits remaining",
				Action: runAccountsOptimal,
			},
			{
				Name:      "track",
				Usage:     "Record usage cost against an account",
				ArgsUsage: "<name> <cost>",
				Action:    runAccountsTrack,
			},
			{
				Name:   "status",
				Usage:  "Show pool totals and burn rate",
				Action: runAccountsStatus,
			},
			{
				Name:      "allocate",
				Usage:     "Round-robin accounts over n tasks",
				ArgsUsage: "<n>",
				Action:    runAccountsAllocate,
			},
		},
		DefaultCommand: "list",
	}
}

func runAccountsAdd(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().Get(0)
	credential := cmd.Args().Get(1)
	if name == "" || credential == "" {
		return fmt.Errorf("usage: triad accounts add <name> <credential> [initial_credits]")
	}

	credits := 100.0
	if raw := cmd.Args().Get(2); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid initial_credits %q: %w", raw, err)
		}
		credits = parsed
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	acct, err := rt.pool.Add(name, credential, credits)
	if err != nil {
		return fmt.Errorf("add account: %w", err)
	}

	fmt.Printf("Account %s added with $%.2f credits.\n", acct.Name, acct.CreditsRemaining)
	return nil
}

func runAccountsRemove(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: triad accounts remove <name>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.pool.Remove(name); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}

	fmt.Printf("Account %s removed.\n", name)
	return nil
}

func runAccountsList(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.pool.List()
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No accounts in the pool.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tREMAINING\tUSED\tTASKS\tLAST USED")
	for _, a := range list {
		lastUsed := "never"
		if a.LastUsed != nil {
			lastUsed = a.LastUsed.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.2f\t%d\t%s\n",
			a.Name, a.Status, a.CreditsRemaining, a.CreditsUsed, a.TasksCompleted, lastUsed)
	}
	return w.Flush()
}

func runAccountsNext(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	acct, err := rt.pool.Next()
	if err != nil {
		return fmt.Errorf("next account: %w", err)
	}

	fmt.Printf("%s ($%.2f remaining)\n", acct.Name, acct.CreditsRemaining)
	return nil
}

func runAccountsOptimal(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	acct, err := rt.pool.Optimal()
	if err != nil {
		return fmt.Errorf("optimal account: %w", err)
	}

	fmt.Printf("%s ($%.2f remaining)\n", acct.Name, acct.CreditsRemaining)
	return nil
}

func runAccountsTrack(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().Get(0)
	raw := cmd.Args().Get(1)
	if name == "" || raw == "" {
		return fmt.Errorf("usage: triad accounts track <name> <cost>")
	}
	cost, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid cost %q: %w", raw, err)
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	acct, err := rt.pool.Track(name, cost)
	if err != nil {
		return fmt.Errorf("track usage: %w", err)
	}

	fmt.Printf("Tracked $%.4f against %s ($%.2f remaining, %s).\n",
		cost, acct.Name, acct.CreditsRemaining, acct.Status)
	return nil
}

func runAccountsStatus(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.pool.Status()
	if err != nil {
		return fmt.Errorf("pool status: %w", err)
	}

	fmt.Printf("Accounts:         %d (%d active, %d depleted)\n", st.Total, st.Active, st.Depleted)
	fmt.Printf("Credits:          $%.2f remaining of $%.2f\n", st.CreditsRemaining, st.TotalCredits)
	fmt.Printf("Used:             $%.2f over %d task(s)\n", st.CreditsUsed, st.TasksCompleted)
	if st.AvgCostPerTask > 0 {
		fmt.Printf("Avg cost/task:    $%.4f\n", st.AvgCostPerTask)
		fmt.Printf("Est. tasks left:  %d\n", st.EstimatedTasks)
	}
	if st.BudgetExhausted {
		fmt.Println("BUDGET EXHAUSTED: add or top up an account to continue.")
	}
	return nil
}

func runAccountsAllocate(_ context.Context, cmd *cli.Command) error {
	raw := cmd.Args().First()
	if raw == "" {
		return fmt.Errorf("usage: triad accounts allocate <n>")
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid task count %q", raw)
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	batch, err := rt.pool.AllocateBatch(n)
	if err != nil {
		return fmt.Errorf("allocate: %w", err)
	}

	for i, a := range batch {
		fmt.Printf("task %d -> %s\n", i+1, a.Name)
	}
	return nil
}
