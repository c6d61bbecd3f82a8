package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/converge"
)

// NewConvergeCommand returns the converge subcommand.
func NewConvergeCommand() *cli.Command {
	return &cli.Command{
		Name:  "converge",
		Usage: "Create and execute hierarchical convergences",
		Commands: []*cli.Command{
			{
				Name:      "cluster",
				Usage:     "Create a level-1 convergence from a cluster's outputs",
				ArgsUsage: "<cluster_name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "strategy", Usage: "comprehensive | executive | technical | narrative"},
				},
				Action: runConvergeCluster,
			},
			{
				Name:      "meta",
				Usage:     "Create a level-2 convergence from completed clusters",
				ArgsUsage: "<meta_name> <cluster,cluster,...>",
				Action:    runConvergeMeta,
			},
			{
				Name:      "ultimate",
				Usage:     "Create the level-3 convergence from completed metas",
				ArgsUsage: "<project_name> <meta,meta,...>",
				Action:    runConvergeUltimate,
			},
			{
				Name:      "execute",
				Usage:     "Run the synthesis delegate for a ready convergence",
				ArgsUsage: "<convergence_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "credential", Usage: "Account credential (default: optimal account)"},
				},
				Action: runConvergeExecute,
			},
			{
				Name:  "auto",
				Usage: "Create cluster convergences for every group at fan-in",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Report without creating records"},
				},
				Action: runConvergeAuto,
			},
			{
				Name:   "status",
				Usage:  "Summarize convergence records",
				Action: runConvergeStatus,
			},
			{
				Name:   "list",
				Usage:  "List convergence records",
				Action: runConvergeList,
			},
		},
		DefaultCommand: "status",
	}
}

func runConvergeCluster(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: triad converge cluster <cluster_name>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.engine.Cluster(name, converge.Strategy(cmd.String("strategy")))
	if err != nil {
		return fmt.Errorf("create cluster convergence: %w", err)
	}

	fmt.Printf("Convergence %s created for cluster %s (%d outputs, %s).\n",
		rec.ID, rec.GroupKey, len(rec.InputRefs), rec.Strategy)
	return nil
}

func runConvergeMeta(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().Get(0)
	clusters := splitList(cmd.Args().Get(1))
	if name == "" || len(clusters) == 0 {
		return fmt.Errorf("usage: triad converge meta <meta_name> <cluster,cluster,...>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.engine.Meta(name, clusters)
	if err != nil {
		return fmt.Errorf("create meta convergence: %w", err)
	}

	fmt.Printf("Meta convergence %s created over %d cluster(s).\n", rec.ID, len(rec.Clusters))
	return nil
}

func runConvergeUltimate(_ context.Context, cmd *cli.Command) error {
	project := cmd.Args().Get(0)
	metas := splitList(cmd.Args().Get(1))
	if project == "" || len(metas) == 0 {
		return fmt.Errorf("usage: triad converge ultimate <project_name> <meta,meta,...>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.engine.Ultimate(project, metas)
	if err != nil {
		return fmt.Errorf("create ultimate convergence: %w", err)
	}

	fmt.Printf("Ultimate convergence %s created for %s.\n", rec.ID, rec.GroupKey)
	return nil
}

func runConvergeExecute(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: triad converge execute <convergence_id>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	credential := cmd.String("credential")
	accountName := ""
	if credential == "" {
		acct, err := rt.pool.Optimal()
		if err != nil {
			return fmt.Errorf("pick account: %w", err)
		}
		credential = acct.Credential
		accountName = acct.Name
	}

	rec, err := rt.engine.Execute(ctx, id, credential)
	if err != nil {
		return fmt.Errorf("execute convergence: %w", err)
	}

	if accountName != "" {
		if _, err := rt.pool.Track(accountName, rec.Cost); err != nil {
			return fmt.Errorf("track cost: %w", err)
		}
	}

	fmt.Printf("Convergence %s completed ($%.4f).\n\n%s\n", rec.ID, rec.Cost, rec.Output)
	return nil
}

func runConvergeAuto(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.engine.AutoConverge(cmd.Bool("dry-run"))
	if err != nil {
		return fmt.Errorf("auto-converge: %w", err)
	}

	if res.DryRun {
		if len(res.ReadyClusters) == 0 {
			fmt.Println("No clusters at fan-in.")
			return nil
		}
		fmt.Printf("Would converge: %s\n", strings.Join(res.ReadyClusters, ", "))
		return nil
	}

	fmt.Printf("Created %d convergence(s).\n", len(res.Created))
	for _, name := range res.Created {
		fmt.Printf("  %s\n", name)
	}
	for cluster, msg := range res.Failed {
		fmt.Fprintf(os.Stderr, "  %s failed: %s\n", cluster, msg)
	}
	return nil
}

func runConvergeStatus(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.engine.Status()
	if err != nil {
		return fmt.Errorf("convergence status: %w", err)
	}

	fmt.Printf("Convergences: %d total (%d ready, %d completed)\n", st.Total, st.Ready, st.Completed)
	fmt.Printf("  clusters: %d  metas: %d  ultimates: %d\n", st.Clusters, st.Metas, st.Ultimates)
	return nil
}

func runConvergeList(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.engine.List()
	if err != nil {
		return fmt.Errorf("list convergences: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No convergences found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLEVEL\tGROUP\tSTRATEGY\tSTATUS\tCOST")
	for _, rec := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t$%.4f\n",
			rec.ID, rec.Level, rec.GroupKey, rec.Strategy, rec.Status, rec.Cost)
	}
	return w.Flush()
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
