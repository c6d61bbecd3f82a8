package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/tasks"
)

// NewTaskCommand returns the task subcommand.
func NewTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Manage the shared task queue",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a task to the queue",
				ArgsUsage: "<description>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "assign", Usage: "Worker id, or 'any'", Value: tasks.AssignAny},
					&cli.StringFlag{Name: "priority", Usage: "urgent | high | normal | low", Value: string(tasks.PriorityNormal)},
					&cli.StringFlag{Name: "cluster", Usage: "Cluster key for convergence grouping"},
				},
				Action: runTaskAdd,
			},
			{
				Name:   "list",
				Usage:  "List all tasks",
				Action: runTaskList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTaskShow,
			},
			{
				Name:      "claim",
				Usage:     "Claim a task (or the next available one)",
				ArgsUsage: "[task_id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "worker", Usage: "Worker id", Required: true},
				},
				Action: runTaskClaim,
			},
			{
				Name:      "complete",
				Usage:     "Submit the output of a claimed task",
				ArgsUsage: "<task_id> <output>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "worker", Usage: "Worker id", Required: true},
				},
				Action: runTaskComplete,
			},
			{
				Name:  "reassign",
				Usage: "Release a worker's claimed tasks back to the queue",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "worker", Usage: "Worker id", Required: true},
					&cli.BoolFlag{Name: "force", Usage: "Also release in-progress tasks"},
				},
				Action: runTaskReassign,
			},
		},
		DefaultCommand: "list",
	}
}

func runTaskAdd(_ context.Context, cmd *cli.Command) error {
	description := cmd.Args().First()
	if description == "" {
		return fmt.Errorf("usage: triad task add <description>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := rt.coord.Queue.EnqueueTask(tasks.Task{
		Description: description,
		AssignedTo:  cmd.String("assign"),
		Priority:    tasks.Priority(cmd.String("priority")),
		Cluster:     cmd.String("cluster"),
	})
	if err != nil {
		return fmt.Errorf("add task: %w", err)
	}

	fmt.Printf("Task %s added (%s, assigned to %s).\n", t.ID, t.Priority, t.AssignedTo)
	return nil
}

func runTaskList(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.coord.Queue.List()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tASSIGNED\tCLUSTER\tDESCRIPTION")
	for _, t := range list {
		cluster := t.Cluster
		if cluster == "" {
			cluster = "-"
		}
		assigned := t.AssignedTo
		if t.ClaimedBy != "" {
			assigned = t.ClaimedBy
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Priority, assigned, cluster, t.Description)
	}
	return w.Flush()
}

func runTaskShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: triad task show <task_id>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := rt.coord.Queue.Get(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Description: %s\n", t.Description)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Priority:    %s\n", t.Priority)
	fmt.Printf("Assigned:    %s\n", t.AssignedTo)
	if t.Cluster != "" {
		fmt.Printf("Cluster:     %s\n", t.Cluster)
	}
	fmt.Printf("Created:     %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.ClaimedBy != "" {
		fmt.Printf("Claimed by:  %s\n", t.ClaimedBy)
	}
	if t.ClaimedAt != nil {
		fmt.Printf("Claimed:     %s\n", t.ClaimedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.Output != "" {
		fmt.Printf("\nOutput:\n%s\n", t.Output)
	}
	return nil
}

func runTaskClaim(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	workerID := cmd.String("worker")
	var t tasks.Task
	if taskID := cmd.Args().First(); taskID != "" {
		t, err = rt.coord.Queue.Claim(taskID, workerID)
	} else {
		t, err = rt.coord.Queue.ClaimNext(workerID)
	}
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}

	fmt.Printf("Task %s claimed by %s: %s\n", t.ID, workerID, t.Description)
	return nil
}

func runTaskComplete(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().Get(0)
	output := cmd.Args().Get(1)
	if taskID == "" || output == "" {
		return fmt.Errorf("usage: triad task complete <task_id> <output>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := rt.coord.Queue.Submit(taskID, cmd.String("worker"), output)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	fmt.Printf("Task %s completed by %s.\n", t.ID, t.CompletedBy)
	return nil
}

func runTaskReassign(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.coord.Queue.Reassign(cmd.String("worker"), cmd.Bool("force"))
	if err != nil {
		return fmt.Errorf("reassign: %w", err)
	}

	fmt.Printf("Released %d task(s) from %s.\n", n, cmd.String("worker"))
	return nil
}
