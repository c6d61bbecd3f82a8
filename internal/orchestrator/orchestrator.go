// Package orchestrator sequences a full coordination run: setup generates
// tasks from the manifest, execute drives them through account-routed
// delegate calls, and converge drains the outputs up the hierarchy to one
// master artifact. Progress and metrics persist in the shared store so a
// monitor on another machine sees the run advance.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/triad-sh/triad/internal/accounts"
	"github.com/triad-sh/triad/internal/converge"
	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/models"
	"github.com/triad-sh/triad/internal/store"
	"github.com/triad-sh/triad/internal/tasks"
)

// Phases of a run.
const (
	PhaseInit     = "init"
	PhaseSetup    = "setup-complete"
	PhaseExecute  = "execution-complete"
	PhaseConverge = "convergence-complete"
)

// MasterOutputFile is where the ultimate synthesis lands, next to the
// shared documents.
const MasterOutputFile = "MASTER_OUTPUT.md"

// runnerPoolSize spreads one cluster's tasks over this many worker ids so
// each fan-in group shows distinct contributors.
const runnerPoolSize = 3

// Stages tracks which parts of the run have finished.
type Stages struct {
	AccountSetup   bool `json:"accountSetup"`
	TaskGeneration bool `json:"taskGeneration"`
	Execution      bool `json:"execution"`
	Convergence    bool `json:"convergence"`
	Complete       bool `json:"complete"`
}

// Metrics accumulates run counters.
type Metrics struct {
	TotalBudget           float64 `json:"totalBudget"`
	BudgetUsed            float64 `json:"budgetUsed"`
	TasksGenerated        int     `json:"tasksGenerated"`
	TasksCompleted        int     `json:"tasksCompleted"`
	TasksFailed           int     `json:"tasksFailed"`
	ConvergencesCompleted int     `json:"convergencesCompleted"`
	ConvergencesFailed    int     `json:"convergencesFailed"`
}

// State is the persisted orchestration document.
type State struct {
	Initialized time.Time `json:"initialized"`
	LastUpdated time.Time `json:"lastUpdated"`
	Phase       string    `json:"phase"`
	Stages      Stages    `json:"stages"`
	Metrics     Metrics   `json:"metrics"`
}

// Orchestrator drives the run end to end.
type Orchestrator struct {
	store   *store.Store
	queue   *tasks.Queue
	pool    *accounts.Pool
	engine  *converge.Engine
	factory converge.CompleterFactory
	bus     *events.Bus // nil-safe
	budget  float64
}

// New creates an Orchestrator.
func New(s *store.Store, q *tasks.Queue, pool *accounts.Pool, engine *converge.Engine, factory converge.CompleterFactory, bus *events.Bus, totalBudget float64) *Orchestrator {
	return &Orchestrator{
		store:   s,
		queue:   q,
		pool:    pool,
		engine:  engine,
		factory: factory,
		bus:     bus,
		budget:  totalBudget,
	}
}

// Init resets the orchestration state document.
func (o *Orchestrator) Init() (State, error) {
	state := State{
		Initialized: time.Now(),
		LastUpdated: time.Now(),
		Phase:       PhaseInit,
		Metrics:     Metrics{TotalBudget: o.budget},
	}
	if err := o.store.Write(store.DocOrchestration, state); err != nil {
		return State{}, fmt.Errorf("init orchestration: %w", err)
	}
	return state, nil
}

// State returns the persisted run state.
func (o *Orchestrator) State() (State, error) {
	var state State
	if err := o.store.Read(store.DocOrchestration, &state); err != nil {
		return State{}, fmt.Errorf("read orchestration state: %w", err)
	}
	return state, nil
}

func (o *Orchestrator) updateState(mutate func(*State)) error {
	o.store.Lock()
	defer o.store.Unlock()

	var state State
	if err := o.store.Read(store.DocOrchestration, &state); err != nil {
		return fmt.Errorf("read orchestration state: %w", err)
	}
	mutate(&state)
	state.LastUpdated = time.Now()
	if err := o.store.Write(store.DocOrchestration, state); err != nil {
		return fmt.Errorf("update orchestration state: %w", err)
	}
	return nil
}

func (o *Orchestrator) phaseEvent(eventType events.EventType, phase string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["phase"] = phase
	o.bus.Publish(events.NewEvent(eventType, "", payload))
}

// Setup verifies the account pool and fills the task queue from the
// manifest. Each cluster's descriptions become high-priority tasks tagged
// with the cluster key, repeated multiplier times.
func (o *Orchestrator) Setup(manifest Manifest) (int, error) {
	o.phaseEvent(events.EventPhaseStarted, "setup", nil)

	if err := manifest.Validate(); err != nil {
		return 0, err
	}

	status, err := o.pool.Status()
	if err != nil {
		return 0, err
	}
	if status.Active == 0 {
		return 0, fmt.Errorf("setup: %w", coord.ErrBudgetExhausted)
	}

	mult := manifest.Multiplier
	if mult <= 0 {
		mult = 1
	}

	generated := 0
	for _, domain := range manifest.Domains {
		for _, cluster := range domain.Clusters {
			for i := 0; i < mult; i++ {
				for _, description := range cluster.Tasks {
					_, err := o.queue.EnqueueTask(tasks.Task{
						Description: description,
						AssignedTo:  tasks.AssignAny,
						Priority:    tasks.PriorityHigh,
						Cluster:     cluster.Name,
						CreatedBy:   "orchestrator",
					})
					if err != nil {
						return generated, fmt.Errorf("enqueue %s: %w", cluster.Name, err)
					}
					generated++
				}
			}
		}
	}

	err = o.updateState(func(s *State) {
		s.Phase = PhaseSetup
		s.Stages.AccountSetup = true
		s.Stages.TaskGeneration = true
		s.Metrics.TasksGenerated += generated
	})
	if err != nil {
		return generated, err
	}

	o.phaseEvent(events.EventPhaseCompleted, "setup", map[string]any{"tasks": generated})
	return generated, nil
}

// PhaseResult summarizes one phase: per-item failures are collected, not
// fatal, so one bad task or credential cannot sink the run.
type PhaseResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	TotalCost float64           `json:"totalCost"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r *PhaseResult) fail(key string, err error) {
	r.Failed++
	if r.Errors == nil {
		r.Errors = map[string]string{}
	}
	r.Errors[key] = err.Error()
}

// Execute claims every assigned task and runs it through the completion
// delegate, billing each call to a round-robin allocated account. A
// delegate failure releases nothing: the failed task stays claimed by its
// runner and is reported in the result. Budget exhaustion stops the phase.
func (o *Orchestrator) Execute(ctx context.Context, dryRun bool) (PhaseResult, error) {
	o.phaseEvent(events.EventPhaseStarted, "execute", nil)

	var result PhaseResult

	claimable, err := o.queue.ListClaimable("orchestrator")
	if err != nil {
		return result, err
	}
	if len(claimable) == 0 {
		return result, nil
	}

	if dryRun {
		slog.Info("dry run, skipping execution", "tasks", len(claimable))
		return PhaseResult{Succeeded: 0}, nil
	}

	allocation, err := o.pool.AllocateBatch(len(claimable))
	if err != nil {
		return result, err
	}

	for i, candidate := range claimable {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		runner := fmt.Sprintf("runner-%d", i%runnerPoolSize+1)
		claimed, err := o.queue.Claim(candidate.ID, runner)
		if err != nil {
			if errors.Is(err, coord.ErrConflict) {
				continue // someone else took it, move on
			}
			result.fail(candidate.ID, err)
			continue
		}

		account := allocation[i]
		cost, err := o.runTask(ctx, claimed, runner, account)
		if err != nil {
			if errors.Is(err, coord.ErrBudgetExhausted) {
				return result, err
			}
			slog.Error("task failed", "task", claimed.ID, "account", account.Name, "error", err)
			result.fail(claimed.ID, err)
			continue
		}

		result.Succeeded++
		result.TotalCost += cost
	}

	err = o.updateState(func(s *State) {
		s.Phase = PhaseExecute
		s.Stages.Execution = true
		s.Metrics.TasksCompleted += result.Succeeded
		s.Metrics.TasksFailed += result.Failed
		s.Metrics.BudgetUsed += result.TotalCost
	})
	if err != nil {
		return result, err
	}

	o.phaseEvent(events.EventPhaseCompleted, "execute", map[string]any{
		"succeeded": result.Succeeded, "failed": result.Failed, "cost": result.TotalCost,
	})
	return result, nil
}

// runTask runs one claimed task through the delegate and settles the books:
// output submitted to the queue, cost tracked against the account.
func (o *Orchestrator) runTask(ctx context.Context, task tasks.Task, runner string, account accounts.Account) (float64, error) {
	completer, err := o.factory.ForCredential(account.Credential)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", coord.ErrDelegate, err)
	}

	res, err := completer.Complete(ctx, models.Request{
		System: fmt.Sprintf("You are worker %s in cluster %s. Produce a thorough, well-structured result.", runner, task.Cluster),
		Prompt: task.Description,
	})
	if err != nil {
		return 0, err
	}

	if _, err := o.queue.Submit(task.ID, runner, res.Text); err != nil {
		return 0, err
	}
	if _, err := o.pool.Track(account.Name, res.Cost); err != nil {
		return 0, err
	}
	return res.Cost, nil
}

// Converge drains the hierarchy: auto-create and execute level-1
// convergences, one meta per manifest domain, and the ultimate synthesis
// for the project. The master output is written next to the shared
// documents. Per-item failures are reported but do not stop later levels.
func (o *Orchestrator) Converge(ctx context.Context, manifest Manifest) (PhaseResult, error) {
	o.phaseEvent(events.EventPhaseStarted, "converge", nil)

	var result PhaseResult

	auto, err := o.engine.AutoConverge(false)
	if err != nil {
		return result, err
	}
	for cluster, msg := range auto.Failed {
		result.fail("cluster:"+cluster, errors.New(msg))
	}

	// Level 1: execute every ready cluster convergence.
	records, err := o.engine.List()
	if err != nil {
		return result, err
	}
	for _, rec := range records {
		if rec.Type != converge.TypeCluster || rec.Status != converge.StatusReady {
			continue
		}
		if err := o.executeConvergence(ctx, rec.ID, &result); err != nil {
			return result, err
		}
	}

	// Level 2: one meta per domain.
	var metaNames []string
	for _, domain := range manifest.Domains {
		var clusters []string
		for _, c := range domain.Clusters {
			clusters = append(clusters, c.Name)
		}
		rec, err := o.engine.Meta(domain.Name, clusters)
		if err != nil {
			slog.Error("meta convergence failed", "domain", domain.Name, "error", err)
			result.fail("meta:"+domain.Name, err)
			continue
		}
		if err := o.executeConvergence(ctx, rec.ID, &result); err != nil {
			return result, err
		}
		metaNames = append(metaNames, domain.Name)
	}

	// Level 3: the master synthesis.
	complete := false
	if len(metaNames) > 0 {
		rec, err := o.engine.Ultimate(manifest.Project, metaNames)
		if err != nil {
			result.fail("ultimate:"+manifest.Project, err)
		} else if err := o.executeConvergence(ctx, rec.ID, &result); err != nil {
			return result, err
		} else {
			done, err := o.engine.Get(rec.ID)
			if err == nil && done.Status == converge.StatusCompleted {
				complete = true
				path := filepath.Join(o.store.Dir(), MasterOutputFile)
				if err := os.WriteFile(path, []byte(done.Output), 0o644); err != nil {
					slog.Error("write master output", "path", path, "error", err)
				}
			}
		}
	}

	err = o.updateState(func(s *State) {
		s.Phase = PhaseConverge
		s.Stages.Convergence = true
		s.Stages.Complete = complete
		s.Metrics.ConvergencesCompleted += result.Succeeded
		s.Metrics.ConvergencesFailed += result.Failed
		s.Metrics.BudgetUsed += result.TotalCost
	})
	if err != nil {
		return result, err
	}

	o.phaseEvent(events.EventPhaseCompleted, "converge", map[string]any{
		"succeeded": result.Succeeded, "failed": result.Failed, "cost": result.TotalCost,
	})
	return result, nil
}

// executeConvergence runs one convergence on the greediest account. Budget
// exhaustion is fatal and returned; delegate failures leave the record
// ready and are collected.
func (o *Orchestrator) executeConvergence(ctx context.Context, id string, result *PhaseResult) error {
	account, err := o.pool.Optimal()
	if err != nil {
		return err // budget exhausted
	}

	rec, err := o.engine.Execute(ctx, id, account.Credential)
	if err != nil {
		slog.Error("convergence failed", "convergence", id, "error", err)
		result.fail("convergence:"+id, err)
		return nil
	}

	if _, err := o.pool.Track(account.Name, rec.Cost); err != nil {
		return err
	}
	result.Succeeded++
	result.TotalCost += rec.Cost
	return nil
}

// Run executes the full sequence: init, setup, execute, converge.
func (o *Orchestrator) Run(ctx context.Context, manifest Manifest, dryRun bool) (State, error) {
	if _, err := o.Init(); err != nil {
		return State{}, err
	}
	if _, err := o.Setup(manifest); err != nil {
		return State{}, err
	}
	if _, err := o.Execute(ctx, dryRun); err != nil {
		return State{}, err
	}
	if !dryRun {
		if _, err := o.Converge(ctx, manifest); err != nil {
			return State{}, err
		}
	}
	return o.State()
}
