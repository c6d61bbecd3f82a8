package converge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/models"
	"github.com/triad-sh/triad/internal/store"
	"github.com/triad-sh/triad/internal/tasks"
)

// DefaultFanIn is the number of outputs a cluster convergence expects.
const DefaultFanIn = 3

const synthesisMaxTokens = 8192

// CompleterFactory builds a Completer billed to a credential.
type CompleterFactory interface {
	ForCredential(credential string) (models.Completer, error)
}

// Engine creates and executes convergence records.
type Engine struct {
	store    *store.Store
	queue    *tasks.Queue
	factory  CompleterFactory
	bus      *events.Bus // nil-safe
	fanIn    int
	strategy Strategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithFanIn overrides the expected outputs per cluster.
func WithFanIn(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanIn = n
		}
	}
}

// WithDefaultStrategy sets the strategy used when callers pass none.
func WithDefaultStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s.Valid() {
			e.strategy = s
		}
	}
}

// NewEngine creates an Engine over the shared store.
func NewEngine(s *store.Store, queue *tasks.Queue, factory CompleterFactory, bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		queue:    queue,
		factory:  factory,
		bus:      bus,
		fanIn:    DefaultFanIn,
		strategy: StrategyComprehensive,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cluster creates a level-1 convergence from the outputs sharing one cluster
// key. A group with no outputs fails with NotFound and nothing is created;
// a group whose size differs from the fan-in only warns, matching the
// lenient behavior callers rely on when a worker dropped out.
func (e *Engine) Cluster(clusterName string, strategy Strategy) (Record, error) {
	if clusterName == "" {
		return Record{}, coord.MissingField("name")
	}
	if strategy == "" {
		strategy = e.strategy
	}
	if !strategy.Valid() {
		return Record{}, &coord.ValidationError{Field: "strategy", Reason: "must be comprehensive, executive, technical, or narrative"}
	}

	outputs, err := e.queue.Outputs()
	if err != nil {
		return Record{}, err
	}
	var group []tasks.Output
	for _, o := range outputs {
		if o.Cluster == clusterName {
			group = append(group, o)
		}
	}
	if len(group) == 0 {
		return Record{}, fmt.Errorf("no outputs for cluster %s: %w", clusterName, coord.ErrNotFound)
	}
	if len(group) != e.fanIn {
		slog.Warn("cluster size differs from fan-in",
			"cluster", clusterName, "outputs", len(group), "fanIn", e.fanIn)
	}

	sort.SliceStable(group, func(i, j int) bool {
		return group[i].WorkerID < group[j].WorkerID
	})

	refs := make([]string, len(group))
	for i, o := range group {
		refs[i] = o.TaskID
	}

	rec := Record{
		ID:        uuid.NewString(),
		Type:      TypeCluster,
		Level:     LevelCluster,
		GroupKey:  clusterName,
		InputRefs: refs,
		Strategy:  strategy,
		Prompt:    clusterPrompt(strategy, clusterName, group),
		Status:    StatusReady,
		CreatedAt: time.Now(),
	}
	if err := e.append(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Meta creates a level-2 convergence from the level-1 records of the named
// clusters. Fails with NotFound if none of the clusters has a convergence.
func (e *Engine) Meta(metaName string, clusterNames []string) (Record, error) {
	if metaName == "" {
		return Record{}, coord.MissingField("name")
	}
	if len(clusterNames) == 0 {
		return Record{}, coord.MissingField("clusters")
	}

	all, err := e.List()
	if err != nil {
		return Record{}, err
	}
	var inputs []Record
	for _, c := range all {
		if c.Type == TypeCluster && containsString(clusterNames, c.GroupKey) {
			inputs = append(inputs, c)
		}
	}
	if len(inputs) == 0 {
		return Record{}, fmt.Errorf("no cluster convergences for %s: %w",
			strings.Join(clusterNames, ", "), coord.ErrNotFound)
	}

	refs := make([]string, len(inputs))
	for i, c := range inputs {
		refs[i] = c.ID
	}

	rec := Record{
		ID:        uuid.NewString(),
		Type:      TypeMeta,
		Level:     LevelMeta,
		GroupKey:  metaName,
		InputRefs: refs,
		Clusters:  clusterNames,
		Prompt:    metaPrompt(metaName, inputs),
		Status:    StatusReady,
		CreatedAt: time.Now(),
	}
	if err := e.append(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Ultimate creates the level-3 convergence from the named meta records.
func (e *Engine) Ultimate(projectName string, metaNames []string) (Record, error) {
	if projectName == "" {
		return Record{}, coord.MissingField("name")
	}
	if len(metaNames) == 0 {
		return Record{}, coord.MissingField("metas")
	}

	all, err := e.List()
	if err != nil {
		return Record{}, err
	}
	var inputs []Record
	for _, c := range all {
		if c.Type == TypeMeta && containsString(metaNames, c.GroupKey) {
			inputs = append(inputs, c)
		}
	}
	if len(inputs) == 0 {
		return Record{}, fmt.Errorf("no meta convergences for %s: %w",
			strings.Join(metaNames, ", "), coord.ErrNotFound)
	}

	refs := make([]string, len(inputs))
	for i, c := range inputs {
		refs[i] = c.ID
	}

	rec := Record{
		ID:        uuid.NewString(),
		Type:      TypeUltimate,
		Level:     LevelUltimate,
		GroupKey:  projectName,
		InputRefs: refs,
		Metas:     metaNames,
		Prompt:    ultimatePrompt(projectName, inputs),
		Status:    StatusReady,
		CreatedAt: time.Now(),
	}
	if err := e.append(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Execute runs a ready convergence through the completion delegate billed to
// the given credential. Already-completed records are returned untouched, so
// retrying the same id never double-spends. A delegate failure leaves the
// record in ready.
func (e *Engine) Execute(ctx context.Context, convergenceID, credential string) (Record, error) {
	rec, err := e.Get(convergenceID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status == StatusCompleted {
		return rec, nil
	}

	completer, err := e.factory.ForCredential(credential)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", coord.ErrDelegate, err)
	}

	res, err := completer.Complete(ctx, models.Request{
		System:    fmt.Sprintf("You are a %s-synthesizer for group %s.", rec.Type, rec.GroupKey),
		Prompt:    rec.Prompt,
		MaxTokens: synthesisMaxTokens,
	})
	if err != nil {
		return Record{}, fmt.Errorf("execute convergence %s: %w", convergenceID, err)
	}

	now := time.Now()
	rec.Status = StatusCompleted
	rec.Output = res.Text
	rec.Cost = res.Cost
	rec.CompletedAt = &now

	if err := e.update(rec); err != nil {
		return Record{}, err
	}

	if e.bus != nil {
		e.bus.Publish(events.NewEvent(events.EventConvergenceCompleted, "", map[string]any{
			"convergence": rec.ID, "type": rec.Type, "cost": rec.Cost,
		}))
	}
	return rec, nil
}

// AutoResult reports what one AutoConverge pass did.
type AutoResult struct {
	ReadyClusters []string          `json:"readyClusters"`
	Created       []string          `json:"created,omitempty"`
	Failed        map[string]string `json:"failed,omitempty"`
	DryRun        bool              `json:"dryRun,omitempty"`
}

// AutoConverge scans the output log, groups by cluster, and creates a
// level-1 convergence for every group that reached the fan-in count and has
// no convergence yet. Failures on one cluster do not stop the rest. With
// dryRun, only reports which clusters would converge.
func (e *Engine) AutoConverge(dryRun bool) (AutoResult, error) {
	groups, err := e.queue.OutputsByCluster()
	if err != nil {
		return AutoResult{}, err
	}
	existing, err := e.List()
	if err != nil {
		return AutoResult{}, err
	}

	converged := map[string]bool{}
	for _, c := range existing {
		if c.Type == TypeCluster {
			converged[c.GroupKey] = true
		}
	}

	var ready []string
	for cluster, outputs := range groups {
		if len(outputs) >= e.fanIn && !converged[cluster] {
			ready = append(ready, cluster)
		}
	}
	sort.Strings(ready)

	result := AutoResult{ReadyClusters: ready, DryRun: dryRun}
	if dryRun {
		return result, nil
	}

	result.Failed = map[string]string{}
	for _, cluster := range ready {
		rec, err := e.Cluster(cluster, e.strategy)
		if err != nil {
			result.Failed[cluster] = err.Error()
			continue
		}
		result.Created = append(result.Created, rec.ID)
		if e.bus != nil {
			e.bus.Publish(events.NewEvent(events.EventConvergenceReady, "", map[string]any{
				"convergence": rec.ID, "cluster": cluster,
			}))
		}
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	return result, nil
}

// List returns every convergence record.
func (e *Engine) List() ([]Record, error) {
	e.store.RLock()
	defer e.store.RUnlock()
	return e.load()
}

// Get returns one convergence by id.
func (e *Engine) Get(convergenceID string) (Record, error) {
	all, err := e.List()
	if err != nil {
		return Record{}, err
	}
	for _, c := range all {
		if c.ID == convergenceID {
			return c, nil
		}
	}
	return Record{}, fmt.Errorf("convergence %s: %w", convergenceID, coord.ErrNotFound)
}

// Status aggregates the convergence log.
func (e *Engine) Status() (StatusSummary, error) {
	all, err := e.List()
	if err != nil {
		return StatusSummary{}, err
	}

	var s StatusSummary
	s.Total = len(all)
	for _, c := range all {
		switch c.Type {
		case TypeCluster:
			s.Clusters++
		case TypeMeta:
			s.Metas++
		case TypeUltimate:
			s.Ultimates++
		}
		switch c.Status {
		case StatusReady:
			s.Ready++
		case StatusCompleted:
			s.Completed++
		}
	}
	return s, nil
}

func (e *Engine) load() ([]Record, error) {
	var all []Record
	if err := e.store.Read(store.DocConvergences, &all); err != nil {
		return nil, fmt.Errorf("read convergences: %w", err)
	}
	return all, nil
}

func (e *Engine) append(rec Record) error {
	if err := store.Append(e.store, store.DocConvergences, rec); err != nil {
		return fmt.Errorf("save convergence: %w", err)
	}
	return nil
}

func (e *Engine) update(rec Record) error {
	e.store.Lock()
	defer e.store.Unlock()

	all, err := e.load()
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].ID == rec.ID {
			all[i] = rec
			if err := e.store.Write(store.DocConvergences, all); err != nil {
				return fmt.Errorf("update convergence: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("convergence %s: %w", rec.ID, coord.ErrNotFound)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
