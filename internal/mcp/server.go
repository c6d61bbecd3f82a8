package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/triad-sh/triad/internal/coordinator"
	"github.com/triad-sh/triad/internal/tasks"
)

// handler executes one tool call. The returned value is serialized to JSON
// in the tool result.
type handler func(ctx context.Context, args json.RawMessage) (any, error)

type tool struct {
	spec toolSpec
	run  handler
}

// binding maps tool names onto coordinator operations.
type binding struct {
	c *coordinator.Coordinator
}

// NewServer creates an MCP server exposing the triad coordination tools.
func NewServer(c *coordinator.Coordinator) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "triad",
		Version: "0.1.0",
	}, nil)

	b := &binding{c: c}
	for _, t := range b.tools() {
		run := t.run
		name := t.spec.Name

		server.AddTool(toolSpecToMCPTool(t.spec), func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			result, err := run(ctx, json.RawMessage(req.Params.Arguments))
			if err != nil {
				slog.Debug("mcp tool error", "tool", name, "error", err)
				return &mcpsdk.CallToolResult{
					IsError: true,
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				}, nil
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return nil, err
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
			}, nil
		})

		slog.Debug("mcp tool registered", "tool", name)
	}

	return server
}

func (b *binding) tools() []tool {
	return []tool{
		{
			spec: toolSpec{
				Name:        "triad_status",
				Description: "Snapshot of workers, messages, tasks, and outputs",
			},
			run: b.status,
		},
		{
			spec: toolSpec{
				Name:        "triad_send_message",
				Description: "Send a message to another worker",
				Parameters: map[string]paramSpec{
					"to":      {Type: "string", Description: "Target worker id", Required: true},
					"message": {Type: "string", Description: "Message body", Required: true},
					"from":    {Type: "string", Description: "Sender worker id"},
				},
			},
			run: b.sendMessage,
		},
		{
			spec: toolSpec{
				Name:        "triad_receive_messages",
				Description: "Fetch unread messages for a worker and mark them read",
				Parameters: map[string]paramSpec{
					"workerId": {Type: "string", Description: "Worker id", Required: true},
				},
			},
			run: b.receiveMessages,
		},
		{
			spec: toolSpec{
				Name:        "triad_broadcast",
				Description: "Send a message to every worker",
				Parameters: map[string]paramSpec{
					"message": {Type: "string", Description: "Message body", Required: true},
					"from":    {Type: "string", Description: "Sender worker id"},
				},
			},
			run: b.broadcast,
		},
		{
			spec: toolSpec{
				Name:        "triad_assign_task",
				Description: "Add a task to the shared queue",
				Parameters: map[string]paramSpec{
					"task":       {Type: "string", Description: "Task description", Required: true},
					"assignedTo": {Type: "string", Description: "Worker id, or 'any'"},
					"priority":   {Type: "string", Description: "Task priority", Enum: []string{"urgent", "high", "normal", "low"}},
				},
			},
			run: b.assignTask,
		},
		{
			spec: toolSpec{
				Name:        "triad_claim_task",
				Description: "Claim the highest-priority available task",
				Parameters: map[string]paramSpec{
					"workerId": {Type: "string", Description: "Worker id", Required: true},
				},
			},
			run: b.claimTask,
		},
		{
			spec: toolSpec{
				Name:        "triad_submit_output",
				Description: "Submit the output of a claimed task",
				Parameters: map[string]paramSpec{
					"taskId":   {Type: "string", Description: "Task id", Required: true},
					"output":   {Type: "string", Description: "Task result", Required: true},
					"workerId": {Type: "string", Description: "Worker id", Required: true},
				},
			},
			run: b.submitOutput,
		},
		{
			spec: toolSpec{
				Name:        "triad_merge_outputs",
				Description: "Combine every submitted output into one report",
				Parameters: map[string]paramSpec{
					"projectName": {Type: "string", Description: "Project name for the report"},
				},
			},
			run: b.mergeOutputs,
		},
		{
			spec: toolSpec{
				Name:        "triad_wake_instance",
				Description: "Send a wake signal to an idle worker",
				Parameters: map[string]paramSpec{
					"workerId": {Type: "string", Description: "Worker id", Required: true},
					"reason":   {Type: "string", Description: "Why the worker is being woken"},
				},
			},
			run: b.wakeInstance,
		},
	}
}

func decodeArgs(args json.RawMessage, out any) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, out)
}

func (b *binding) status(ctx context.Context, args json.RawMessage) (any, error) {
	return b.c.Status()
}

func (b *binding) sendMessage(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		To      string `json:"to"`
		Message string `json:"message"`
		From    string `json:"from"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Mailbox.Send(p.To, p.Message, p.From)
}

func (b *binding) receiveMessages(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		WorkerID string `json:"workerId"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Mailbox.Receive(p.WorkerID)
}

func (b *binding) broadcast(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Message string `json:"message"`
		From    string `json:"from"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Mailbox.SendBroadcast(p.Message, p.From)
}

func (b *binding) assignTask(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Task       string `json:"task"`
		AssignedTo string `json:"assignedTo"`
		Priority   string `json:"priority"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Queue.Enqueue(p.Task, p.AssignedTo, tasks.Priority(p.Priority))
}

func (b *binding) claimTask(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		WorkerID string `json:"workerId"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Queue.ClaimNext(p.WorkerID)
}

func (b *binding) submitOutput(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		TaskID   string `json:"taskId"`
		Output   string `json:"output"`
		WorkerID string `json:"workerId"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Queue.Submit(p.TaskID, p.WorkerID, p.Output)
}

func (b *binding) mergeOutputs(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		ProjectName string `json:"projectName"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.MergeOutputs(p.ProjectName)
}

func (b *binding) wakeInstance(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		WorkerID string `json:"workerId"`
		Reason   string `json:"reason"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return b.c.Mailbox.Wake(p.WorkerID, p.Reason, "mcp")
}
