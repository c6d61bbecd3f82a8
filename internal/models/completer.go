// Package models provides the completion delegate: the external capability
// that takes a prompt and returns generated text plus a token and cost
// accounting. The coordinator never sees how the completion is produced;
// it only bills the returned cost against the account pool.
package models

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Pricing per thousand tokens, in credits.
const (
	inputRatePerK  = 0.003
	outputRatePerK = 0.015
)

// Cost converts a token accounting into credits.
func Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*inputRatePerK + float64(outputTokens)*outputRatePerK) / 1000
}

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Usage is the token accounting returned with a completion.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Result is the delegate's answer: generated text plus its price.
type Result struct {
	Text  string  `json:"text"`
	Usage Usage   `json:"usage"`
	Cost  float64 `json:"cost"`
}

// Completer is the external completion capability.
type Completer interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// chatCompleter adapts any chat model into a Completer.
type chatCompleter struct {
	model model.BaseChatModel
}

// NewCompleter wraps a chat model as a Completer.
func NewCompleter(m model.BaseChatModel) Completer {
	return &chatCompleter{model: m}
}

func (c *chatCompleter) Complete(ctx context.Context, req Request) (Result, error) {
	var messages []*schema.Message
	if req.System != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.model.Generate(ctx, messages, opts...)
	if err != nil {
		return Result{}, delegateError(err)
	}

	res := Result{Text: resp.Content}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		res.Usage = Usage{
			InputTokens:  resp.ResponseMeta.Usage.PromptTokens,
			OutputTokens: resp.ResponseMeta.Usage.CompletionTokens,
		}
	}
	res.Cost = Cost(res.Usage.InputTokens, res.Usage.OutputTokens)
	return res, nil
}
