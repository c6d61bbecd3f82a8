package models

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/triad-sh/triad/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-6"
	defaultAnthropicMaxTokens = 8192
)

// AnthropicChatModel is the Anthropic-backed chat model. The credential is
// fixed per instance: the account router builds one model per billed call.
type AnthropicChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int
}

// NewAnthropic creates an Anthropic chat model billed to the given credential.
func NewAnthropic(cfg config.ProviderConfig, credential string) (*AnthropicChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(credential)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout.Duration() > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout.Duration()))
	} else {
		opts = append(opts, option.WithRequestTimeout(120*time.Second))
	}

	return &AnthropicChatModel{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einomodel.Option) (outMsg *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, "Anthropic", components.ComponentOfChatModel)

	cbInput := &einomodel.CallbackInput{
		Messages: messages,
		Config:   &einomodel.Config{Model: m.modelName},
	}
	ctx = callbacks.OnStart(ctx, cbInput)
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	params := m.buildParams(messages, opts)
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	outMsg = convertResponse(resp)

	callbacks.OnEnd(ctx, &einomodel.CallbackOutput{
		Message: outMsg,
		Config:  cbInput.Config,
		TokenUsage: &einomodel.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	})

	return outMsg, nil
}

// Stream satisfies model.BaseChatModel. Synthesis calls are one-shot, so the
// stream carries the single generated message.
func (m *AnthropicChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *AnthropicChatModel) buildParams(messages []*schema.Message, opts []einomodel.Option) anthropic.MessageNewParams {
	options := einomodel.GetCommonOptions(&einomodel.Options{
		MaxTokens: &m.maxTokens,
	}, opts...)

	maxTokens := m.maxTokens
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		maxTokens = *options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(maxTokens),
	}

	var anthropicMsgs []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{
				Text: msg.Content,
			})
		case schema.Assistant:
			anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	params.Messages = anthropicMsgs

	return params
}

func convertResponse(resp *anthropic.Message) *schema.Message {
	result := &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
			},
		},
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}

	switch resp.StopReason {
	case anthropic.StopReasonMaxTokens:
		result.ResponseMeta.FinishReason = "length"
	default:
		result.ResponseMeta.FinishReason = "stop"
	}

	return result
}
