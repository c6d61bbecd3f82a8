package models

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/triad-sh/triad/internal/coord"
)

func TestCostFormula(t *testing.T) {
	got := Cost(1000, 1000)
	want := 0.018
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Cost(1000, 1000) = %v, want %v", got, want)
	}
	if Cost(0, 0) != 0 {
		t.Fatal("zero tokens should cost nothing")
	}
}

func TestMockCompleter(t *testing.T) {
	m := NewMock()
	m.InputTokens = 2000
	m.OutputTokens = 1000

	res, err := m.Complete(context.Background(), Request{Prompt: "summarize"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text == "" {
		t.Fatal("empty completion")
	}
	want := Cost(2000, 1000)
	if res.Cost != want {
		t.Fatalf("cost = %v, want %v", res.Cost, want)
	}
	if len(m.Calls()) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(m.Calls()))
	}
}

func TestMockCompleterError(t *testing.T) {
	m := NewMock()
	m.Err = errors.New("429 too many requests")

	_, err := m.Complete(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, coord.ErrDelegate) {
		t.Fatalf("expected delegate error, got %v", err)
	}
}

type fakeChatModel struct {
	lastMessages []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, messages []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.lastMessages = messages
	return &schema.Message{
		Role:    schema.Assistant,
		Content: "answer",
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 20},
		},
	}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestChatCompleterMapsMessagesAndUsage(t *testing.T) {
	fake := &fakeChatModel{}
	c := NewCompleter(fake)

	res, err := c.Complete(context.Background(), Request{System: "you are a synthesizer", Prompt: "merge these"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "answer" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Usage.InputTokens != 10 || res.Usage.OutputTokens != 20 {
		t.Fatalf("usage = %+v", res.Usage)
	}
	if res.Cost != Cost(10, 20) {
		t.Fatalf("cost = %v", res.Cost)
	}

	if len(fake.lastMessages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(fake.lastMessages))
	}
	if fake.lastMessages[0].Role != schema.System || fake.lastMessages[1].Role != schema.User {
		t.Fatalf("unexpected roles: %v, %v", fake.lastMessages[0].Role, fake.lastMessages[1].Role)
	}
}

func TestDelegateErrorClassification(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"401 unauthorized", "authentication failed"},
		{"rate limit exceeded", "rate limited"},
		{"dial tcp: connection refused", "connection error"},
		{"something else", "delegate failure"},
	}
	for _, tc := range cases {
		err := delegateError(errors.New(tc.in))
		if !errors.Is(err, coord.ErrDelegate) {
			t.Fatalf("%q: not a delegate error: %v", tc.in, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%q: expected %q in %q", tc.in, tc.want, err.Error())
		}
	}
}
