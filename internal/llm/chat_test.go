package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingModel captures what the chain hands to the chat model
type recordingModel struct {
	reply    string
	err      error
	messages []*schema.Message
	options  *model.Options
}

func (r *recordingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	r.messages = input
	r.options = model.GetCommonOptions(&model.Options{}, opts...)
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.reply, nil), nil
}

func (r *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := r.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestChatCompleter_PassesPromptAndOptions(t *testing.T) {
	ctx := context.Background()
	fake := &recordingModel{reply: "  {\"ok\": true}\n"}
	completer, err := NewChatCompleter(ctx, fake)
	require.NoError(t, err)

	// braces in the prompt must reach the model untouched
	out, err := completer.Complete(ctx, Request{
		Model:       "judge-model",
		Prompt:      `Return {"status": "..."} for {query}`,
		Temperature: Temperature(0.3),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, schema.System, fake.messages[0].Role)
	assert.Equal(t, defaultSystemPrompt, fake.messages[0].Content)
	assert.Equal(t, `Return {"status": "..."} for {query}`, fake.messages[1].Content)

	require.NotNil(t, fake.options.Model)
	assert.Equal(t, "judge-model", *fake.options.Model)
	require.NotNil(t, fake.options.Temperature)
	assert.InDelta(t, 0.3, *fake.options.Temperature, 1e-6)
}

func TestChatCompleter_WrapsUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	completer, err := NewChatCompleter(ctx, &recordingModel{err: errors.New("rate limited")})
	require.NoError(t, err)

	_, err = completer.Complete(ctx, Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrUpstreamCall)
	assert.ErrorContains(t, err, "rate limited")
}

func TestNewChatModel_UnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), ProviderConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewChatModel_OpenAICompatible(t *testing.T) {
	m, err := NewChatModel(context.Background(), ProviderConfig{
		Provider: ProviderOpenAI,
		APIKey:   "test",
		BaseURL:  "http://127.0.0.1:1/v1",
		Model:    "m",
	})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
