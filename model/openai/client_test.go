package openai_test

import (
	"context"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/wealthdesk/agentflow/model"
	openaimodel "github.com/wealthdesk/agentflow/model/openai"
)

type mockChatClient struct {
	captured sdk.ChatCompletionNewParams
	response *sdk.ChatCompletion
	err      error
}

func (m *mockChatClient) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	m.captured = body
	return m.response, m.err
}

func TestClientComplete(t *testing.T) {
	mock := &mockChatClient{}
	client, err := openaimodel.New(mock, openaimodel.Options{DefaultModel: "gpt-4o", MaxTokens: 256})
	require.NoError(t, err)

	mock.response = &sdk.ChatCompletion{
		Model: "gpt-4o",
		Choices: []sdk.ChatCompletionChoice{
			{
				FinishReason: "stop",
				Message: sdk.ChatCompletionMessage{
					Role:    "assistant",
					Content: `{"task_status":"completed","reasoning":"done"}`,
				},
			},
		},
		Usage: sdk.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	resp, err := client.Complete(context.Background(), &model.Request{
		System:      "You are the advisor agent.",
		Messages:    []model.Message{{Role: model.RoleUser, Content: "send the form"}},
		Temperature: 0.3,
	})
	require.NoError(t, err)
	require.Equal(t, `{"task_status":"completed","reasoning":"done"}`, resp.Text)
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)

	req := mock.captured
	require.Equal(t, sdk.ChatModel("gpt-4o"), req.Model)
	// System prompt travels as the leading message.
	require.Len(t, req.Messages, 2)
	require.Equal(t, int64(256), req.MaxCompletionTokens.Value)
	require.Equal(t, 0.3, req.Temperature.Value)
}

func TestClientCompleteNoChoices(t *testing.T) {
	mock := &mockChatClient{response: &sdk.ChatCompletion{}}
	client, err := openaimodel.New(mock, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.ErrorContains(t, err, "no choices")
}

func TestClientCompleteRequiresMessages(t *testing.T) {
	client, err := openaimodel.New(&mockChatClient{}, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &model.Request{})
	require.ErrorContains(t, err, "messages are required")
}

func TestNewValidation(t *testing.T) {
	_, err := openaimodel.New(nil, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.Error(t, err)

	_, err = openaimodel.New(&mockChatClient{}, openaimodel.Options{})
	require.Error(t, err)
}
