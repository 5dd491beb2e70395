package bedrock

import (
	"context"
	"encoding/json"
	"testing"

	"nutrilog/extract"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBedrockClient implements bedrockRuntimeClient for testing
type mockBedrockClient struct {
	response *bedrockruntime.ConverseOutput
	err      error
	input    *bedrockruntime.ConverseInput
}

func (m *mockBedrockClient) Converse(ctx context.Context, input *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = input
	return m.response, m.err
}

func toolUseOutput(name string, input any) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		StopReason: types.StopReasonToolUse,
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Content: []types.ContentBlock{
					&types.ContentBlockMemberToolUse{
						Value: types.ToolUseBlock{
							ToolUseId: aws.String("tool-1"),
							Name:      aws.String(name),
							Input:     document.NewLazyDocument(input),
						},
					},
				},
			},
		},
		Usage:   &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(20)},
		Metrics: &types.ConverseMetrics{LatencyMs: aws.Int64(100)},
	}
}

func textOutput(stop types.StopReason, texts ...string) *bedrockruntime.ConverseOutput {
	var blocks []types.ContentBlock
	for _, t := range texts {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: t})
	}
	return &bedrockruntime.ConverseOutput{
		StopReason: stop,
		Output:     &types.ConverseOutputMemberMessage{Value: types.Message{Content: blocks}},
	}
}

func TestNewLLMClient(t *testing.T) {
	tests := []struct {
		name     string
		input    LLMOptions
		expected LLMOptions
	}{
		{
			name:  "empty options uses defaults",
			input: LLMOptions{},
			expected: LLMOptions{
				ModelID:     defaultModelID,
				MaxTokens:   defaultMaxTokens,
				Temperature: defaultTemperature,
				TopP:        defaultTopP,
			},
		},
		{
			name: "custom options preserved",
			input: LLMOptions{
				ModelID:     "custom-model",
				MaxTokens:   2048,
				Temperature: 0.5,
				TopP:        0.8,
			},
			expected: LLMOptions{
				ModelID:     "custom-model",
				MaxTokens:   2048,
				Temperature: 0.5,
				TopP:        0.8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &mockBedrockClient{}
			client := NewLLMClient(mockClient, tt.input)

			assert.Equal(t, tt.expected, client.opts)
			assert.Equal(t, mockClient, client.brc)
		})
	}
}

func TestLLMClient_InvokeForcesTool(t *testing.T) {
	mockClient := &mockBedrockClient{
		response: toolUseOutput(extract.RecordFoodsTool, map[string]any{
			"items": []any{map[string]any{"name": "rice", "quantity": 150, "unit": "gram"}},
		}),
	}

	client := NewLLMClient(mockClient, LLMOptions{})
	resp, err := client.Invoke(context.Background(), Prompt{System: "sys", User: "150g rice", Tool: extract.RecordFoods()})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.ToolInput, &got))
	assert.Len(t, got["items"], 1)

	require.NotNil(t, mockClient.input)
	choice, ok := mockClient.input.ToolConfig.ToolChoice.(*types.ToolChoiceMemberTool)
	require.True(t, ok)
	assert.Equal(t, extract.RecordFoodsTool, aws.ToString(choice.Value.Name))
	assert.Len(t, mockClient.input.ToolConfig.Tools, 1)
}

func TestLLMClient_InvokeErrors(t *testing.T) {
	tests := []struct {
		name          string
		mockResponse  *bedrockruntime.ConverseOutput
		mockError     error
		expectedError string
	}{
		{
			name:          "max tokens",
			mockResponse:  textOutput(types.StopReasonMaxTokens),
			expectedError: "model hit MaxTokens limit",
		},
		{
			name:          "safety filter",
			mockResponse:  textOutput(types.StopReasonContentFiltered),
			expectedError: "blocked by Bedrock safety filters",
		},
		{
			name:          "bedrock API error",
			mockError:     assert.AnError,
			expectedError: assert.AnError.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewLLMClient(&mockBedrockClient{response: tt.mockResponse, err: tt.mockError}, LLMOptions{})
			_, err := client.Invoke(context.Background(), Prompt{Tool: extract.RecordFoods()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestLLMClient_InvokeTextFallback(t *testing.T) {
	client := NewLLMClient(&mockBedrockClient{response: textOutput(types.StopReasonEndTurn, "[]")}, LLMOptions{})

	resp, err := client.Invoke(context.Background(), Prompt{Tool: extract.RecordFoods()})
	require.NoError(t, err)
	assert.Empty(t, resp.ToolInput)
	assert.Equal(t, "[]", resp.Text)
}

func TestToolInputFromOutputIgnoresOtherTools(t *testing.T) {
	_, ok, err := toolInputFromOutput(toolUseOutput("something_else", map[string]any{}), extract.RecordFoodsTool)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTextFromOutput(t *testing.T) {
	assert.Equal(t, "", textFromOutput(nil))
	assert.Equal(t, "Hello\nworld", textFromOutput(textOutput(types.StopReasonEndTurn, "Hello", "", "world")))
}

func TestBuildToolSpec(t *testing.T) {
	spec, err := buildToolSpec(extract.ReportNutrition())
	require.NoError(t, err)
	assert.Equal(t, extract.ReportNutritionTool, aws.ToString(spec.Name))
	assert.NotNil(t, spec.InputSchema)
}
