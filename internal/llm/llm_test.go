package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestBedrockClient_Complete(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: ` {"annual_revenue": 2000000} `}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
	}}
	client := NewBedrockClient(fake, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), Request{
		System: []string{"extraia dados"},
		Messages: []Message{
			{Role: RoleSystem, Content: "contexto do site"},
			{Role: RoleUser, Content: "faturamos 2 milhões"},
			{Role: RoleAssistant, Content: "   "},
		},
		Temperature: 0,
		MaxTokens:   256,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"annual_revenue": 2000000}`, resp.Text)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, fake.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(fake.input.ModelId))
	assert.Len(t, fake.input.System, 2, "system messages are folded into system blocks")
	assert.Len(t, fake.input.Messages, 1, "blank messages are skipped")
	require.NotNil(t, fake.input.InferenceConfig)
	assert.Equal(t, int32(256), aws.ToInt32(fake.input.InferenceConfig.MaxTokens))
}

func TestBedrockClient_Errors(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{}, "")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	require.Error(t, err, "model id is required")

	client = NewBedrockClient(&fakeConverse{err: errors.New("throttled")}, "m")
	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	require.ErrorContains(t, err, "throttled")

	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	require.ErrorContains(t, err, "unsupported role")
}

func TestOpenAIClient_Complete(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Olá! "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("sk-test", srv.URL, "gpt-4o-mini")
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		System:      []string{"você é um SDR"},
		Messages:    []Message{{Role: RoleUser, Content: "oi"}},
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(" ", "", "")
	require.Error(t, err)
}

type stubClient struct {
	resp  Response
	err   error
	calls int
	model string
}

func (s *stubClient) Complete(_ context.Context, req Request) (Response, error) {
	s.calls++
	s.model = req.Model
	return s.resp, s.err
}

func TestFallbackClient(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	secondary := &stubClient{resp: Response{Text: "ok"}}
	client := NewFallbackClient(primary, secondary, nil)

	resp, err := client.Complete(context.Background(), Request{Model: "gemini-2.5-flash"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, secondary.calls)
	assert.Empty(t, secondary.model, "fallback uses its own model")

	passthrough := NewFallbackClient(&stubClient{err: errors.New("down")}, nil, nil)
	_, err = passthrough.Complete(context.Background(), Request{})
	require.ErrorContains(t, err, "down")

	bothDown := NewFallbackClient(&stubClient{err: errors.New("a")}, &stubClient{err: errors.New("b")}, nil)
	_, err = bothDown.Complete(context.Background(), Request{})
	require.ErrorContains(t, err, "b")
}
