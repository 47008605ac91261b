package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
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

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(14)},
	}
}

func TestBedrockClientComplete(t *testing.T) {
	api := &fakeConverse{out: textOutput("  hello  ")}
	client := NewBedrockClient(api, "amazon.nova-lite-v1:0")

	resp, err := client.Complete(context.Background(), Request{
		System: []string{"be brief", " "},
		Messages: []Message{
			{Role: RoleSystem, Content: "extra rule"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: ""},
			{Role: RoleUser, Content: "book me"},
		},
		MaxTokens:   200,
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "hello" || resp.Usage.TotalTokens != 14 || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if aws.ToString(api.input.ModelId) != "amazon.nova-lite-v1:0" {
		t.Fatalf("expected default model, got %q", aws.ToString(api.input.ModelId))
	}
	if len(api.input.System) != 2 || len(api.input.Messages) != 3 {
		t.Fatalf("expected 2 system blocks and 3 messages, got %d and %d", len(api.input.System), len(api.input.Messages))
	}
	if api.input.InferenceConfig == nil || api.input.InferenceConfig.Temperature != nil {
		t.Fatalf("negative temperature must be omitted, got %+v", api.input.InferenceConfig)
	}
}

func TestBedrockClientErrors(t *testing.T) {
	if _, err := NewBedrockClient(&fakeConverse{}, "").Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected missing model error")
	}
	api := &fakeConverse{err: errors.New("throttled")}
	if _, err := NewBedrockClient(api, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Fatalf("expected converse error")
	}
	if _, err := NewBedrockClient(&fakeConverse{out: textOutput("x")}, "m").Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}}); err == nil {
		t.Fatalf("expected unsupported role error")
	}
	if _, err := NewBedrockClient(&fakeConverse{out: textOutput("   ")}, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Fatalf("expected empty text error")
	}
}

type fakeInvoke struct {
	bodies [][]byte
	out    []byte
}

func (f *fakeInvoke) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.bodies = append(f.bodies, params.Body)
	return &bedrockruntime.InvokeModelOutput{Body: f.out}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	api := &fakeInvoke{out: []byte(`{"embedding":[0.5,1.5]}`)}
	vecs, err := NewBedrockEmbedder(api, "amazon.titan-embed-text-v2:0").Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 1.5 {
		t.Fatalf("unexpected vectors %v", vecs)
	}
	if string(api.bodies[0]) != `{"inputText":"a"}` {
		t.Fatalf("unexpected payload %s", api.bodies[0])
	}

	api.out = []byte(`{"embedding":[]}`)
	if _, err := NewBedrockEmbedder(api, "m").Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatalf("expected empty embedding error")
	}
}
