package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", nil)
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func stubModels() Models {
	client := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: "{}"}, nil
	})
	return Models{Client: client, Primary: "stub"}
}

func TestBuildRedisClientDisabled(t *testing.T) {
	if c := BuildRedisClient(context.Background(), nil, quietLogger(), true); c != nil {
		t.Fatalf("expected nil client for nil config")
	}
	if c := BuildRedisClient(context.Background(), &appconfig.Config{}, quietLogger(), true); c != nil {
		t.Fatalf("expected nil client without an address")
	}
}

func TestBuildRedisClientVerifiesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	c := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), true)
	if c == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = c.Close()

	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if c := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: addr}, quietLogger(), true); c != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestConnectPostgresEmptyURL(t *testing.T) {
	pg, err := ConnectPostgres(context.Background(), "  ", quietLogger())
	if err != nil || pg != nil {
		t.Fatalf("expected nil, nil for empty url, got %v, %v", pg, err)
	}
}

func TestBuildStoresFallsBackToMemory(t *testing.T) {
	s := BuildStores(&appconfig.Config{}, nil, nil, quietLogger())
	if _, ok := s.Records.(*conversation.MemoryRecordStore); !ok {
		t.Fatalf("expected memory record store, got %T", s.Records)
	}
	if _, ok := s.Transcript.(*conversation.MemoryTranscriptStore); !ok {
		t.Fatalf("expected memory transcript, got %T", s.Transcript)
	}
	if _, ok := s.Deduper.(*conversation.MemoryMessageDeduper); !ok {
		t.Fatalf("expected memory deduper, got %T", s.Deduper)
	}
	if s.Turns() != nil {
		t.Fatalf("expected no turn lister without postgres")
	}
}

func TestBuildStoresUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), RecordTTL: time.Hour}
	client := BuildRedisClient(context.Background(), cfg, quietLogger(), false)
	defer client.Close()

	s := BuildStores(cfg, client, nil, quietLogger())
	if _, ok := s.Records.(*conversation.RedisRecordStore); !ok {
		t.Fatalf("expected redis record store, got %T", s.Records)
	}
	if _, ok := s.Transcript.(*conversation.RedisTranscriptStore); !ok {
		t.Fatalf("expected redis transcript, got %T", s.Transcript)
	}
}

func TestBuildModelsRequiresProvider(t *testing.T) {
	if _, err := BuildModels(context.Background(), nil, aws.Config{}, nil, quietLogger()); err == nil {
		t.Fatalf("expected error for nil config")
	}
	_, err := BuildModels(context.Background(), &appconfig.Config{}, aws.Config{}, nil, quietLogger())
	if !errors.Is(err, ErrNoLanguageModel) {
		t.Fatalf("expected ErrNoLanguageModel, got %v", err)
	}
}

func TestBuildModelsBedrock(t *testing.T) {
	cfg := &appconfig.Config{
		LLMProvider:             "gemini",
		BedrockModelID:          "amazon.nova-lite-v1:0",
		BedrockEmbeddingModelID: "amazon.titan-embed-text-v2:0",
	}
	m, err := BuildModels(context.Background(), cfg, aws.Config{Region: "us-east-1"}, nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Primary != "bedrock" {
		t.Fatalf("expected bedrock to stand in for missing gemini, got %q", m.Primary)
	}
	if m.Client == nil || m.Embedder == nil {
		t.Fatalf("expected client and embedder, got %+v", m)
	}
}

func TestBuildNotifierSelection(t *testing.T) {
	cases := []struct {
		name string
		cfg  appconfig.Config
		aws  *aws.Config
		want string
	}{
		{name: "stub", cfg: appconfig.Config{}, want: "stub"},
		{name: "sendgrid", cfg: appconfig.Config{SendGridAPIKey: "SG.key", SESFromEmail: "desk@ctsmash.com"}, aws: &aws.Config{}, want: "sendgrid"},
		{name: "ses", cfg: appconfig.Config{SESFromEmail: "desk@ctsmash.com"}, aws: &aws.Config{Region: "us-east-1"}, want: "ses"},
		{name: "ses without aws", cfg: appconfig.Config{SESFromEmail: "desk@ctsmash.com"}, want: "stub"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, provider := BuildNotifier(&tc.cfg, tc.aws, quietLogger())
			if svc == nil {
				t.Fatalf("expected notify service")
			}
			if provider != tc.want {
				t.Fatalf("provider = %q, want %q", provider, tc.want)
			}
		})
	}
}

func TestBuildPolicy(t *testing.T) {
	p, err := BuildPolicy(&appconfig.Config{TrialTimeWindows: "18:00-21:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Weekday != time.Tuesday || p.Location != time.UTC {
		t.Fatalf("unexpected policy %+v", p)
	}
	if len(p.Windows) != 1 || p.Windows[0].Start != 18*60 || p.Windows[0].End != 21*60 {
		t.Fatalf("unexpected windows %+v", p.Windows)
	}

	if _, err := BuildPolicy(&appconfig.Config{TrialTimezone: "Mars/Olympus"}); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
	if _, err := BuildPolicy(&appconfig.Config{TrialTimeWindows: "21:00-18:00"}); err == nil {
		t.Fatalf("expected error for inverted window")
	}
}

func TestBuildMessaging(t *testing.T) {
	m := BuildMessaging(&appconfig.Config{}, nil, quietLogger())
	if !m.InMemory {
		t.Fatalf("expected in-memory messaging without a queue url")
	}
	if _, ok := m.Queue.(*conversation.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", m.Queue)
	}

	cfg := &appconfig.Config{ConversationQueueURL: "https://sqs.us-east-1.amazonaws.com/1/turns", ConversationJobsTable: "jobs"}
	m = BuildMessaging(cfg, &aws.Config{Region: "us-east-1"}, quietLogger())
	if m.InMemory {
		t.Fatalf("expected SQS messaging")
	}
	if _, ok := m.Queue.(*conversation.SQSQueue); !ok {
		t.Fatalf("expected sqs queue, got %T", m.Queue)
	}
	if _, ok := m.Jobs.(*conversation.JobStore); !ok {
		t.Fatalf("expected dynamo job store, got %T", m.Jobs)
	}

	cfg.UseMemoryQueue = true
	if m := BuildMessaging(cfg, &aws.Config{}, quietLogger()); !m.InMemory {
		t.Fatalf("expected USE_MEMORY_QUEUE to force the memory queue")
	}
}

func TestBuildMetricsServesRegistry(t *testing.T) {
	m, h := BuildMetrics()
	if m == nil || h == nil {
		t.Fatalf("expected metrics and handler")
	}
}

func TestBuildTurnServiceRequiresModel(t *testing.T) {
	_, err := BuildTurnService(context.Background(), TurnDeps{Config: &appconfig.Config{}})
	if !errors.Is(err, ErrNoLanguageModel) {
		t.Fatalf("expected ErrNoLanguageModel, got %v", err)
	}
	if _, err := BuildTurnService(context.Background(), TurnDeps{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildTurnServiceInMemory(t *testing.T) {
	cfg := &appconfig.Config{TriageEnabled: true}
	rt, err := BuildTurnService(context.Background(), TurnDeps{
		Config: cfg,
		Models: stubModels(),
		Stores: BuildStores(cfg, nil, nil, quietLogger()),
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.Service == nil || rt.Bookings == nil {
		t.Fatalf("expected service and bookings, got %+v", rt)
	}
}

func TestBuildFAQ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faq.md")
	if err := os.WriteFile(path, []byte("# Parking\nFree parking behind court 3.\n\n# Gear\nRackets are provided.\n"), 0o600); err != nil {
		t.Fatalf("write faq: %v", err)
	}
	cfg := &appconfig.Config{FAQKnowledgePath: path}

	deps := TurnDeps{Config: cfg, Models: stubModels()}
	if a := buildFAQ(context.Background(), deps, quietLogger()); a != nil {
		t.Fatalf("expected FAQ disabled without an embedder")
	}

	deps.Models.Embedder = fixedEmbedder{}
	if a := buildFAQ(context.Background(), deps, quietLogger()); a == nil {
		t.Fatalf("expected FAQ answerer")
	}

	deps.Config = &appconfig.Config{FAQKnowledgePath: filepath.Join(t.TempDir(), "missing.md")}
	if a := buildFAQ(context.Background(), deps, quietLogger()); a != nil {
		t.Fatalf("expected FAQ disabled when the knowledge base cannot be read")
	}
}
