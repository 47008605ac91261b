package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// ErrNoLanguageModel is returned when neither Bedrock nor Gemini is configured.
var ErrNoLanguageModel = errors.New("bootstrap: no language model configured")

// Models are the language model clients used by the adapters.
type Models struct {
	Client   llm.Client
	Embedder llm.Embedder
	Primary  string
}

// BuildModels wires the configured providers. LLMProvider picks the primary; the
// other provider, when configured, becomes the fallback. Embeddings need Bedrock.
func BuildModels(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, m *metrics.TrialMetrics, logger *logging.Logger) (Models, error) {
	if cfg == nil {
		return Models{}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	clients := map[string]llm.Client{}
	var out Models

	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		runtime := bedrockruntime.NewFromConfig(awsCfg)
		clients["bedrock"] = llm.NewInstrumentedClient(llm.NewBedrockClient(runtime, model), "bedrock", m)
		if embedModel := strings.TrimSpace(cfg.BedrockEmbeddingModelID); embedModel != "" {
			out.Embedder = llm.NewBedrockEmbedder(runtime, embedModel)
		}
	}
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := llm.NewGeminiClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else {
			clients["gemini"] = llm.NewInstrumentedClient(gemini, "gemini", m)
		}
	}

	primaryName, fallbackName := "bedrock", "gemini"
	if cfg.LLMProvider == "gemini" {
		primaryName, fallbackName = "gemini", "bedrock"
	}
	primary, ok := clients[primaryName]
	if !ok {
		primary, ok = clients[fallbackName]
		if !ok {
			return Models{}, ErrNoLanguageModel
		}
		logger.Warn("preferred LLM provider not configured; using the other one", "preferred", primaryName, "using", fallbackName)
		primaryName, fallbackName = fallbackName, ""
	}

	out.Primary = primaryName
	if fallback, ok := clients[fallbackName]; ok {
		out.Client = llm.NewFallbackClient(primary, fallback, logger)
	} else {
		out.Client = llm.NewFallbackClient(primary, nil, logger)
	}
	logger.Info("language models configured", "primary", primaryName, "fallback", fallbackName, "embeddings", out.Embedder != nil)
	return out, nil
}
