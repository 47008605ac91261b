// Command llmtest sends one sample message through the configured language models
// and prints the structured extraction, to check provider credentials and fallback.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wolfman30/trial-booking/cmd/mainconfig"
	"github.com/wolfman30/trial-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/extraction"
	"github.com/wolfman30/trial-booking/internal/trial"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

const sampleMessage = "Hi! I'm Marta, 34, played a bit of tennis before. Could I come next Tuesday at 7pm?"

func main() {
	if !appconfig.LoadDotEnv() {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	models, err := bootstrap.BuildModels(ctx, cfg, awsCfg, nil, logger)
	if err != nil {
		log.Fatalf("configure models: %v", err)
	}
	policy, err := bootstrap.BuildPolicy(cfg)
	if err != nil {
		log.Fatalf("trial policy: %v", err)
	}

	text := sampleMessage
	if len(os.Args) > 1 {
		text = os.Args[1]
	}

	extractor := extraction.New(models.Client, "")
	req := trial.ExtractRequest{
		Text:     text,
		Stage:    trial.StageCollectInfo,
		Calendar: trial.NewValidator(policy).Calendar(4),
	}

	fmt.Printf("primary provider: %s\n", models.Primary)
	fmt.Printf("message: %s\n\n", text)

	start := time.Now()
	ext, err := extractor.Extract(ctx, req)
	if err != nil {
		log.Fatalf("extraction failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
	}
	out, _ := json.MarshalIndent(ext, "", "  ")
	fmt.Printf("extraction (%v):\n%s\n", time.Since(start).Round(time.Millisecond), out)
}
