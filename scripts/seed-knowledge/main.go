// Command seed-knowledge uploads the FAQ markdown knowledge base to the S3 object the
// API indexes at startup (FAQ_KNOWLEDGE_S3_BUCKET / FAQ_KNOWLEDGE_S3_KEY).
//
// Usage:
//
//	go run ./scripts/seed-knowledge <knowledge.md>
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/trial-booking/cmd/mainconfig"
	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/faq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-knowledge <knowledge.md>")
		os.Exit(1)
	}
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()
	if strings.TrimSpace(cfg.FAQKnowledgeS3Bucket) == "" || strings.TrimSpace(cfg.FAQKnowledgeS3Key) == "" {
		fmt.Println("FAQ_KNOWLEDGE_S3_BUCKET and FAQ_KNOWLEDGE_S3_KEY are required")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	sections := faq.SplitMarkdown(string(data))
	if len(sections) == 0 {
		fmt.Println("Knowledge file has no sections with content")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		fmt.Printf("Error loading AWS config: %v\n", err)
		os.Exit(1)
	}
	_, err = s3.NewFromConfig(awsCfg).PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.FAQKnowledgeS3Bucket),
		Key:         aws.String(cfg.FAQKnowledgeS3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/markdown; charset=utf-8"),
	})
	if err != nil {
		fmt.Printf("Error uploading knowledge base: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Uploaded %d sections to s3://%s/%s\n", len(sections), cfg.FAQKnowledgeS3Bucket, cfg.FAQKnowledgeS3Key)
	for _, s := range sections {
		fmt.Printf("  - %s\n", strings.Join(s.Headers, " > "))
	}
	fmt.Println("Restart the API to re-index.")
}
