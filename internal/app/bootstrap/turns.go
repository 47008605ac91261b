package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/trial-booking/internal/bookings"
	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/internal/drafting"
	"github.com/wolfman30/trial-booking/internal/extraction"
	"github.com/wolfman30/trial-booking/internal/faq"
	"github.com/wolfman30/trial-booking/internal/notify"
	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/internal/triage"
	"github.com/wolfman30/trial-booking/internal/trial"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// TurnDeps are the collaborators needed to build the turn service.
type TurnDeps struct {
	Config   *appconfig.Config
	AWS      *aws.Config
	Models   Models
	Stores   Stores
	Postgres *Postgres
	Notifier *notify.Service
	Metrics  *metrics.TrialMetrics
	Logger   *logging.Logger
}

// TurnRuntime is the assembled booking flow.
type TurnRuntime struct {
	Service  *conversation.TurnService
	Bookings *bookings.Service
}

// BuildPolicy turns the trial settings into a validator policy.
func BuildPolicy(cfg *appconfig.Config) (trial.Policy, error) {
	policy := trial.DefaultPolicy()
	if tz := strings.TrimSpace(cfg.TrialTimezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return trial.Policy{}, fmt.Errorf("bootstrap: load trial timezone %q: %w", tz, err)
		}
		policy.Location = loc
	}
	windows, err := trial.ParseTimeWindows(cfg.TrialTimeWindows)
	if err != nil {
		return trial.Policy{}, err
	}
	policy.Windows = windows
	return policy, nil
}

// BuildTurnService wires the controller, the booking gateway and the optional
// triage and FAQ specialists into a TurnService.
func BuildTurnService(ctx context.Context, deps TurnDeps) (*TurnRuntime, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Models.Client == nil {
		return nil, ErrNoLanguageModel
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	cfg := deps.Config

	policy, err := BuildPolicy(cfg)
	if err != nil {
		return nil, err
	}

	var store bookings.Store
	if deps.Postgres != nil {
		store = bookings.NewRepository(deps.Postgres.Pool)
	} else {
		logger.Warn("DATABASE_URL not set; bookings are kept in memory")
		store = bookings.NewMemoryStore()
	}
	var bookingNotifier bookings.Notifier
	if deps.Notifier != nil {
		bookingNotifier = deps.Notifier
	}
	bookingService := bookings.NewService(store, bookingNotifier, logger)

	controller := trial.NewController(
		extraction.New(deps.Models.Client, ""),
		drafting.New(deps.Models.Client, ""),
		bookingService,
		trial.NewValidator(policy),
		trial.WithLogger(logger),
		trial.WithMetrics(deps.Metrics),
	)

	opts := []conversation.TurnServiceOption{
		conversation.WithTranscript(deps.Stores.Transcript),
		conversation.WithDeduper(deps.Stores.Deduper),
		conversation.WithServiceMetrics(deps.Metrics),
		conversation.WithServiceLogger(logger),
	}
	if deps.Stores.Archive != nil {
		opts = append(opts, conversation.WithArchive(deps.Stores.Archive))
	}
	if deps.Notifier != nil {
		opts = append(opts, conversation.WithHandoffNotifier(deps.Notifier))
	}
	if cfg.TriageEnabled {
		opts = append(opts, conversation.WithClassifier(triage.New(deps.Models.Client, "")))
	}
	if answerer := buildFAQ(ctx, deps, logger); answerer != nil {
		opts = append(opts, conversation.WithFAQ(answerer))
	}

	return &TurnRuntime{
		Service:  conversation.NewTurnService(controller, deps.Stores.Records, opts...),
		Bookings: bookingService,
	}, nil
}

// buildFAQ indexes the knowledge base. Any failure disables FAQ answers rather than
// failing startup.
func buildFAQ(ctx context.Context, deps TurnDeps, logger *logging.Logger) *faq.Answerer {
	cfg := deps.Config
	var src faq.Source
	switch {
	case strings.TrimSpace(cfg.FAQKnowledgeS3Bucket) != "" && strings.TrimSpace(cfg.FAQKnowledgeS3Key) != "" && deps.AWS != nil:
		src = faq.NewS3Source(s3.NewFromConfig(*deps.AWS), cfg.FAQKnowledgeS3Bucket, cfg.FAQKnowledgeS3Key)
	case strings.TrimSpace(cfg.FAQKnowledgePath) != "":
		src = faq.FileSource{Path: cfg.FAQKnowledgePath}
	default:
		return nil
	}
	if deps.Models.Embedder == nil {
		logger.Warn("FAQ knowledge base configured but no embedding model; FAQ answers disabled")
		return nil
	}

	store := faq.NewStore(deps.Models.Embedder)
	n, err := faq.Index(ctx, src, store)
	if err != nil {
		logger.Warn("failed to index FAQ knowledge base", "error", err)
		return nil
	}
	logger.Info("FAQ knowledge base indexed", "sections", n)
	return faq.NewAnswerer(store, deps.Models.Client, "", logger)
}
