package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

const DefaultModerationModel = "omni-moderation-latest"

// Classification is the normalized answer of a remote classifier.
type Classification struct {
	Flagged    bool
	Categories map[string]float64
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(apiKey, baseURL, model string) *OpenAIClassifier {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModerationModel
	}
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.model,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("failed to create moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return Classification{}, errors.New("moderation returned no results")
	}

	result := resp.Results[0]
	categories, err := flattenCategories(result.Categories, result.CategoryScores)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Flagged: result.Flagged, Categories: categories}, nil
}

// flattenCategories maps provider flags to 1/0 and stores scores under a
// "score:" prefix.
func flattenCategories(flags, scores any) (map[string]float64, error) {
	out := make(map[string]float64)

	var flagMap map[string]bool
	if err := remarshal(flags, &flagMap); err != nil {
		return nil, fmt.Errorf("failed to parse moderation categories: %w", err)
	}
	for name, flagged := range flagMap {
		if flagged {
			out[name] = 1
		} else {
			out[name] = 0
		}
	}

	var scoreMap map[string]float64
	if err := remarshal(scores, &scoreMap); err != nil {
		return nil, fmt.Errorf("failed to parse moderation scores: %w", err)
	}
	for name, score := range scoreMap {
		out["score:"+name] = score
	}
	return out, nil
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Adapter wraps a Classifier and never reports an error to its callers:
// any failure is a clean result.
type Adapter struct {
	classifier Classifier
	timeout    time.Duration
	logger     *zap.Logger
}

func NewAdapter(classifier Classifier, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{classifier: classifier, timeout: timeout, logger: logger}
}

func (a *Adapter) Check(ctx context.Context, text string) models.ModerationOutcome {
	clean := models.ModerationOutcome{Source: models.SourceNone, Categories: map[string]float64{}}
	if a == nil || a.classifier == nil {
		return clean
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := a.classifier.Classify(ctx, text)
	if err != nil {
		a.logger.Warn("Remote moderation failed, treating message as clean", zap.Error(err))
		return clean
	}

	outcome := models.ModerationOutcome{
		Blocked:    res.Flagged,
		Source:     models.SourceNone,
		Categories: res.Categories,
	}
	if outcome.Categories == nil {
		outcome.Categories = map[string]float64{}
	}
	if res.Flagged {
		outcome.Source = models.SourceRemote
	}
	return outcome
}

// FlaggedCategories lists the category names set to 1 in an outcome.
func FlaggedCategories(outcome models.ModerationOutcome) []string {
	var names []string
	for name, v := range outcome.Categories {
		if v == 1 && !strings.HasPrefix(name, "score:") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
