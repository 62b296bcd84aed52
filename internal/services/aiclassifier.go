package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/time/rate"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const (
	aiTemperature     float32 = 0.2
	aiMaxOutputTokens int32   = 80

	dailyQuotaCooldown = 24 * time.Hour
	quotaCooldown      = 10 * time.Minute
	rateLimitCooldown  = 15 * time.Minute
	retryDelayPadding  = 5 * time.Second
)

var (
	categoryFieldPattern = regexp.MustCompile(`"category"\s*:\s*"([^"]+)"`)
	retryDelayPattern    = regexp.MustCompile(`"?retry_?delay"?\s*:\s*"?(\d+(?:\.\d+)?)s`)
)

type vertexGenerator interface {
	GenerateContent(ctx context.Context, req dto.VertexGenerateRequest) (dto.VertexGenerateResponse, error)
}

type aiSettings interface {
	Current(ctx context.Context) (dto.Settings, error)
	AIAvailable(ctx context.Context) bool
	RecordAIFailure(ctx context.Context, until time.Time, errText string) error
}

// aiClassifier asks the model for exactly one category from the allowed list.
// Requests are spaced process-wide by the limiter; quota errors put AI into a
// shared cooldown through the settings service.
type aiClassifier struct {
	vertex   vertexGenerator
	settings aiSettings
	limiter  *rate.Limiter
	timeout  time.Duration
	clockNow func() time.Time
}

func NewAIClassifier(vertex vertexGenerator, settings aiSettings, spacing, timeout time.Duration) *aiClassifier {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &aiClassifier{
		vertex:   vertex,
		settings: settings,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  timeout,
		clockNow: time.Now,
	}
}

func (a *aiClassifier) Available(ctx context.Context) bool {
	return a.settings.AIAvailable(ctx)
}

func (a *aiClassifier) Categorize(ctx context.Context, in dto.ClassifyInput, allowed []string) (string, error) {
	if len(allowed) == 0 {
		allowed = DefaultCategories
	}
	cur, err := a.settings.Current(ctx)
	if err != nil {
		return "", err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.vertex.GenerateContent(callCtx, dto.VertexGenerateRequest{
		Model:           cur.AIModel,
		System:          systemPrompt(allowed),
		UserMessage:     userPrompt(in),
		Temperature:     helpers.Ptr(aiTemperature),
		MaxOutputTokens: helpers.Ptr(aiMaxOutputTokens),
	})
	if err != nil {
		a.recordFailure(ctx, err)
		return "", err
	}

	answer := parseCategory(resp.Text)
	category, ok := matchAllowed(answer, allowed)
	if !ok {
		return "", errs.NewValidationError(fmt.Sprintf("model answered %q which is not an allowed category", answer))
	}
	return category, nil
}

func (a *aiClassifier) recordFailure(ctx context.Context, err error) {
	log := logger.FromContext(ctx)
	d, ok := aiCooldown(err)
	if !ok {
		log.Warn("ai request failed", "error", err)
		return
	}
	until := a.clockNow().Add(d)
	log.Warn("ai quota hit, pausing AI classification", "error", err, "until", until)
	if rerr := a.settings.RecordAIFailure(context.WithoutCancel(ctx), until, err.Error()); rerr != nil {
		log.Error("failed to record ai cooldown", "error", rerr)
	}
}

func systemPrompt(allowed []string) string {
	return "You categorize financial transactions. Pick exactly one category from this list: " +
		strings.Join(allowed, ", ") +
		`. Return only JSON like {"category":"<one of the allowed categories>"}.`
}

func userPrompt(in dto.ClassifyInput) string {
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}
	line("Description", in.Description)
	line("Merchant", in.Merchant)
	line("Counterparty IBAN", in.CounterpartyIBAN)
	line("Direction", string(in.Direction))
	line("Type", in.TxType)
	line("Amount", in.Amount.StringFixed(2))
	line("Currency", in.Currency)
	return b.String()
}

// parseCategory extracts the answer: strict JSON, then a loose
// "category": "..." match, then the raw text.
func parseCategory(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err == nil && payload.Category != "" {
		return strings.TrimSpace(payload.Category)
	}
	if m := categoryFieldPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.Trim(text, "\"' .\n")
}

// matchAllowed maps answer onto the allowed list case-insensitively. Labels
// of five or more characters tolerate a single edit.
func matchAllowed(answer string, allowed []string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(answer))
	if want == "" {
		return "", false
	}
	for _, c := range allowed {
		if strings.ToLower(c) == want {
			return c, true
		}
	}
	for _, c := range allowed {
		label := strings.ToLower(c)
		if len(label) >= 5 && levenshtein.ComputeDistance(label, want) <= 1 {
			return c, true
		}
	}
	return "", false
}

// aiCooldown decides how long AI stays paused after err. The bool is false
// when err does not look like a quota or rate problem.
func aiCooldown(err error) (time.Duration, bool) {
	text := strings.ToLower(err.Error())
	compact := normalizeValue(text)
	quota := strings.Contains(text, "insufficient_quota") || strings.Contains(text, "resource_exhausted") ||
		strings.Contains(compact, "resourceexhausted") || strings.Contains(text, "quota")

	var ext *errs.ExternalServiceError
	if errors.As(err, &ext) && ext.StatusCode == 429 {
		if strings.Contains(compact, "perday") {
			return dailyQuotaCooldown, true
		}
		delay := ext.RetryAfter
		if delay <= 0 {
			delay = parseRetryDelay(text)
		}
		if delay > 0 {
			return max(delay+retryDelayPadding, quotaCooldown), true
		}
		if quota {
			return quotaCooldown, true
		}
		return rateLimitCooldown, true
	}

	switch {
	case quota:
		return quotaCooldown, true
	case strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests") || strings.Contains(text, "429"):
		return rateLimitCooldown, true
	}
	return 0, false
}

func parseRetryDelay(text string) time.Duration {
	m := retryDelayPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
