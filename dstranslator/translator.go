package dstranslator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	promptTranslateToEnglish = `Analyze the following text. Identify its source language and translate it into English.
If the original text is already in English, identify the language as "English".

Input: %q

Respond ONLY with a JSON object in this exact format:
{"language": "detected language name", "text": "English translation"}`

	promptTranslateToLanguage = `Translate the following text into %s.

Input: %q

Respond ONLY with a JSON object in this exact format:
{"text": "translated text"}`
)

// jsonBlobPattern extracts the first JSON object from a completion.
// Models occasionally wrap the requested JSON in prose or code fences.
var jsonBlobPattern = regexp.MustCompile(`(?s)\{.*\}`)

// TranslationClient is the slice of the provider client the translator
// uses. Satisfied by [openai.Client], and by mocks in tests.
type TranslationClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// TranslationResult is the parsed provider response. Language is only
// populated by TranslateToEnglish, which asks the model to detect the
// source language.
type TranslationResult struct {
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

// Translator wraps the external translation capability: an
// OpenAI-compatible chat completion endpoint queried with a fixed
// prompt, rate limited and bounded by a per-request timeout.
type Translator struct {
	client         TranslationClient
	config         *TranslatorConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

func newTranslator(
	config *TranslatorConfig,
	logHandler slog.Handler,
	httpClient *http.Client,
) *Translator {
	t := &Translator{
		config: config,
		logger: slog.New(logHandler).With(loggerNameKey, "translator"),
	}

	clientCfg := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	t.client = openai.NewClientWithConfig(clientCfg)

	rps := config.MaxRequestsPerSecond
	if rps <= 0 {
		rps = DefaultTranslatorMaxRequestsPerSecond
	}
	t.requestLimiter = rate.NewLimiter(rate.Limit(rps), 1)

	return t
}

// TranslateToEnglish translates text to English, detecting the source
// language along the way. Returns ErrEmptySourceText when the cleaned
// input is empty, and a ProviderError for any provider-side failure.
func (t *Translator) TranslateToEnglish(
	ctx context.Context,
	text string,
) (TranslationResult, error) {
	cleaned := cleanSourceText(text)
	if cleaned == "" {
		return TranslationResult{}, ErrEmptySourceText
	}
	return t.complete(ctx, fmt.Sprintf(promptTranslateToEnglish, cleaned))
}

// TranslateToLanguage translates text into the given target language.
// The target is free text and case-insensitive.
func (t *Translator) TranslateToLanguage(
	ctx context.Context,
	text string,
	targetLanguage string,
) (TranslationResult, error) {
	cleaned := cleanSourceText(text)
	if cleaned == "" {
		return TranslationResult{}, ErrEmptySourceText
	}
	target := strings.TrimSpace(targetLanguage)
	if target == "" {
		target = DefaultTargetLanguage
	}
	return t.complete(ctx, fmt.Sprintf(promptTranslateToLanguage, target, cleaned))
}

func (t *Translator) complete(
	ctx context.Context,
	prompt string,
) (TranslationResult, error) {
	ctx, logger := t.contextLogger(ctx)

	if t.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.RequestTimeout)
		defer cancel()
	}

	if t.requestLimiter != nil {
		if err := t.requestLimiter.Wait(ctx); err != nil {
			return TranslationResult{}, ProviderError{Err: err}
		}
	}

	resp, err := t.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: t.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0,
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "completion request failed", tint.Err(err))
		return TranslationResult{}, ProviderError{Err: err}
	}
	if len(resp.Choices) == 0 {
		logger.ErrorContext(ctx, "completion response had no choices")
		return TranslationResult{}, ProviderError{
			Err: fmt.Errorf("empty completion response"),
		}
	}

	content := resp.Choices[0].Message.Content
	result, err := parseTranslationResponse(content)
	if err != nil {
		logger.ErrorContext(
			ctx,
			"could not parse completion response",
			tint.Err(err),
			"content", truncate(content, 200),
		)
		return TranslationResult{}, ProviderError{Err: err}
	}

	logger.DebugContext(
		ctx,
		"translation completed",
		"language", result.Language,
		"text", truncate(result.Text, 200),
	)
	return result, nil
}

func (t *Translator) contextLogger(ctx context.Context) (
	context.Context,
	*slog.Logger,
) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = t.logger
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

// parseTranslationResponse extracts the JSON object the prompt asked
// for from the raw model output.
func parseTranslationResponse(content string) (TranslationResult, error) {
	var result TranslationResult
	blob := jsonBlobPattern.FindString(content)
	if blob == "" {
		return result, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return result, fmt.Errorf("malformed JSON in response: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return result, fmt.Errorf("response JSON missing 'text'")
	}
	return result, nil
}
