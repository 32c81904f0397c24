// Package ai adapts the OpenAI API for image generation, moderation and
// prompt rewriting.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

const improveInstruction = "Rewrite the user's image generation prompt so it is vivid and specific. " +
	"Keep the original subject, answer with the improved prompt only, and stay under %d characters."

type OpenAI struct {
	client *openai.Client
	http   *http.Client
	cfg    config.AI
}

var _ repository.AIProvider = (*OpenAI)(nil)

func NewOpenAI(cfg config.AI) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		http:   &http.Client{Timeout: timeout},
		cfg:    cfg,
	}, nil
}

func (o *OpenAI) GenerateRaw(ctx context.Context, prompt, userID string) ([]byte, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.cfg.ImageModel,
		N:              o.cfg.ImageCount,
		Size:           o.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		User:           userID,
	})
	if err != nil {
		return nil, apperr.Provider("create image", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.Provider("no images returned", nil)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, apperr.Internal("encode image response", err)
	}
	return body, nil
}

// DecodeImages accepts both b64_json and url entries under data[].
func (o *OpenAI) DecodeImages(ctx context.Context, body []byte) ([]repository.Blob, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperr.Provider("malformed provider response", nil)
	}
	entries := gjson.GetBytes(body, "data").Array()
	if len(entries) == 0 {
		return nil, apperr.Provider("no images returned", nil)
	}

	blobs := make([]repository.Blob, 0, len(entries))
	for i, entry := range entries {
		var (
			data []byte
			err  error
		)
		switch {
		case entry.Get("b64_json").Exists():
			data, err = base64.StdEncoding.DecodeString(entry.Get("b64_json").String())
			if err != nil {
				return nil, apperr.Provider(fmt.Sprintf("image %d: invalid base64", i), err)
			}
		case entry.Get("url").Exists():
			data, err = o.fetch(ctx, entry.Get("url").String())
			if err != nil {
				return nil, err
			}
		default:
			return nil, apperr.Provider(fmt.Sprintf("image %d: no payload", i), nil)
		}
		blobs = append(blobs, repository.Blob{Data: data, ContentType: http.DetectContentType(data)})
	}
	return blobs, nil
}

func (o *OpenAI) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Provider("build image request", err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, apperr.Provider("fetch image", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Provider(fmt.Sprintf("fetch image: %s", resp.Status), errors.New(string(snippet)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Provider("read image", err)
	}
	return data, nil
}

func (o *OpenAI) Moderate(ctx context.Context, text string) (bool, error) {
	resp, err := o.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: o.cfg.ModerationModel,
	})
	if err != nil {
		return false, apperr.Provider("moderation", err)
	}
	for _, r := range resp.Results {
		if r.Flagged {
			return true, nil
		}
	}
	return false, nil
}

func (o *OpenAI) ImprovePrompt(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(improveInstruction, o.cfg.MaxPromptLength)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", apperr.Provider("improve prompt", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Provider("improve prompt: empty response", nil)
	}
	improved := strings.TrimSpace(resp.Choices[0].Message.Content)
	improved = strings.Trim(improved, `"`)
	if improved == "" {
		return "", apperr.Provider("improve prompt: empty response", nil)
	}
	if limit := o.cfg.MaxPromptLength; limit > 0 && len([]rune(improved)) > limit {
		improved = string([]rune(improved)[:limit])
	}
	return improved, nil
}
