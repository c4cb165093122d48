package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

const (
	systemPrompt = "You extract resume data from raw PDF page text. Return STRICT JSON with keys: " +
		"name (string or null), email (string or null), github (string or null), " +
		"education (string or null), experiences (array of strings). Do not include extra keys."

	pageAttempts = 3
)

// jsonBlockRe salvages a JSON object out of a response that wrapped it in
// prose despite the instructions.
var jsonBlockRe = regexp.MustCompile(`\{[\s\S]*\}`)

// fieldsDoc mirrors the JSON contract the model is asked for.
type fieldsDoc struct {
	Name        *string  `json:"name"`
	Email       *string  `json:"email"`
	GitHub      *string  `json:"github"`
	Education   *string  `json:"education"`
	Experiences []string `json:"experiences"`
}

// Structurer turns raw document text into resume fields. Implementations may
// fail; the pipeline treats any failure as a signal to fall back.
type Structurer interface {
	Structure(ctx context.Context, text Text) (*harvest.ResumeFields, error)
}

// GeminiStructurer extracts fields one page at a time and merges the answers.
// Multiple API keys are rotated across documents so a single quota does not
// throttle the whole run.
type GeminiStructurer struct {
	clients []*genai.Client
	model   string
	next    atomic.Uint64
	logger  *zap.Logger
}

// NewGeminiStructurer builds one Gemini client per API key.
func NewGeminiStructurer(ctx context.Context, model string, apiKeys []string, logger *zap.Logger) (*GeminiStructurer, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}
	if len(apiKeys) == 0 {
		return nil, errors.New("at least one API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clients := make([]*genai.Client, 0, len(apiKeys))
	for _, key := range apiKeys {
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		clients = append(clients, client)
	}
	return &GeminiStructurer{clients: clients, model: model, logger: logger}, nil
}

// Structure merges per-page extractions into one set of fields. It fails only
// when no page produced a valid answer.
func (g *GeminiStructurer) Structure(ctx context.Context, text Text) (*harvest.ResumeFields, error) {
	pages := text.Pages
	if len(pages) == 0 && !text.Empty() {
		pages = []string{text.Full}
	}
	if len(pages) == 0 {
		return nil, errors.New("no text to structure")
	}

	client := g.clients[g.next.Add(1)%uint64(len(g.clients))]
	model := client.GenerativeModel(g.model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	merged := &harvest.ResumeFields{Experiences: []string{}}
	valid := 0
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		doc, err := g.structurePage(ctx, model, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Debug("page extraction failed",
				zap.Int("page", i+1),
				zap.Error(err),
			)
			continue
		}
		mergeFields(merged, doc)
		valid++
	}
	if valid == 0 {
		return nil, errors.New("no page produced valid fields")
	}
	return merged, nil
}

// Close releases all underlying clients.
func (g *GeminiStructurer) Close() error {
	var firstErr error
	for _, c := range g.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *GeminiStructurer) structurePage(ctx context.Context, model *genai.GenerativeModel, page string) (*fieldsDoc, error) {
	prompt := systemPrompt + "\n\n" + userPrompt(page)
	var lastErr error
	for attempt := 0; attempt < pageAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("generate content: %w", err)
			continue
		}
		raw, err := responseText(resp)
		if err != nil {
			lastErr = err
			continue
		}
		doc, err := parseFieldsJSON(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return doc, nil
	}
	return nil, lastErr
}

func userPrompt(pageText string) string {
	return "From this resume page text, extract the fields. If a field is unknown, use null.\n\n" +
		"PAGE TEXT:\n" + pageText + "\n\n" +
		"Respond with ONLY JSON."
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// parseFieldsJSON decodes a model response, salvaging an embedded JSON object
// when the response wrapped it in prose, and checks it against the schema.
func parseFieldsJSON(raw string) (*fieldsDoc, error) {
	cleaned := cleanJSONBlock(raw)
	if !json.Valid([]byte(cleaned)) {
		salvaged := jsonBlockRe.FindString(cleaned)
		if salvaged == "" || !json.Valid([]byte(salvaged)) {
			return nil, errors.New("response is not json")
		}
		cleaned = salvaged
	}
	if err := ValidateFieldsJSON(cleaned); err != nil {
		return nil, err
	}
	var doc fieldsDoc
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("decode fields json: %w", err)
	}
	return &doc, nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// mergeFields folds one page's answer into the running result. Longer names
// and education lines win, the last valid email and GitHub URL win, and
// experiences accumulate in page order without duplicates.
func mergeFields(base *harvest.ResumeFields, update *fieldsDoc) {
	if update.Name != nil {
		if name := strings.TrimSpace(*update.Name); name != "" {
			if base.Name == nil || len(name) > len(*base.Name) {
				base.Name = &name
			}
		}
	}
	if update.Email != nil {
		if email := FindEmail(*update.Email); email != nil {
			base.Email = email
		}
	}
	if update.GitHub != nil {
		if url := FindGitHub(*update.GitHub); url != nil {
			base.GitHub = url
		}
	}
	if update.Education != nil {
		if edu := strings.TrimSpace(*update.Education); edu != "" {
			if base.Education == nil || len(edu) > len(*base.Education) {
				base.Education = &edu
			}
		}
	}
	for _, item := range update.Experiences {
		item = strings.TrimSpace(item)
		if item == "" || containsString(base.Experiences, item) {
			continue
		}
		base.Experiences = append(base.Experiences, item)
	}
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
