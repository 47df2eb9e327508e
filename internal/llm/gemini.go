package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// uploadMargin is how long before its expiry an uploaded file stops being
// reused. The Files API keeps uploads for 48 hours.
const uploadMargin = time.Hour

// GeminiProvider implements Provider using Gemini text generation. It is meant
// to be created once per process: uploaded reference files are remembered and
// reused by every later request.
type GeminiProvider struct {
	client        *genai.Client
	model         string
	temperature   float32
	promptBuilder *PromptBuilder
	logger        *zap.Logger

	mu         sync.Mutex
	uploaded   map[string]*genai.File
	uploadFile func(ctx context.Context, ref *Reference) (*genai.File, error)
	now        func() time.Time
}

// NewGeminiProvider creates a provider for the Gemini API. baseURL is
// optional and overrides the API endpoint.
func NewGeminiProvider(ctx context.Context, apiKey, modelName, baseURL string, temperature float32, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GeminiProvider{
		client:        client,
		model:         modelName,
		temperature:   temperature,
		promptBuilder: &PromptBuilder{},
		logger:        logger,
		uploaded:      make(map[string]*genai.File),
		now:           time.Now,
	}
	g.uploadFile = g.uploadToFilesAPI
	return g, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	var parts []*genai.Part
	inline := false
	if ref := req.Reference; ref != nil {
		if ref.MIMEType == mimePDF {
			file, err := g.upload(ctx, ref)
			if err != nil {
				g.logger.Warn("reference upload failed, continuing without it",
					zap.String("path", ref.Path), zap.Error(err))
				inline = true
			} else {
				parts = append(parts, genai.NewPartFromURI(file.URI, file.MIMEType))
			}
		} else {
			inline = true
		}
	}

	prompt, err := g.promptBuilder.BuildValuesPrompt(req, inline)
	if err != nil {
		return "", err
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config())
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrBlocked
	}
	return resp.Text(), nil
}

func (g *GeminiProvider) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  "application/json",
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
}

// upload sends a reference file to the Files API and caches the handle until
// shortly before the API expires it.
func (g *GeminiProvider) upload(ctx context.Context, ref *Reference) (*genai.File, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.uploaded[ref.Path]; ok {
		if f.ExpirationTime.IsZero() || g.now().Add(uploadMargin).Before(f.ExpirationTime) {
			return f, nil
		}
		g.logger.Info("uploaded reference file expiring, uploading again",
			zap.String("name", f.Name), zap.Time("expires", f.ExpirationTime))
		delete(g.uploaded, ref.Path)
	}

	f, err := g.uploadFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	g.logger.Info("uploaded reference file", zap.String("name", f.Name), zap.String("path", ref.Path))
	g.uploaded[ref.Path] = f
	return f, nil
}

func (g *GeminiProvider) uploadToFilesAPI(ctx context.Context, ref *Reference) (*genai.File, error) {
	return g.client.Files.UploadFromPath(ctx, ref.Path, &genai.UploadFileConfig{
		MIMEType:    ref.MIMEType,
		DisplayName: ref.DisplayName,
	})
}
