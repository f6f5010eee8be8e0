// Package proxy is the server half of the app. It owns the Gemini API key,
// translates the client's small wire API onto the SDK, and hands starting
// clients their configuration.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/firi-app/firi/internal/oracle"
	"github.com/firi-app/firi/internal/research"
)

const configCacheKey = "client-config"

// generator is the slice of the Gemini SDK the handlers need. The tests
// substitute a stub.
type generator interface {
	generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiGenerator struct {
	client *genai.Client
}

func (g *geminiGenerator) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, cfg)
}

type Server struct {
	app   *fiber.App
	cfg   Config
	log   *zap.Logger
	gen   generator
	cache *gocache.Cache
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Server, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return newWithGenerator(cfg, log, &geminiGenerator{client: client}), nil
}

func newWithGenerator(cfg Config, log *zap.Logger, gen generator) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log,
		gen:   gen,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	api := app.Group("/api")
	api.Get("/config", s.handleConfig)
	api.Post("/generate", s.handleGenerate)
	api.Post("/chat", s.handleChat)

	s.app = app
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Run() error {
	s.log.Info("proxy listening", zap.Int("port", s.cfg.Port), zap.String("model", s.cfg.Model))
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
}

func (s *Server) handleConfig(c *fiber.Ctx) error {
	if cached, ok := s.cache.Get(configCacheKey); ok {
		return c.JSON(cached)
	}
	guest, signup, upgrade := s.cfg.TokenGrants()
	out := oracle.ClientConfig{
		DatabaseURL:   s.cfg.DatabaseURL,
		Model:         s.cfg.Model,
		GuestTokens:   guest,
		SignupTokens:  signup,
		UpgradeTokens: upgrade,
		Version:       s.cfg.Version,
	}
	s.cache.Set(configCacheKey, out, gocache.DefaultExpiration)
	return c.JSON(out)
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var req oracle.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, errors.Wrap(err, "parse generate request"))
	}
	if req.Prompt == "" {
		return s.fail(c, fiber.StatusBadRequest, errors.New("prompt is required"))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Grounded {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if len(req.Schema) > 0 {
		schema := &genai.Schema{}
		if err := json.Unmarshal(req.Schema, schema); err != nil {
			return s.fail(c, fiber.StatusBadRequest, errors.Wrap(err, "parse response schema"))
		}
		cfg.ResponseSchema = schema
		cfg.ResponseMIMEType = "application/json"
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	started := time.Now()
	result, err := s.gen.generate(c.Context(), s.cfg.Model, contents, cfg)
	if err != nil {
		s.log.Error("generate failed", zap.Error(err), zap.Bool("grounded", req.Grounded))
		return s.fail(c, fiber.StatusBadGateway, errors.Wrap(err, "generate"))
	}
	s.log.Info("generate",
		zap.Bool("grounded", req.Grounded),
		zap.Bool("schema", len(req.Schema) > 0),
		zap.Duration("took", time.Since(started)))

	return c.JSON(oracle.GenerateResponse{
		Text:    result.Text(),
		Sources: extractSources(result),
	})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req oracle.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, errors.Wrap(err, "parse chat request"))
	}
	if len(req.Messages) == 0 {
		return s.fail(c, fiber.StatusBadRequest, errors.New("messages are required"))
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, turn := range req.Messages {
		parts := []*genai.Part{{Text: turn.Content}}
		if turn.Image != "" {
			mimeType, raw, err := oracle.DecodeDataURL(turn.Image)
			if err != nil {
				return s.fail(c, fiber.StatusBadRequest, errors.Wrap(err, "decode image"))
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: raw}})
		}
		role := genai.RoleUser
		if turn.Role == research.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}

	started := time.Now()
	result, err := s.gen.generate(c.Context(), s.cfg.Model, contents, cfg)
	if err != nil {
		s.log.Error("chat failed", zap.Error(err), zap.Int("turns", len(req.Messages)))
		return s.fail(c, fiber.StatusBadGateway, errors.Wrap(err, "chat"))
	}
	s.log.Info("chat",
		zap.Int("turns", len(req.Messages)),
		zap.Bool("primed", req.SystemInstruction != ""),
		zap.Duration("took", time.Since(started)))

	return c.JSON(oracle.ChatResponse{Text: result.Text()})
}

func (s *Server) fail(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func extractSources(result *genai.GenerateContentResponse) []research.Source {
	if result == nil || len(result.Candidates) == 0 {
		return nil
	}
	md := result.Candidates[0].GroundingMetadata
	if md == nil {
		return nil
	}
	sources := make([]research.Source, 0, len(md.GroundingChunks))
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, research.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return research.DedupSources(sources)
}
