// Package oracle talks to the generative-AI proxy. The proxy owns the API
// key; the client only ever sees text, JSON, and grounding citations.
package oracle

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/firi-app/firi/internal/research"
)

// GenerateRequest is one-shot generation. Schema, when present, is a Gemini
// response schema and forces a JSON reply. Grounded requests run with web
// search and return citations.
type GenerateRequest struct {
	Prompt   string          `json:"prompt"`
	Grounded bool            `json:"grounded,omitempty"`
	Schema   json.RawMessage `json:"schema,omitempty"`
}

type GenerateResponse struct {
	Text    string            `json:"text"`
	Sources []research.Source `json:"sources,omitempty"`
}

// ChatTurn mirrors research.ChatMessage on the wire. Image carries a data
// URL and is only ever set on the newest outgoing turn.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

type ChatRequest struct {
	Messages []ChatTurn `json:"messages"`
	// SystemInstruction primes persona-specific behavior. It is attached to
	// at most the first request of a session.
	SystemInstruction string `json:"systemInstruction,omitempty"`
}

type ChatResponse struct {
	Text string `json:"text"`
}

// ClientConfig is what GET /api/config hands to a starting client. Its
// absence is fatal to startup.
type ClientConfig struct {
	DatabaseURL   string `json:"databaseUrl"`
	Model         string `json:"model"`
	GuestTokens   int    `json:"guestTokens"`
	SignupTokens  int    `json:"signupTokens"`
	UpgradeTokens int    `json:"upgradeTokens"`
	Version       string `json:"version"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// EncodeImageFile reads an image and returns it as a data URL for display
// and for the single request that carries it.
func EncodeImageFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read image")
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	if !strings.HasPrefix(mt, "image/") {
		return "", errors.Errorf("not an image file: %s", path)
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeDataURL splits a data URL into its MIME type and raw bytes.
func DecodeDataURL(url string) (string, []byte, error) {
	if !strings.HasPrefix(url, "data:") {
		return "", nil, errors.New("not a data URL")
	}
	head, payload, ok := strings.Cut(url[len("data:"):], ",")
	if !ok {
		return "", nil, errors.New("malformed data URL")
	}
	mt := strings.TrimSuffix(head, ";base64")
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Wrap(err, "decode data URL")
	}
	return mt, raw, nil
}
