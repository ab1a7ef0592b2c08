package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"earshot/internal/domain"
	"earshot/internal/logging"
)

const DefaultNotesModel = "gemini-2.5-flash"

const notesInstruction = `You organize raw conversation transcripts into concise notes.
Return a short title, a two or three sentence summary, the main topics, concrete action items,
decisions that were made and the overall sentiment. Use the transcript's language.
Leave a list empty rather than inventing content.`

// NotesConfig controls the note organizer.
type NotesConfig struct {
	Model string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
	Logger  *slog.Logger
}

// NoteOrganizer implements ports.NoteOrganizer with a Gemini text model.
type NoteOrganizer struct {
	cfg    NotesConfig
	logger *slog.Logger
}

func NewNoteOrganizer(cfg NotesConfig) *NoteOrganizer {
	if cfg.Model == "" {
		cfg.Model = DefaultNotesModel
	}
	return &NoteOrganizer{cfg: cfg, logger: logging.OrDiscard(cfg.Logger)}
}

var noteSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"summary":     {Type: genai.TypeString},
		"topics":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"actionItems": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"decisions":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"sentiment":   {Type: genai.TypeString},
	},
	Required: []string{"title", "summary", "topics", "actionItems", "decisions", "sentiment"},
}

// Organize asks the model for a structured note about text.
func (o *NoteOrganizer) Organize(ctx context.Context, text, credential string) (*domain.Note, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      credential,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: o.cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, o.cfg.Model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(notesInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    noteSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("note request failed: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, errors.New("note model returned no content")
	}
	note, err := parseNote(raw)
	if err != nil {
		o.logger.Debug("unparseable note response", slog.String("body", raw))
		return nil, err
	}
	return note, nil
}

func parseNote(raw string) (*domain.Note, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var note domain.Note
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return nil, fmt.Errorf("failed to decode note: %w", err)
	}
	if strings.TrimSpace(note.Title) == "" && strings.TrimSpace(note.Summary) == "" {
		return nil, errors.New("note has neither title nor summary")
	}
	return &note, nil
}
