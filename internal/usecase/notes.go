package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"

	"earshot/internal/domain"
	"earshot/internal/ports"
)

var ErrNoTranscript = errors.New("no transcript to organize")

// NoteTaker turns a finished transcript into a structured note and copies
// its markdown rendering to the clipboard.
type NoteTaker struct {
	rules     ports.RulesEngine
	organizer ports.NoteOrganizer
	clipboard ports.Clipboard
	events    ports.EventSink
}

func NewNoteTaker(rules ports.RulesEngine, organizer ports.NoteOrganizer, clipboard ports.Clipboard, events ports.EventSink) *NoteTaker {
	return &NoteTaker{rules: rules, organizer: organizer, clipboard: clipboard, events: events}
}

// Take organizes text. A clipboard failure does not fail the call; the
// result reports Copied=false instead.
func (n *NoteTaker) Take(ctx context.Context, text, credential string) (domain.NoteResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.NoteResult{}, ErrNoTranscript
	}
	if strings.TrimSpace(credential) == "" {
		n.events.SessionError(domain.ErrorCodeMissingCredential, "an API key is required to organize notes")
		return domain.NoteResult{}, ErrMissingCredential
	}

	transformed, err := n.rules.Apply(text)
	if err != nil {
		n.events.SessionError(domain.ErrorCodeRules, err.Error())
		return domain.NoteResult{}, err
	}

	note, err := n.organizer.Organize(ctx, transformed, credential)
	if err != nil {
		n.events.SessionError(domain.ErrorCodeNotes, "could not organize the transcript into a note")
		return domain.NoteResult{}, err
	}

	result := domain.NoteResult{
		Transcript: transformed,
		Note:       note,
		Markdown:   RenderNote(note),
		Copied:     true,
	}
	if n.clipboard == nil {
		result.Copied = false
		return result, nil
	}
	if err := n.clipboard.SetText(ctx, result.Markdown); err != nil {
		result.Copied = false
		n.events.SessionError(domain.ErrorCodeClipboard, "note ready but clipboard write failed")
	}
	return result, nil
}

// TranscriptText renders segments as speaker-labelled lines, one per
// non-blank segment, partial ones included.
func TranscriptText(segments []domain.Segment) string {
	var b strings.Builder
	for _, segment := range segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		label := "Me"
		if segment.Sender == domain.SenderModel {
			label = "Assistant"
		}
		b.WriteString(label + ": " + text + "\n")
	}
	return b.String()
}

// RenderNote formats a note as markdown. Empty sections are omitted.
func RenderNote(note *domain.Note) string {
	if note == nil {
		return ""
	}

	var b strings.Builder
	title := strings.TrimSpace(note.Title)
	if title == "" {
		title = "Notes"
	}
	b.WriteString("# " + title + "\n")
	if summary := strings.TrimSpace(note.Summary); summary != "" {
		b.WriteString("\n" + summary + "\n")
	}

	writeList(&b, "Topics", note.Topics)
	writeList(&b, "Action items", note.ActionItems)
	writeList(&b, "Decisions", note.Decisions)

	if sentiment := strings.TrimSpace(note.Sentiment); sentiment != "" {
		b.WriteString("\n_Sentiment: " + sentiment + "_\n")
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	items = lo.Filter(lo.Map(items, func(item string, _ int) string {
		return strings.TrimSpace(item)
	}), func(item string, _ int) bool {
		return item != ""
	})
	if len(items) == 0 {
		return
	}
	b.WriteString("\n## " + heading + "\n\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
}
