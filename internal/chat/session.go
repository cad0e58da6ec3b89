// Package chat ties the pipeline together: sessions, local persistence,
// remote sync, and the generation flow the CLI drives.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nanom-ai/nanom/internal/gemini"
)

const (
	defaultTitle  = "New chat"
	titleMaxRunes = 30
)

// Session is one conversation. LocalID identifies it on this device;
// ID is the remote row id, assigned by the backend on the first upsert
// and stable afterwards.
type Session struct {
	ID        string        `json:"id,omitempty"`
	LocalID   string        `json:"local_id"`
	Title     string        `json:"title"`
	History   []gemini.Turn `json:"history"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// UserData is the full per-identity blob held in local storage and
// mirrored to the sync backend.
type UserData struct {
	Sessions []*Session        `json:"sessions"`
	Settings map[string]string `json:"settings,omitempty"`
}

func NewSession() *Session {
	return &Session{
		LocalID:   uuid.NewString(),
		Title:     defaultTitle,
		UpdatedAt: time.Now().UTC(),
	}
}

// Append adds a turn and refreshes the timestamp. The first user turn
// names the session.
func (s *Session) Append(role, text string) {
	if s.Title == defaultTitle && role == gemini.RoleUser {
		s.Title = TitleFromPrompt(text)
	}
	s.History = append(s.History, gemini.Turn{Role: role, Text: text})
	s.UpdatedAt = time.Now().UTC()
}

// TitleFromPrompt derives a session title from the first prompt,
// truncated on rune boundaries.
func TitleFromPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultTitle
	}
	runes := []rune(prompt)
	if len(runes) <= titleMaxRunes {
		return prompt
	}
	return string(runes[:titleMaxRunes-3]) + "..."
}
