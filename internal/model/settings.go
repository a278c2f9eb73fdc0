package model

import "strings"

// Settings holds optional per-user overrides of the backend defaults. An
// empty field means "use whatever the backend is configured with".
type Settings struct {
	APIBaseURL string `json:"api_base_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	Model      string `json:"model,omitempty"`
}

func (s Settings) Trimmed() Settings {
	return Settings{
		APIBaseURL: strings.TrimSpace(s.APIBaseURL),
		APIKey:     strings.TrimSpace(s.APIKey),
		Model:      strings.TrimSpace(s.Model),
	}
}

func (s Settings) IsEmpty() bool {
	t := s.Trimmed()
	return t.APIBaseURL == "" && t.APIKey == "" && t.Model == ""
}
