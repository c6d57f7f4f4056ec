package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// PanelConfig is the parsed panel/category definition: embed cosmetics,
// panel copy, and the ordered category list.
type PanelConfig struct {
	EmbedColor  int
	Title       string
	Description string
	Categories  []domain.Category
}

type panelFile struct {
	EmbedColor string `yaml:"embed_color"`
	Panel      struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
	} `yaml:"panel"`
	Categories []categoryEntry `yaml:"categories"`
}

type categoryEntry struct {
	Label        string `yaml:"label"`
	Emoji        string `yaml:"emoji"`
	Value        string `yaml:"value"`
	Description  string `yaml:"description"`
	ParentID     string `yaml:"parent_id"`
	RequiresForm bool   `yaml:"requires_form"`
	RequiresRole bool   `yaml:"requires_role"`
}

// LoadPanel reads the panel definition from the configured YAML file, or
// returns the built-in defaults when no file is set.
func LoadPanel(path string) (*PanelConfig, error) {
	if path == "" {
		return defaultPanel(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read panel config: %w", err)
	}
	var file panelFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse panel config: %w", err)
	}
	return panelFromFile(file)
}

func panelFromFile(file panelFile) (*PanelConfig, error) {
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("panel config defines no categories")
	}

	color, err := parseHexColor(file.EmbedColor)
	if err != nil {
		return nil, err
	}

	cfg := &PanelConfig{
		EmbedColor:  color,
		Title:       file.Panel.Title,
		Description: file.Panel.Description,
	}
	seen := make(map[string]struct{}, len(file.Categories))
	for _, entry := range file.Categories {
		if entry.Value == "" || entry.Label == "" {
			return nil, fmt.Errorf("category %q: label and value are required", entry.Label)
		}
		if entry.ParentID == "" {
			return nil, fmt.Errorf("category %q: parent_id is required", entry.Value)
		}
		if _, dup := seen[entry.Value]; dup {
			return nil, fmt.Errorf("duplicate category value %q", entry.Value)
		}
		seen[entry.Value] = struct{}{}
		cfg.Categories = append(cfg.Categories, domain.Category{
			Label:        entry.Label,
			Emoji:        entry.Emoji,
			Value:        entry.Value,
			Description:  entry.Description,
			ParentID:     entry.ParentID,
			RequiresForm: entry.RequiresForm,
			RequiresRole: entry.RequiresRole,
		})
	}
	return cfg, nil
}

func parseHexColor(raw string) (int, error) {
	if raw == "" {
		return 0xb7ff00, nil
	}
	trimmed := strings.TrimPrefix(raw, "#")
	color, err := strconv.ParseInt(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid embed_color %q: %w", raw, err)
	}
	return int(color), nil
}

func defaultPanel() *PanelConfig {
	return &PanelConfig{
		EmbedColor:  0xb7ff00,
		Title:       "Support Center",
		Description: "We aim to provide the best support we can.\nPlease ensure you open your inquiry in the correct category below.",
		Categories: []domain.Category{
			{
				Label:        "Script Support",
				Description:  "Paid resource support",
				Emoji:        "🛠️",
				Value:        "support",
				ParentID:     "1447572284150780028",
				RequiresForm: true,
				RequiresRole: true,
			},
			{
				Label:       "Claim Role",
				Description: "Redeem your Customer role",
				Emoji:       "✅",
				Value:       "role",
				ParentID:    "1447572274415931532",
			},
			{
				Label:       "Other",
				Description: "General questions",
				Emoji:       "✉️",
				Value:       "other",
				ParentID:    "1447572314253299803",
			},
		},
	}
}
