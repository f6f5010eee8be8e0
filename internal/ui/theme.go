package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

type palette struct {
	Background lipgloss.Color
	Surface    lipgloss.Color
	Text       lipgloss.Color
	Muted      lipgloss.Color
	Accent     lipgloss.Color
	AccentAlt  lipgloss.Color
	Border     lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Danger     lipgloss.Color
}

var palettes = map[string]palette{
	"catppuccin": {
		Background: lipgloss.Color("#1e1e2e"),
		Surface:    lipgloss.Color("#313244"),
		Text:       lipgloss.Color("#cdd6f4"),
		Muted:      lipgloss.Color("#a6adc8"),
		Accent:     lipgloss.Color("#cba6f7"),
		AccentAlt:  lipgloss.Color("#89b4fa"),
		Border:     lipgloss.Color("#585b70"),
		Success:    lipgloss.Color("#94e2d5"),
		Warning:    lipgloss.Color("#f9e2af"),
		Danger:     lipgloss.Color("#f38ba8"),
	},
	"dracula": {
		Background: lipgloss.Color("#282a36"),
		Surface:    lipgloss.Color("#343746"),
		Text:       lipgloss.Color("#f8f8f2"),
		Muted:      lipgloss.Color("#6272a4"),
		Accent:     lipgloss.Color("#ff79c6"),
		AccentAlt:  lipgloss.Color("#bd93f9"),
		Border:     lipgloss.Color("#44475a"),
		Success:    lipgloss.Color("#50fa7b"),
		Warning:    lipgloss.Color("#f1fa8c"),
		Danger:     lipgloss.Color("#ff5555"),
	},
	"gruvbox": {
		Background: lipgloss.Color("#282828"),
		Surface:    lipgloss.Color("#3c3836"),
		Text:       lipgloss.Color("#ebdbb2"),
		Muted:      lipgloss.Color("#a89984"),
		Accent:     lipgloss.Color("#fabd2f"),
		AccentAlt:  lipgloss.Color("#d3869b"),
		Border:     lipgloss.Color("#665c54"),
		Success:    lipgloss.Color("#b8bb26"),
		Warning:    lipgloss.Color("#fe8019"),
		Danger:     lipgloss.Color("#fb4934"),
	},
}

func paletteFor(name string) palette {
	if p, ok := palettes[name]; ok {
		return p
	}
	return palettes["catppuccin"]
}

func themeNames() []string {
	names := make([]string, 0, len(palettes))
	for k := range palettes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func nextThemeName(current string, step int) string {
	names := themeNames()
	if len(names) == 0 {
		return current
	}
	idx := 0
	for i, name := range names {
		if name == current {
			idx = i
			break
		}
	}
	idx = (idx + step) % len(names)
	if idx < 0 {
		idx += len(names)
	}
	return names[idx]
}

type styleSet struct {
	title     lipgloss.Style
	banner    lipgloss.Style
	errorBar  lipgloss.Style
	muted     lipgloss.Style
	cursor    lipgloss.Style
	favorite  lipgloss.Style
	tokenLow  lipgloss.Style
	tokenOK   lipgloss.Style
	panel     lipgloss.Style
	statusBar lipgloss.Style
}

func stylesFor(p palette) styleSet {
	return styleSet{
		title:     lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		banner:    lipgloss.NewStyle().Bold(true).Foreground(p.AccentAlt),
		errorBar:  lipgloss.NewStyle().Bold(true).Foreground(p.Danger),
		muted:     lipgloss.NewStyle().Foreground(p.Muted),
		cursor:    lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		favorite:  lipgloss.NewStyle().Foreground(p.Warning),
		tokenLow:  lipgloss.NewStyle().Bold(true).Foreground(p.Danger),
		tokenOK:   lipgloss.NewStyle().Foreground(p.Success),
		panel:     lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(p.Border).Padding(0, 1),
		statusBar: lipgloss.NewStyle().Foreground(p.Muted),
	}
}
