package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/dustin/go-humanize"
	servercommon "github.com/hylla/kanri/internal/adapters/server/common"
	"github.com/hylla/kanri/internal/domain"
	"gopkg.in/yaml.v3"
)

// outputFormat names one supported --format value.
type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

// parseOutputFormat validates the --format flag.
func parseOutputFormat(raw string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", formatText:
		return formatText, nil
	case formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want text, json, or yaml)", raw)
	}
}

// writeOutput encodes value in format. Text output uses renderText.
func writeOutput(w io.Writer, format outputFormat, value any, renderText func(io.Writer) error) error {
	switch format {
	case formatJSON:
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = w.Write(append(encoded, '\n'))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return renderText(w)
	}
}

var tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}

func renderProjectList(w io.Writer, list servercommon.ProjectList) error {
	if len(list.Projects) == 0 {
		_, err := fmt.Fprintln(w, "no projects")
		return err
	}
	t := newTable("ID", "SLUG", "NAME", "PRIVATE", "SPRINT")
	for _, p := range list.Projects {
		t.Row(strconv.FormatInt(p.ID, 10), p.Slug, p.Name, strconv.FormatBool(p.IsPrivate), strconv.FormatInt(p.CurrentSprintID, 10))
	}
	_, err := fmt.Fprintf(w, "%s\npage %d of %d\n", t.String(), list.Page+1, max(list.TotalPages, 1))
	return err
}

func renderBoard(w io.Writer, snap servercommon.BoardSnapshot) error {
	var b strings.Builder
	for i, col := range snap.Columns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s [%d] (%d)\n", col.Name, col.ID, len(col.Cards))
		for _, card := range col.Cards {
			b.WriteString("  " + cardLine(card) + "\n")
		}
	}
	if b.Len() == 0 {
		b.WriteString("board has no columns\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func cardLine(card servercommon.CardSummary) string {
	parts := []string{card.Ref, card.Title}
	if card.Points > 0 {
		parts = append(parts, humanize.FtoaWithDigits(card.Points, 1)+"pt")
	}
	if card.DueDate != "" {
		parts = append(parts, "due "+card.DueDate)
	}
	if card.UserStoryID > 0 {
		parts = append(parts, "story US-"+strconv.FormatInt(card.UserStoryID, 10))
	}
	return strings.Join(parts, "  ")
}

func renderProgress(w io.Writer, p servercommon.ProgressSummary) error {
	_, err := fmt.Fprintf(w, "sprint %d: %s%% (%d/%d tasks closed)\n",
		p.SprintID, humanize.FtoaWithDigits(p.Percentage, 1), p.CompletedTasks, p.TotalTasks)
	return err
}

func renderModules(w io.Writer, modules []domain.ProjectModule) error {
	t := newTable("KEY", "NAME", "ENABLED")
	for _, m := range modules {
		t.Row(m.Key, m.Name, strconv.FormatBool(m.Enabled))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// settingsView is the encoded form of domain.UserSettings.
type settingsView struct {
	Username            string `json:"username" yaml:"username"`
	FullName            string `json:"full_name" yaml:"full_name"`
	Email               string `json:"email" yaml:"email"`
	Language            string `json:"language" yaml:"language"`
	Theme               string `json:"theme" yaml:"theme"`
	Bio                 string `json:"bio,omitempty" yaml:"bio,omitempty"`
	EmailOnAssigned     bool   `json:"email_on_assigned" yaml:"email_on_assigned"`
	EmailOnMentioned    bool   `json:"email_on_mentioned" yaml:"email_on_mentioned"`
	EmailOnStatusChange bool   `json:"email_on_status_change" yaml:"email_on_status_change"`
	Digest              string `json:"digest" yaml:"digest"`
}

func newSettingsView(s domain.UserSettings) settingsView {
	return settingsView{
		Username:            s.User.Username,
		FullName:            s.User.FullName,
		Email:               s.User.Email,
		Language:            s.Language,
		Theme:               s.Theme,
		Bio:                 s.Bio,
		EmailOnAssigned:     s.Notifications.EmailOnAssigned,
		EmailOnMentioned:    s.Notifications.EmailOnMentioned,
		EmailOnStatusChange: s.Notifications.EmailOnStatusChange,
		Digest:              string(s.Notifications.Digest),
	}
}

func renderSettings(w io.Writer, v settingsView) error {
	rows := [][2]string{
		{"username", v.Username},
		{"full name", v.FullName},
		{"email", v.Email},
		{"language", v.Language},
		{"theme", v.Theme},
		{"bio", v.Bio},
		{"email on assigned", strconv.FormatBool(v.EmailOnAssigned)},
		{"email on mentioned", strconv.FormatBool(v.EmailOnMentioned)},
		{"email on status change", strconv.FormatBool(v.EmailOnStatusChange)},
		{"digest", v.Digest},
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%-23s %s\n", row[0]+":", row[1])
	}
	_, err := io.WriteString(w, b.String())
	return err
}
