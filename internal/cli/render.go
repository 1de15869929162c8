package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	apiclient "github.com/blenvi/blenvi/pkg/api/client"
)

var (
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle    = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("8"))
)

func renderTeams(teams []apiclient.Team, sel apiclient.Selection) string {
	var b strings.Builder
	for _, t := range teams {
		marker := "  "
		name := t.Name
		if t.ID == sel.TeamID {
			marker = "* "
			name = selectedStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%s %s %s\n", marker, headingStyle.Render(t.ID), name, mutedStyle.Render(t.Plan+" · "+t.Role))
		for _, p := range t.Projects {
			pm := "    "
			pname := p.Name
			if t.ID == sel.TeamID && p.ID == sel.ProjectID {
				pm = "  * "
				pname = selectedStyle.Render(pname)
			}
			fmt.Fprintf(&b, "%s%s %s %s\n", pm, p.ID, pname, mutedStyle.Render(p.Status))
		}
	}
	return b.String()
}

func renderSelection(sel apiclient.Selection) string {
	team, project := "none", "none"
	if sel.Team != nil {
		team = sel.Team.Name + " (" + sel.Team.ID + ")"
	}
	if sel.Project != nil {
		project = sel.Project.Name + " (" + sel.Project.ID + ")"
	}
	return labelStyle.Render("team") + team + "\n" + labelStyle.Render("project") + project + "\n"
}

func renderAccount(acct apiclient.Account) string {
	var b strings.Builder
	title := acct.Email
	if acct.Editing {
		title += " " + mutedStyle.Render("(editing)")
	}
	fmt.Fprintf(&b, "%s %s\n", headingStyle.Render("["+acct.Initials+"]"), title)
	rows := [][2]string{
		{"firstname", acct.Profile.FirstName},
		{"lastname", acct.Profile.LastName},
		{"username", acct.Profile.Username},
		{"bio", acct.Profile.Bio},
		{"avatar", acct.DisplayAvatar},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render(r[0]), r[1])
	}
	return b.String()
}

func renderIntegration(def apiclient.Definition, cfg apiclient.IntegrationConfig) string {
	var b strings.Builder
	state := "not configured"
	if cfg.Configured {
		state = "disabled"
		if cfg.Enabled {
			state = "enabled"
		}
	}
	fmt.Fprintf(&b, "%s %s\n", headingStyle.Render(def.Name), mutedStyle.Render(def.Category+" · "+state))
	if def.Description != "" {
		fmt.Fprintln(&b, def.Description)
	}
	for _, f := range def.Fields {
		label := f.Label
		if f.Required {
			label += "*"
		}
		fmt.Fprintf(&b, "%s%s\n", lipgloss.NewStyle().Width(24).Render(label), cfg.Values[f.Key])
	}
	return b.String()
}
