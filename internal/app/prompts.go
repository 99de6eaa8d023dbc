package app

import (
	"fmt"
	"strings"

	"alphamachine/gateway/internal/domain"
)

const (
	chatSystemPrompt = `You are Alpha Machine, the operations assistant for a software agency.
Answer using the workspace context below. Be direct and concrete; cite ticket
identifiers when you reference work items. If the context notes that a source
was unavailable or not found, say so instead of guessing.`

	meetingSystemPrompt = `Summarize the meeting transcript below for the team channel.
Lead with decisions, then action items with owners, then open questions.
Keep it under 300 words.`

	clientSystemPrompt = `Write a client status summary from the context below: active projects,
tickets in flight, recent meeting notes and pages. Flag anything at risk.`

	memberSystemPrompt = `Describe what this team member is working on and has recently finished,
using the ticket lists below. Mention estimates and priorities where present.`

	weeklySystemPrompt = `Write the weekly digest for the team: what shipped, what is in progress,
and what is blocked, grouped by project. Use the tickets and meeting notes below.`

	ticketSystemPrompt = `Extract the ticket(s) the user is asking for from their message.
Use the workspace context to pick existing project names and team member names
where they match. One ticket per distinct piece of work.`
)

// renderContext flattens a snapshot into the prompt section the model sees.
// Absence markers render as explicit lines so the model reports them instead
// of inventing data.
func renderContext(snapshot domain.ContextSnapshot) string {
	var b strings.Builder

	if ws := snapshot.Workspace; ws != nil {
		if len(ws.Projects) > 0 {
			b.WriteString("## Projects\n")
			for _, p := range ws.Projects {
				fmt.Fprintf(&b, "- %s (%s, %.0f%%)\n", p.Name, orDash(p.State), p.Progress*100)
			}
		}
		if len(ws.Milestones) > 0 {
			b.WriteString("## Milestones\n")
			for _, m := range ws.Milestones {
				fmt.Fprintf(&b, "- %s / %s (due %s)\n", orDash(m.ProjectName), m.Name, orDash(m.TargetDate))
			}
		}
		active := ws.ActiveIssues()
		if len(active) > 0 {
			b.WriteString("## Active tickets\n")
			for _, issue := range active {
				writeIssueLine(&b, issue)
			}
		}
		done := ws.CompletedIssues()
		if len(done) > 0 {
			b.WriteString("## Recently completed\n")
			for _, issue := range done {
				writeIssueLine(&b, issue)
			}
		}
	}

	if len(snapshot.Transcripts) > 0 {
		b.WriteString("## Recent meetings\n")
		for _, t := range snapshot.Transcripts {
			fmt.Fprintf(&b, "### %s\n%s\n", t.MeetingDate, t.FilteredContent)
		}
	}

	if m := snapshot.SpecificMeeting; m != nil {
		fmt.Fprintf(&b, "## Meeting %s\nParticipants: %s\n%s\n",
			m.MeetingDate, strings.Join(m.Participants, ", "), m.FilteredContent)
	}

	if c := snapshot.Client; c != nil {
		fmt.Fprintf(&b, "## Client: %s\n", c.Name)
		for _, p := range c.Projects {
			fmt.Fprintf(&b, "- Project %s (%s)\n", p.Name, orDash(p.State))
		}
		for _, issue := range c.Issues {
			writeIssueLine(&b, issue)
		}
		for _, page := range c.Pages {
			fmt.Fprintf(&b, "- Page: %s %s\n", page.Title, page.URL)
		}
		if c.Status != nil {
			fmt.Fprintf(&b, "Status (%s): %s\n", c.Status.UpdatedAt, c.Status.Summary)
		}
	}

	if m := snapshot.Member; m != nil {
		fmt.Fprintf(&b, "## Team member: %s\n", m.Name)
		if len(m.ActiveIssues) > 0 {
			b.WriteString("Active:\n")
			for _, issue := range m.ActiveIssues {
				writeIssueLine(&b, issue)
			}
		}
		if len(m.CompletedIssues) > 0 {
			b.WriteString("Completed:\n")
			for _, issue := range m.CompletedIssues {
				writeIssueLine(&b, issue)
			}
		}
	}

	for source, note := range snapshot.NotFound {
		fmt.Fprintf(&b, "Note: %s lookup found nothing (%s).\n", source, note)
	}
	for source, note := range snapshot.Unavailable {
		fmt.Fprintf(&b, "Note: %s is currently unavailable (%s).\n", source, note)
	}

	if b.Len() == 0 {
		return "No workspace context available."
	}
	return b.String()
}

func writeIssueLine(b *strings.Builder, issue domain.Issue) {
	fmt.Fprintf(b, "- [%s] %s", issue.Identifier, issue.Title)
	if issue.StateName != "" {
		fmt.Fprintf(b, " (%s)", issue.StateName)
	}
	if issue.AssigneeName != "" {
		fmt.Fprintf(b, " @%s", issue.AssigneeName)
	}
	if issue.ProjectName != "" {
		fmt.Fprintf(b, " / %s", issue.ProjectName)
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func systemPromptFor(kind domain.CommandKind, snapshot domain.ContextSnapshot) string {
	base := map[domain.CommandKind]string{
		domain.CommandChat:             chatSystemPrompt,
		domain.CommandSummarizeMeeting: meetingSystemPrompt,
		domain.CommandSummarizeClient:  clientSystemPrompt,
		domain.CommandTeamMember:       memberSystemPrompt,
		domain.CommandWeeklySummary:    weeklySystemPrompt,
		domain.CommandCreateTicket:     ticketSystemPrompt,
	}[kind]
	return base + "\n\n# Workspace context\n" + renderContext(snapshot)
}
