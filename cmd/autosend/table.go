package main

import (
	"strconv"
	"time"

	"github.com/harunnryd/autosend/internal/audit"
	"github.com/harunnryd/autosend/internal/jobs"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

const timeLayout = "2006-01-02 15:04:05"

type JobTableFormatter struct {
	headerStyle  lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewJobTableFormatter() *JobTableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &JobTableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *JobTableFormatter) FormatJobs(list []jobs.Job) string {
	if len(list) == 0 {
		return "No jobs found"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers("ID", "Status", "Run At", "Lead", "Draft", "Attempts")

	for _, job := range list {
		t.Row(
			job.ID,
			string(job.Status),
			job.RunAt.Local().Format(timeLayout),
			truncateString(job.LeadID, 20),
			truncateString(job.DraftID, 20),
			strconv.Itoa(job.AttemptCount)+"/"+strconv.Itoa(job.MaxAttempts),
		)
	}

	return t.String()
}

func (f *JobTableFormatter) FormatJob(job *jobs.Job) string {
	if job == nil {
		return "No job found"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.headerStyle
			}
			return f.cellStyle
		})

	t.Row("ID", job.ID)
	t.Row("Status", string(job.Status))
	t.Row("Run At", job.RunAt.Local().Format(timeLayout))
	t.Row("Workspace", job.WorkspaceID)
	t.Row("Lead", job.LeadID)
	t.Row("Trigger", job.TriggerMessageID)
	t.Row("Draft", job.DraftID)
	t.Row("Attempts", strconv.Itoa(job.AttemptCount)+"/"+strconv.Itoa(job.MaxAttempts))
	if job.LockedUntil != nil {
		t.Row("Locked Until", job.LockedUntil.Local().Format(timeLayout))
	}
	t.Row("Confidence", strconv.FormatFloat(job.Payload.Confidence, 'f', 2, 64))
	t.Row("Delay", (time.Duration(job.Payload.DelaySeconds) * time.Second).String())
	if job.Result != "" {
		t.Row("Result", truncateString(job.Result, 60))
	}
	if job.LastError != "" {
		t.Row("Last Error", truncateString(job.LastError, 60))
	}

	return t.String()
}

func (f *JobTableFormatter) FormatAudit(entries []*audit.Entry) string {
	if len(entries) == 0 {
		return "No decisions recorded"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers("Time", "Op", "Action", "Lead", "Draft/Job", "Reason")

	for _, e := range entries {
		subject := e.DraftID
		if subject == "" {
			subject = e.JobID
		}
		reason := e.Reason
		if reason == "" {
			reason = e.Message
		}
		t.Row(
			e.Timestamp.Local().Format(timeLayout),
			e.Operation,
			string(e.Action),
			truncateString(e.LeadID, 20),
			truncateString(subject, 26),
			truncateString(reason, 40),
		)
	}

	return t.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
