package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"semefo/internal/api"
	"semefo/internal/preflight"
	"semefo/internal/queue"
)

var titleCaser = cases.Title(language.Und)

// formatStatusLabel turns snake_case identifiers into display labels.
func formatStatusLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(stats[string(status)])})
	}
	return rows
}

var queueListHeaders = []string{"ID", "Expediente", "Session", "Kind", "Status", "Attempts", "Updated", "Detail"}

var queueListAligns = []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}

func buildQueueListRows(tasks []api.QueueTask) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			task.Expediente,
			strconv.FormatInt(task.SessionID, 10),
			task.Kind,
			formatStatusLabel(task.Status),
			fmt.Sprintf("%d/%s", task.Attempts, attemptBudget(task.MaxAttempts)),
			formatDisplayTime(task.UpdatedAt),
			taskDetail(task),
		})
	}
	return rows
}

func attemptBudget(max int) string {
	if max <= 0 {
		return "-"
	}
	return strconv.Itoa(max)
}

func taskDetail(task api.QueueTask) string {
	switch {
	case task.ErrorMessage != "":
		if task.ErrorKind != "" {
			return fmt.Sprintf("%s: %s", task.ErrorKind, truncate(task.ErrorMessage, 60))
		}
		return truncate(task.ErrorMessage, 60)
	case task.Status == string(queue.StatusPending) && task.NextAttemptAt != "":
		return "retry after " + formatDisplayTime(task.NextAttemptAt)
	case task.ArtifactPath != "":
		return task.ArtifactPath
	case task.LastState != "":
		return task.LastState
	}
	return ""
}

func formatDisplayTime(value string) string {
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func addPreflight(rep *report, results []preflight.Result) {
	for _, result := range results {
		rep.add(result.Name, severityFor(result.Passed), result.Detail)
	}
}

func addDependencies(rep *report, deps []api.DependencyStatus) {
	if len(deps) == 0 {
		return
	}
	missing := 0
	for _, dep := range deps {
		if !dep.Available && !dep.Optional {
			missing++
		}
	}
	if missing > 0 {
		rep.add("Summary", sevError, fmt.Sprintf("%d required tool(s) missing", missing))
	} else {
		rep.add("Summary", sevOK, "All required tools available")
	}
	for _, dep := range deps {
		switch {
		case dep.Available:
			rep.add(dep.Name, sevOK, fmt.Sprintf("Ready (command: %s)", dep.Command))
		case dep.Optional:
			rep.add(dep.Name, sevWarn, detailOr(dep.Detail, "not available"))
		default:
			rep.add(dep.Name, sevError, detailOr(dep.Detail, "not available"))
		}
	}
}

func detailOr(detail, fallback string) string {
	if strings.TrimSpace(detail) == "" {
		return fallback
	}
	return detail
}
