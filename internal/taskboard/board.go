package taskboard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/warrenhq/warren/pkg/fleet"
)

// Board codec: each agent's tasks round-trip through one markdown file that
// doubles as the durable store and the human-readable board. The canonical
// model is always the in-memory task map; the file is rewritten wholesale on
// every mutation and re-parsed wholesale on external edits. Partial merges
// are never attempted.
//
// Layout:
//
//	# Tasks: builder-1
//
//	## In Progress
//
//	- [~] Write the parser `task-1`
//	  - priority: HIGH
//	  - progress: 40
//	  - depends: task-0
//	  - requested-by: planner
//	  - created: 2026-09-01T12:00:00Z
//	  - updated: 2026-09-01T12:30:00Z
//	  - started: 2026-09-01T12:10:00Z
//	  - note: single line, newlines escaped as \n
//
// The section a task sits in is its status; the checkbox marker is kept in
// sync for readers but the section wins on parse.

var sectionOrder = []fleet.TaskStatus{
	fleet.TaskStatusTodo,
	fleet.TaskStatusInProgress,
	fleet.TaskStatusBlocked,
	fleet.TaskStatusDone,
	fleet.TaskStatusCancelled,
}

var sectionTitles = map[fleet.TaskStatus]string{
	fleet.TaskStatusTodo:       "Todo",
	fleet.TaskStatusInProgress: "In Progress",
	fleet.TaskStatusBlocked:    "Blocked",
	fleet.TaskStatusDone:       "Done",
	fleet.TaskStatusCancelled:  "Cancelled",
}

var statusMarkers = map[fleet.TaskStatus]string{
	fleet.TaskStatusTodo:       " ",
	fleet.TaskStatusInProgress: "~",
	fleet.TaskStatusBlocked:    "!",
	fleet.TaskStatusDone:       "x",
	fleet.TaskStatusCancelled:  "-",
}

// EncodeBoard renders an agent's tasks to board markdown. Tasks are grouped
// by status section and ordered by creation time (ID as tie-break) so the
// same model always produces the same bytes.
func EncodeBoard(agentID string, tasks []*fleet.Task) []byte {
	byStatus := make(map[fleet.TaskStatus][]*fleet.Task)
	for _, task := range tasks {
		byStatus[task.Status] = append(byStatus[task.Status], task)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Tasks: %s\n", agentID)

	for _, status := range sectionOrder {
		section := byStatus[status]
		if len(section) == 0 {
			continue
		}
		sort.Slice(section, func(i, j int) bool {
			if !section[i].CreatedAt.Equal(section[j].CreatedAt) {
				return section[i].CreatedAt.Before(section[j].CreatedAt)
			}
			return section[i].ID < section[j].ID
		})

		fmt.Fprintf(&b, "\n## %s\n", sectionTitles[status])
		for _, task := range section {
			writeTask(&b, task)
		}
	}

	return []byte(b.String())
}

func writeTask(b *strings.Builder, task *fleet.Task) {
	fmt.Fprintf(b, "\n- [%s] %s `%s`\n", statusMarkers[task.Status], task.Title, task.ID)
	fmt.Fprintf(b, "  - priority: %s\n", task.Priority)
	fmt.Fprintf(b, "  - progress: %d\n", task.Progress)
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(b, "  - depends: %s\n", strings.Join(task.Dependencies, ", "))
	}
	if task.RequestedBy != "" {
		fmt.Fprintf(b, "  - requested-by: %s\n", task.RequestedBy)
	}
	fmt.Fprintf(b, "  - created: %s\n", task.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "  - updated: %s\n", task.UpdatedAt.UTC().Format(time.RFC3339))
	if task.StartedAt != nil {
		fmt.Fprintf(b, "  - started: %s\n", task.StartedAt.UTC().Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(b, "  - completed: %s\n", task.CompletedAt.UTC().Format(time.RFC3339))
	}
	if task.Description != "" {
		fmt.Fprintf(b, "  - note: %s\n", escapeNote(task.Description))
	}
}

func escapeNote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func unescapeNote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// DecodeBoard parses board markdown back into tasks. Returns the agent ID
// from the title line. A structurally broken file fails as a whole; callers
// keep their previous model (last-good-state policy).
func DecodeBoard(data []byte) (string, []*fleet.Task, error) {
	lines := strings.Split(string(data), "\n")

	var (
		agentID    string
		tasks      []*fleet.Task
		current    *fleet.Task
		status     fleet.TaskStatus
		haveStatus bool
	)

	titleByStatus := make(map[string]fleet.TaskStatus, len(sectionTitles))
	for st, title := range sectionTitles {
		titleByStatus[title] = st
	}

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := current.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", current.ID, err)
		}
		tasks = append(tasks, current)
		current = nil
		return nil
	}

	for lineNo, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		switch {
		case strings.HasPrefix(line, "# Tasks: "):
			agentID = strings.TrimSpace(strings.TrimPrefix(line, "# Tasks: "))

		case strings.HasPrefix(line, "## "):
			if err := flush(); err != nil {
				return "", nil, err
			}
			title := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			st, ok := titleByStatus[title]
			if !ok {
				return "", nil, fmt.Errorf("line %d: unknown section %q", lineNo+1, title)
			}
			status = st
			haveStatus = true

		case strings.HasPrefix(line, "- ["):
			if err := flush(); err != nil {
				return "", nil, err
			}
			if !haveStatus {
				return "", nil, fmt.Errorf("line %d: task before any section", lineNo+1)
			}
			task, err := parseTaskLine(line)
			if err != nil {
				return "", nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			task.AgentID = agentID
			task.Status = status
			current = task

		case strings.HasPrefix(line, "  - "):
			if current == nil {
				return "", nil, fmt.Errorf("line %d: detail line outside a task", lineNo+1)
			}
			if err := parseDetailLine(current, strings.TrimPrefix(line, "  - ")); err != nil {
				return "", nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}

		case strings.TrimSpace(line) == "":
			// blank separator

		default:
			return "", nil, fmt.Errorf("line %d: unrecognized content %q", lineNo+1, line)
		}
	}

	if err := flush(); err != nil {
		return "", nil, err
	}
	if agentID == "" {
		return "", nil, fmt.Errorf("missing board title line")
	}

	return agentID, tasks, nil
}

// parseTaskLine handles `- [x] Title `id``.
func parseTaskLine(line string) (*fleet.Task, error) {
	rest := line[len("- ["):]
	if len(rest) < 2 || rest[1] != ']' {
		return nil, fmt.Errorf("malformed task marker")
	}
	rest = strings.TrimSpace(rest[2:])

	tickOpen := strings.LastIndex(rest, "`")
	if tickOpen <= 0 || !strings.HasSuffix(rest, "`") {
		return nil, fmt.Errorf("task line missing id")
	}
	body := strings.TrimSuffix(rest, "`")
	tickOpen = strings.LastIndex(body, "`")
	if tickOpen < 0 {
		return nil, fmt.Errorf("task line missing id")
	}

	return &fleet.Task{
		Title: strings.TrimSpace(body[:tickOpen]),
		ID:    body[tickOpen+1:],
	}, nil
}

func parseDetailLine(task *fleet.Task, detail string) error {
	key, value, found := strings.Cut(detail, ": ")
	if !found {
		// Valueless detail like "note:" for an empty note.
		key = strings.TrimSuffix(detail, ":")
		value = ""
	}

	switch key {
	case "priority":
		task.Priority = fleet.Priority(value)
	case "progress":
		p, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid progress %q", value)
		}
		task.Progress = p
	case "depends":
		for _, dep := range strings.Split(value, ",") {
			if dep = strings.TrimSpace(dep); dep != "" {
				task.Dependencies = append(task.Dependencies, dep)
			}
		}
	case "requested-by":
		task.RequestedBy = value
	case "created":
		return parseTimeInto(&task.CreatedAt, value)
	case "updated":
		return parseTimeInto(&task.UpdatedAt, value)
	case "started":
		t := time.Time{}
		if err := parseTimeInto(&t, value); err != nil {
			return err
		}
		task.StartedAt = &t
	case "completed":
		t := time.Time{}
		if err := parseTimeInto(&t, value); err != nil {
			return err
		}
		task.CompletedAt = &t
	case "note":
		task.Description = unescapeNote(value)
	default:
		return fmt.Errorf("unknown detail key %q", key)
	}
	return nil
}

func parseTimeInto(dst *time.Time, value string) error {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", value)
	}
	*dst = t
	return nil
}
