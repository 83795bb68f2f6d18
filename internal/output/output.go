// Package output provides styled terminal output helpers (success, error,
// warning, todo formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Strikethrough(true)
	openStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
)

// Out is where the helpers print. Tests swap it for a buffer.
var Out io.Writer = os.Stdout

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Fprintln(Out, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Fprintln(Out, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Fprintln(Out, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Fprintf(Out, format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, string(data))
	return nil
}

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Fprintln(Out, string(data))
}

// ErrorCode returns the stable code for err: the apperr kind when it has one.
func ErrorCode(err error) string {
	return string(apperr.KindOf(err))
}

// Message returns the user-facing text for err
func Message(err error) string {
	return apperr.Message(err)
}

// Checkbox returns "[x]" or "[ ]"
func Checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// FormatTodoShort formats a todo on one line: id, checkbox, text, age.
func FormatTodoShort(t models.Todo) string {
	var parts []string
	parts = append(parts, titleStyle.Render(ShortID(t.ID)))
	if t.Done {
		parts = append(parts, doneStyle.Render(Checkbox(true)+" "+t.Text))
	} else {
		parts = append(parts, openStyle.Render(Checkbox(false))+" "+t.Text)
	}
	parts = append(parts, subtleStyle.Render(FormatTimeAgo(t.CreatedAt)))
	return strings.Join(parts, "  ")
}

// FormatTodoList formats todos one per line with a done/total footer.
func FormatTodoList(todos []models.Todo) string {
	if len(todos) == 0 {
		return subtleStyle.Render("No todos.")
	}
	var sb strings.Builder
	for _, t := range todos {
		sb.WriteString(FormatTodoShort(t))
		sb.WriteString("\n")
	}
	sb.WriteString(subtleStyle.Render(Summary(todos)))
	return sb.String()
}

// Summary returns "N of M done".
func Summary(todos []models.Todo) string {
	return fmt.Sprintf("%d of %d done", len(models.Completed(todos)), len(todos))
}

// TodoMarkdown renders todos as a markdown task list for glamour.
func TodoMarkdown(owner string, todos []models.Todo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Todos for %s\n\n", owner)
	if len(todos) == 0 {
		sb.WriteString("_Nothing to do._\n")
		return sb.String()
	}
	for _, t := range todos {
		fmt.Fprintf(&sb, "- %s %s `%s`\n", Checkbox(t.Done), escapeMarkdown(t.Text), ShortID(t.ID))
	}
	fmt.Fprintf(&sb, "\n%s\n", Summary(todos))
	return sb.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "#", `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// ShortID shortens a todo id to 8 characters or returns it as-is if shorter
func ShortID(id models.TodoID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nFAILED:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
