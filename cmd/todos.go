package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/input"
	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/output"
	"github.com/marcus/todos/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// listCtx is an open, loaded todo list for one command.
type listCtx struct {
	ctx context.Context
	st  *pipeline.Store[feature.SessionState]
}

func (c listCtx) todos() []models.Todo {
	if s := c.st.State(); s.Authed != nil {
		return s.Authed.List.Todos
	}
	return nil
}

func (c listCtx) apply(msg tea.Msg) (feature.TodoListState, error) {
	return apply(c.ctx, c.st, msg)
}

// withList opens the signed in user's list and runs fn against it.
func withList(fn func(c listCtx) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	st, stop, err := a.openList(ctx)
	if err != nil {
		output.Error("%s", output.Message(err))
		return err
	}
	defer stop()
	return fn(listCtx{ctx: ctx, st: st})
}

// withTodo is withList for commands that target one todo by id or prefix.
func withTodo(ref string, fn func(c listCtx, t models.Todo) error) error {
	return withList(func(c listCtx) error {
		t, err := resolveID(c.todos(), ref)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		return fn(c, t)
	})
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List todos",
	GroupID: "core",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		pretty, _ := cmd.Flags().GetBool("pretty")
		return withList(func(c listCtx) error {
			s := c.st.State()
			todos := s.Authed.List.Todos
			switch {
			case jsonOut:
				if todos == nil {
					todos = []models.Todo{}
				}
				return output.JSON(todos)
			case pretty:
				output.Info("%s", output.RenderTodos(s.Authed.Session.DisplayName(), todos))
			default:
				output.Info("%s", output.FormatTodoList(todos))
			}
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add [text...]",
	Short: "Add a todo",
	Long: `Add a todo. The words form its text; with none it is "Untitled".
Use - to add one todo per line of stdin, or @file for one per line of a file.`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		texts, err := input.Texts(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withList(func(c listCtx) error {
			for _, text := range texts {
				l, err := c.apply(feature.CreateTodo{Text: text})
				if err != nil {
					output.Error("add: %s", output.Message(err))
					return err
				}
				output.Success("Added %s %q", output.ShortID(l.LastCreated), models.Draft{Text: text}.Normalize().Text)
			}
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id> <text...>",
	Short:   "Change a todo's text",
	GroupID: "core",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		return withTodo(args[0], func(c listCtx, t models.Todo) error {
			if _, err := c.apply(feature.ItemEdited{ID: t.ID, Field: models.FieldText, Value: text}); err != nil {
				output.Error("edit: %s", output.Message(err))
				return err
			}
			output.Success("Updated %s", output.ShortID(t.ID))
			return nil
		})
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	Short:   "Mark a todo done",
	GroupID: "core",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return withTodo(args[0], func(c listCtx, t models.Todo) error {
			if t.Done == !undo {
				output.Info("%s already %s", output.ShortID(t.ID), doneWord(t.Done))
				return nil
			}
			if _, err := c.apply(feature.ItemEdited{ID: t.ID, Field: models.FieldDone, Value: !undo}); err != nil {
				output.Error("done: %s", output.Message(err))
				return err
			}
			output.Success("Marked %s %s", output.ShortID(t.ID), doneWord(!undo))
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a todo",
	GroupID: "core",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTodo(args[0], func(c listCtx, t models.Todo) error {
			if _, err := c.apply(feature.ItemDeleteRequested{ID: t.ID}); err != nil {
				output.Error("rm: %s", output.Message(err))
				return err
			}
			output.Success("Deleted %s", output.ShortID(t.ID))
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Delete every completed todo",
	GroupID: "core",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		return withList(func(c listCtx) error {
			s, err := c.st.Send(c.ctx, feature.ClearCompletedRequested{})
			if err != nil {
				return err
			}
			p := s.Authed.List.Confirm
			if p == nil || p.Count == 0 {
				c.st.Dispatch(feature.DismissPrompt{})
				output.Info("No completed todos.")
				return nil
			}

			if !yes {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					c.st.Dispatch(feature.DismissPrompt{})
					return fmt.Errorf("refusing to delete %d todos without --yes", p.Count)
				}
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Delete %d completed todos?", p.Count)).
					Affirmative("Delete").
					Negative("Keep").
					Value(&confirmed).
					Run()
				if err != nil || !confirmed {
					c.st.Dispatch(feature.DismissPrompt{})
					output.Info("Nothing deleted.")
					return nil
				}
			}

			l, err := c.apply(feature.ClearCompletedConfirmed{})
			deleted := l.LastCleared.Deleted()
			if len(deleted) > 0 {
				output.Success("Deleted %d completed todos", len(deleted))
			}
			if failed := l.LastCleared.Failed(); len(failed) > 0 {
				var lines []string
				for _, f := range failed {
					lines = append(lines, fmt.Sprintf("%s: %s", output.ShortID(f.ID), output.Message(f.Err)))
				}
				output.Warning("%d could not be deleted", len(failed))
				output.Info("%s", strings.Join(output.BulletList(lines, 2), "\n"))
			}
			return err
		})
	},
}

func doneWord(done bool) string {
	if done {
		return "done"
	}
	return "not done"
}

func init() {
	listCmd.Flags().Bool("json", false, "print the list as JSON")
	listCmd.Flags().Bool("pretty", false, "render the list as markdown")
	doneCmd.Flags().Bool("undo", false, "mark the todo not done")
	clearCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(clearCmd)
}
