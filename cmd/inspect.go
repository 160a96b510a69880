package cmd

import (
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"lesson-worker/config"
	"lesson-worker/dto"
	"lesson-worker/repository"
	"lesson-worker/service"
	"sort"
	"strings"
	"time"
)

func journalCmd(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "journal <lesson-id>",
		Short: "print a lesson's journal and its derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lessonId, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid lesson id: %w", err)
			}
			ctx := cmd.Context()
			queries := service.NewQueries(repository.NewRepo(config.DB))

			status, err := queries.LessonStatus(ctx, lessonId)
			if err != nil {
				return err
			}
			entries, err := queries.Journal(ctx, lessonId)
			if err != nil {
				return err
			}
			derived, consistent, err := queries.Derived(ctx, lessonId)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "lesson %s: %s %d%% (generation %d)\n", lessonId, status.ProcessingStatus, status.ProgressPercent, status.Generation)
			fmt.Fprintf(out, "journal says %s %d%%", derived.Status, derived.Progress)
			if !consistent {
				fmt.Fprint(out, " (cached status disagrees)")
			}
			fmt.Fprintln(out)
			if status.Error != "" {
				fmt.Fprintf(out, "error: %s\n", status.Error)
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Step", "Action", "Gen", "When", "Context"},
				journalRows(entries, time.Now()),
				0, 3,
			))
			return nil
		},
	}
}

func progressCmd(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <video-id>",
		Short: "print a video's weighted progress and sub-tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoId, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid video id: %w", err)
			}
			repo := repository.NewRepo(config.DB)
			progress, err := service.NewQueries(repo).VideoProgress(cmd.Context(), videoId)
			if err != nil {
				return err
			}
			video, err := repo.FindVideoById(cmd.Context(), videoId)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "video %s: %s %d%%", videoId, progress.Status, progress.Progress)
			if video.FileSize != nil {
				fmt.Fprintf(out, ", %s", humanize.Bytes(uint64(*video.FileSize)))
			}
			fmt.Fprintf(out, ", updated %s\n", humanize.Time(progress.UpdatedAt))
			fmt.Fprintln(out, renderTable(
				[]string{"Task", "Status", "Progress", "Started", "Error"},
				taskRows(progress.Tasks, time.Now()),
				2,
			))
			return nil
		},
	}
}

// journalRows lists entries oldest first.
func journalRows(entries []dto.JournalEntry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		rows = append(rows, []string{
			fmt.Sprint(e.Id),
			e.StepName,
			e.Action,
			fmt.Sprint(e.Generation),
			humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
			formatContext(e.Context),
		})
	}
	return rows
}

func taskRows(tasks []dto.SubTaskProgress, now time.Time) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		started := "-"
		if t.StartedAt != nil {
			started = humanize.RelTime(*t.StartedAt, now, "ago", "from now")
		}
		errText := ""
		if t.Error != nil {
			errText = *t.Error
		}
		rows = append(rows, []string{t.Name, t.Status, fmt.Sprintf("%d%%", t.Progress), started, errText})
	}
	return rows
}

// formatContext renders a journal context as sorted key=value pairs.
func formatContext(ctx map[string]interface{}) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return strings.Join(parts, " ")
}
