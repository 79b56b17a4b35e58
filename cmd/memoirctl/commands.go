package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/airenas/memoir/internal/pkg/export"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <projectID>",
		Short: "List project jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store) error {
				jobs, err := st.LoadJobs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobsTable(jobs))
				return nil
			})
		},
	}
}

func jobsTable(jobs []*persistence.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{j.ID, j.Type.String(), j.Status.String(), strconv.Itoa(j.Progress) + "%",
			strconv.Itoa(j.Attempts), formatTime(&j.Created), formatTime(j.Completed), j.Error})
	}
	return renderTable([]string{"ID", "Type", "Status", "Progress", "Attempts", "Created", "Completed", "Error"},
		rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}

func newCycleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle <projectID>",
		Short: "Show fan-in counters of the current cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store) error {
				p, err := st.LoadProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if p.CycleID == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Project is %s, not submitted\n", p.Status)
					return nil
				}
				c, err := st.LoadCycle(cmd.Context(), p.CycleID)
				if err != nil {
					return err
				}
				open, err := openStageJobs(cmd.Context(), st, p.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cycleTable(p, c, open))
				return nil
			})
		},
	}
}

var stages = [...]status.JobType{status.STT, status.Extract, status.Write}

func openStageJobs(ctx context.Context, st store, projectID string) (map[status.JobType]int, error) {
	res := map[status.JobType]int{}
	for _, t := range stages {
		n, err := st.CountIncomplete(ctx, projectID, t)
		if err != nil {
			return nil, err
		}
		res[t] = n
	}
	return res, nil
}

func cycleTable(p *persistence.Project, c *persistence.Cycle, open map[status.JobType]int) string {
	rows := [][]string{
		{"Project", p.ID},
		{"Status", p.Status.String()},
		{"Cycle", c.ID},
		{"Policy", string(c.Policy)},
		{"Clips", strconv.Itoa(c.Clips)},
		{"Required", strconv.Itoa(pipeline.MinRequired(c))},
		{"Pending", strconv.Itoa(c.Pending)},
		{"Succeeded", strconv.Itoa(c.Succeeded)},
		{"Failed", strconv.Itoa(c.Failed)},
		{"Decision", pipeline.Decide(c).String()},
		{"Extract job", c.ExtractJobID},
		{"Write job", c.WriteJobID},
		{"Cancelled", strconv.FormatBool(c.Cancelled)},
	}
	for _, t := range stages {
		rows = append(rows, []string{"Open " + t.String() + " jobs", strconv.Itoa(open[t])})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func newDraftsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drafts <projectID>",
		Short: "List draft versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store) error {
				drafts, err := st.LoadDrafts(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(drafts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No drafts")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), draftsTable(drafts))
				return nil
			})
		},
	}
}

func draftsTable(drafts []*persistence.Draft) string {
	rows := make([][]string, 0, len(drafts))
	for _, d := range drafts {
		active := ""
		if d.Active {
			active = "*"
		}
		rows = append(rows, []string{strconv.Itoa(d.Version), active, d.ID, d.Title, strconv.Itoa(len(d.Chapters)),
			strconv.Itoa(d.WordCount), formatTime(&d.Created)})
	}
	return renderTable([]string{"Version", "Active", "ID", "Title", "Chapters", "Words", "Created"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <projectID>",
		Short: "Enqueue an export of the active draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store) error {
				d, err := st.LoadActiveDraft(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("can't load active draft: %w", err)
				}
				j, err := st.Enqueue(cmd.Context(), &persistence.EnqueueRequest{ProjectID: d.ProjectID,
					Type: f.JobType(), DraftID: d.ID, Payload: func(jobID string) interface{} {
						return &messages.ExportMessage{JobMessage: messages.NewJobMessage(d.ProjectID, "", jobID),
							DraftID: d.ID, Format: string(f)}
					}})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s job %s for draft v%d\n", j.Type, j.ID, d.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.DOCX), "Export format: pdf or docx")
	return cmd
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply db migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd.Context(), true, func(st store) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Migrated")
				return nil
			})
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
