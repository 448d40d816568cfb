package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/easyvol/csvimport/internal/bootstrap"
	"github.com/easyvol/csvimport/internal/config"
	"github.com/easyvol/csvimport/internal/core"
	"github.com/easyvol/csvimport/internal/database"
	"github.com/easyvol/csvimport/internal/logging"
)

// cli carries state shared by the subcommands.
type cli struct {
	out    io.Writer
	asJSON bool

	cfg *config.Config
	app *bootstrap.App
}

func newRootCmd() *cobra.Command {
	c := &cli{out: os.Stdout}

	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Preview and run CSV imports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Print results as JSON")

	root.AddCommand(
		c.previewCmd(),
		c.runCmd(),
		c.statusCmd(),
		c.jobsCmd(),
		c.rowsCmd(),
		c.typesCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	c.out = cmd.OutOrStdout()

	// Overload so a local .env wins over the shell, matching the server.
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg

	// Logs go to stderr so stdout stays parseable.
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	return nil
}

func (c *cli) service(ctx context.Context) (*core.Service, error) {
	if c.app == nil {
		app, err := bootstrap.Open(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		c.app = app
	}
	return c.app.Service, nil
}

// parseMappings turns repeated "Header=field" flags into overrides.
// The last "=" separates the header from the field, so headers may contain "=".
func parseMappings(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		i := strings.LastIndex(p, "=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid --map %q: want HEADER=field", p)
		}
		out[strings.TrimSpace(p[:i])] = strings.TrimSpace(p[i+1:])
	}
	return out, nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table(header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

// ---------------------------------------------------------------------------
// preview / run
// ---------------------------------------------------------------------------

func (c *cli) previewCmd() *cobra.Command {
	var (
		importType string
		maps       []string
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Show detected format, mapping and sample rows without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseMappings(maps)
			if err != nil {
				return err
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := svc.Preview(cmd.Context(), core.PreviewRequest{
				FileName:   filepath.Base(args[0]),
				Data:       f,
				ImportType: core.ImportType(importType),
				Overrides:  overrides,
			})
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(res)
			}
			return c.printPreview(res)
		},
	}
	cmd.Flags().StringVar(&importType, "type", "", "Import type (required)")
	cmd.Flags().StringArrayVar(&maps, "map", nil, "Column override HEADER=field; repeatable, field - ignores the column")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (c *cli) printPreview(res *core.PreviewResult) error {
	fmt.Fprintf(c.out, "file:      %s\n", res.FileName)
	fmt.Fprintf(c.out, "encoding:  %s\n", res.Encoding)
	fmt.Fprintf(c.out, "delimiter: %q\n", res.Delimiter)
	fmt.Fprintf(c.out, "rows:      %d\n\n", res.TotalRows)

	tw := c.table("COLUMN", "FIELD", "TABLE", "MATCH")
	for _, e := range res.Mapping {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.SourceHeader, e.TargetField, e.TargetTable, e.Match)
	}
	for _, h := range res.Unmapped {
		fmt.Fprintf(tw, "%s\t-\t\t\n", h)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Missing) > 0 {
		fmt.Fprintf(c.out, "\nmissing required fields: %s\n", strings.Join(res.Missing, ", "))
	}

	fmt.Fprintln(c.out)
	tw = c.table("ROW", "ACTION", "ERROR")
	for _, s := range res.SampleRows {
		action := ""
		if s.Decision != nil {
			action = string(s.Decision.Action)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.RowNumber, action, s.Error)
	}
	return tw.Flush()
}

func (c *cli) runCmd() *cobra.Command {
	var (
		importType string
		maps       []string
		update     bool
		by         string
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Import a file, one transaction per row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseMappings(maps)
			if err != nil {
				return err
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			job, runErr := svc.RunImport(cmd.Context(), core.RunRequest{
				FileName:          filepath.Base(args[0]),
				Data:              f,
				ImportType:        core.ImportType(importType),
				Overrides:         overrides,
				UpdateOnDuplicate: update,
				CreatedBy:         by,
			})
			if job != nil {
				if err := c.printJob(job); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&importType, "type", "", "Import type (required)")
	cmd.Flags().StringArrayVar(&maps, "map", nil, "Column override HEADER=field; repeatable")
	cmd.Flags().BoolVar(&update, "update", false, "Update records that already exist instead of skipping them")
	cmd.Flags().StringVar(&by, "by", os.Getenv("USER"), "Operator recorded on the job")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (c *cli) printJob(job *core.ImportJob) error {
	if c.asJSON {
		return c.printJSON(job)
	}
	fmt.Fprintf(c.out, "job:      %s\n", job.ID)
	fmt.Fprintf(c.out, "type:     %s\n", job.ImportType)
	fmt.Fprintf(c.out, "file:     %s\n", job.SourceFileName)
	fmt.Fprintf(c.out, "status:   %s (%d%%)\n", job.Status, job.Percent())
	fmt.Fprintf(c.out, "rows:     %d total, %d imported (%d updated), %d skipped, %d failed\n",
		job.TotalRows, job.ImportedRows, job.UpdatedRows, job.SkippedRows, job.ErrorRows)
	if job.ErrorMessage != "" {
		fmt.Fprintf(c.out, "error:    %s\n", job.ErrorMessage)
	}
	return nil
}

// ---------------------------------------------------------------------------
// status / jobs / rows / types
// ---------------------------------------------------------------------------

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a job's status and counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			job, err := svc.GetJobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJob(job)
		},
	}
}

func (c *cli) jobsCmd() *cobra.Command {
	var (
		importType string
		status     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := core.JobFilter{ImportType: core.ImportType(importType), Status: core.JobStatus(status), Limit: limit}
			if filter.ImportType != "" && !filter.ImportType.Valid() {
				return &core.UnknownImportTypeError{ImportType: filter.ImportType}
			}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := svc.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(jobs)
			}
			tw := c.table("ID", "TYPE", "STATUS", "TOTAL", "IMPORTED", "SKIPPED", "FAILED", "CREATED")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n", j.ID, j.ImportType, j.Status,
					j.TotalRows, j.ImportedRows, j.SkippedRows, j.ErrorRows, j.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&importType, "type", "", "Only jobs of this import type")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs")
	return cmd
}

func (c *cli) rowsCmd() *cobra.Command {
	var outcome string
	cmd := &cobra.Command{
		Use:   "rows JOB_ID",
		Short: "List the per-row results of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch core.Outcome(outcome) {
			case "", core.OutcomeImported, core.OutcomeSkipped, core.OutcomeFailed:
			default:
				return fmt.Errorf("unknown outcome %q", outcome)
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.RowResults(cmd.Context(), args[0], core.RowResultFilter{Outcome: core.Outcome(outcome)})
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(rows)
			}
			tw := c.table("ROW", "OUTCOME", "ACTION", "COLUMNS", "MESSAGE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.RowNumber, r.Outcome, r.Action,
					strings.Join(r.Columns, ","), r.ErrorMessage)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only rows with this outcome: imported, skipped or failed")
	return cmd
}

func (c *cli) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List import types and their fields",
		Args:  cobra.NoArgs,
		// Definitions are static; no database needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.out = cmd.OutOrStdout()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []core.TypeInfo
			for _, def := range core.All() {
				infos = append(infos, core.Describe(def))
			}
			if c.asJSON {
				return c.printJSON(infos)
			}
			tw := c.table("TYPE", "FIELD", "TABLE", "KIND", "REQUIRED", "ALIASES")
			for _, info := range infos {
				for _, f := range info.Fields {
					req := ""
					if f.Required {
						req = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", info.Type, f.Name, f.Table, f.Kind, req,
						strings.Join(f.Aliases, ", "))
				}
			}
			return tw.Flush()
		},
	}
}

// ---------------------------------------------------------------------------
// migrate
// ---------------------------------------------------------------------------

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := database.NewMigrator(c.cfg.Database.URL, slog.Default())
			if err != nil {
				return err
			}
			defer m.Close()

			if args[0] == "down" {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if err != nil {
				return err
			}
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "schema version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	}
}
