package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/byte4ever/tempa/clone"
	"github.com/byte4ever/tempa/report"
	"github.com/byte4ever/tempa/templating"
	"github.com/byte4ever/tempa/varstore"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// globalFlags are shared by every command.
type globalFlags struct {
	openTag      string
	closeTag     string
	replacements string
	format       string
	sets         []string
	verbose      bool
	noColor      bool
}

func (gf *globalFlags) engine() (templating.Engine, error) {
	en := templating.Engine{OpenTag: gf.openTag, CloseTag: gf.closeTag}
	if err := en.Validate(); err != nil {
		return templating.Engine{}, err
	}

	return en, nil
}

// store loads the replacement document and applies --set
// overrides on top of it.
func (gf *globalFlags) store() (*varstore.Store, error) {
	const errCtx = "loading variables"

	overrides, err := varstore.ParseAssignments(gf.sets)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	var st *varstore.Store

	if gf.format == "" {
		st, err = varstore.Load(gf.replacements)
	} else {
		st, err = loadWithFormat(gf.replacements, gf.format)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(overrides) > 0 {
		st = st.With(overrides)
	}

	return st, nil
}

func loadWithFormat(path, name string) (*varstore.Store, error) {
	format, err := varstore.ParseFormat(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, err
	}

	return varstore.Decode(data, format)
}

func (gf *globalFlags) setup(cmd *cobra.Command) {
	level := slog.LevelInfo
	if gf.verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		cmd.ErrOrStderr(),
		&slog.HandlerOptions{Level: level},
	)))

	if gf.noColor || !isTerminal(cmd.OutOrStdout()) {
		color.NoColor = true
	}
}

func isTerminal(wr io.Writer) bool {
	fi, ok := wr.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(fi.Fd()) || isatty.IsCygwinTerminal(fi.Fd())
}

func newRootCommand() *cobra.Command {
	gf := &globalFlags{}

	var (
		input      string
		output     string
		workers    int
		clean      bool
		failFast   bool
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "tempa",
		Short: "Clone a directory tree substituting template variables",
		Long: `tempa copies every file of the input directory into the output
directory, replacing tokens such as {#prog.name#} with values taken from a
nested YAML, JSON or TOML replacement document. Tokens that do not resolve are
left untouched. Files that are not valid UTF-8 are copied unchanged.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			gf.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			const errCtx = "tempa"

			en, err := gf.engine()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			st, err := gf.store()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			slog.Debug(
				"loaded replacements",
				"path", gf.replacements,
				"variables", st.Len(),
			)

			cl := clone.New(en, st, clone.Options{
				Workers:  workers,
				Clean:    clean,
				FailFast: failFast,
			})

			rep, runErr := cl.Run(cmd.Context(), input, output)
			if rep == nil {
				return fmt.Errorf("%s: %w", errCtx, runErr)
			}

			if reportPath != "" {
				if err := rep.Save(reportPath); err != nil {
					return fmt.Errorf("%s: %w", errCtx, err)
				}
			}

			printSummary(cmd.OutOrStdout(), rep)

			if runErr != nil {
				return fmt.Errorf("%s: %w", errCtx, runErr)
			}

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(
		&gf.openTag, "open", "d", templating.DefaultOpenTag,
		"opening delimiter",
	)
	pf.StringVarP(
		&gf.closeTag, "close", "c", templating.DefaultCloseTag,
		"closing delimiter",
	)
	pf.StringVarP(
		&gf.replacements, "replacements", "r", "",
		"replacements document (yaml, json or toml)",
	)
	pf.StringVar(
		&gf.format, "format", "",
		"replacements format (default: from file extension)",
	)
	pf.StringArrayVar(
		&gf.sets, "set", nil,
		"override a variable as path=value (repeatable)",
	)
	pf.BoolVarP(&gf.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&gf.noColor, "no-color", false, "disable colored output")

	_ = cmd.MarkPersistentFlagRequired("replacements") //nolint:errcheck // flag defined above

	fl := cmd.Flags()
	fl.StringVarP(&input, "input", "i", "", "input directory")
	fl.StringVarP(&output, "output", "o", "", "output directory")
	fl.IntVarP(
		&workers, "workers", "j", 1,
		"number of files processed concurrently",
	)
	fl.BoolVar(
		&clean, "clean", false,
		"remove the output directory before cloning",
	)
	fl.BoolVar(
		&failFast, "fail-fast", false,
		"stop at the first file that cannot be processed",
	)
	fl.StringVar(
		&reportPath, "report", "",
		"write a JSON report of the run to this path",
	)

	_ = cmd.MarkFlagRequired("input")  //nolint:errcheck // flag defined above
	_ = cmd.MarkFlagRequired("output") //nolint:errcheck // flag defined above

	cmd.AddCommand(newRenderCommand(gf))
	cmd.AddCommand(newVarsCommand(gf))

	return cmd
}

func newRenderCommand(gf *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render [template]",
		Short: "Substitute variables in a single file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			const errCtx = "render"

			en, err := gf.engine()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			st, err := gf.store()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			var tpl string
			if len(args) == 1 {
				tpl = args[0]
			}

			res, err := en.ExpandFile(tpl, output, st)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			slog.Debug(
				"rendered",
				"template", tpl,
				"tokens", res.Tokens,
				"replaced", res.Replaced,
			)

			return nil
		},
	}

	cmd.Flags().StringVarP(
		&output, "output", "o", "",
		"output file path (stdout if empty)",
	)

	return cmd
}

func newVarsCommand(gf *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Print the flattened variables of the replacement document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const errCtx = "vars"

			st, err := gf.store()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				if err := enc.Encode(st.Map()); err != nil {
					return fmt.Errorf("%s: %w", errCtx, err)
				}

				return nil
			}

			for _, key := range st.Keys() {
				val, _ := st.Lookup(key)
				if _, err := fmt.Fprintf(out, "%s=%s\n", key, val); err != nil {
					return fmt.Errorf("%s: %w", errCtx, err)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as a JSON object")

	return cmd
}

func printSummary(wr io.Writer, rep *report.Report) {
	su := rep.Summary()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	_, _ = green.Fprintf(
		wr,
		"Finished cloning directory, %d/%d files processed (%d replacements).\n",
		su.Processed(), su.Files, su.Replacements,
	)

	if su.Skipped > 0 {
		_, _ = yellow.Fprintf(wr, "%d entries were skipped\n", su.Skipped)
	}

	if su.Failed == 0 {
		return
	}

	_, _ = red.Fprintf(wr, "%d entries failed:\n", su.Failed)

	for _, en := range rep.Failures() {
		_, _ = red.Fprintf(wr, "  %s: %s\n", en.Source, en.Error)
	}
}
