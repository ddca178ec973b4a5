package clone

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/byte4ever/tempa/report"
	"github.com/byte4ever/tempa/templating"
)

var (
	// ErrIncomplete is returned by Run when at least one
	// entry could not be processed.
	ErrIncomplete = errors.New("clone incomplete")

	// ErrNotDirectory is returned when the source is not a
	// directory.
	ErrNotDirectory = errors.New("source is not a directory")

	// ErrOverlap is returned when the destination would
	// overwrite or remove the source.
	ErrOverlap = errors.New("destination overlaps source")
)

// Options tunes a clone run.
type Options struct {
	// Workers bounds the number of files processed at the
	// same time. Values below 1 mean sequential.
	Workers int

	// Clean removes the destination tree before cloning.
	Clean bool

	// FailFast stops scheduling new files after the first
	// failure.
	FailFast bool
}

// Cloner mirrors directory trees through an Engine.
type Cloner struct {
	Engine  templating.Engine
	Vars    templating.Lookuper
	Options Options
}

// New returns a Cloner substituting values from vars.
func New(
	en templating.Engine,
	vars templating.Lookuper,
	opts Options,
) *Cloner {
	return &Cloner{Engine: en, Vars: vars, Options: opts}
}

// run holds the state of one Run call.
type run struct {
	cl      *Cloner
	srcDir  string
	walkDir string
	dstDir  string
	absDst  string
	rep     *report.Report
	stopped atomic.Bool
}

// Run clones srcDir into dstDir. The report is returned
// even when err is non-nil, unless the run could not start
// at all.
func (cl *Cloner) Run(
	ctx context.Context,
	srcDir string,
	dstDir string,
) (*report.Report, error) {
	const errCtx = "cloning directory"

	if err := cl.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	ru, err := cl.prepare(srcDir, dstDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	workers := cl.Options.Workers
	if workers <= 0 {
		workers = 1
	}

	// Worker pool with bounded concurrency.
	var wg sync.WaitGroup

	sem := make(chan struct{}, workers)

	walkErr := filepath.WalkDir(
		ru.walkDir,
		func(pa string, de fs.DirEntry, err error) error {
			if ctx.Err() != nil || ru.stopped.Load() {
				return filepath.SkipAll
			}

			return ru.visit(pa, de, err, func(src, dst string, info fs.FileInfo) {
				sem <- struct{}{}

				if ru.stopped.Load() {
					<-sem

					return
				}

				wg.Add(1)

				go func() {
					defer wg.Done()
					defer func() { <-sem }()

					ru.record(ru.processFile(src, dst, info))
				}()
			})
		},
	)

	wg.Wait()

	if walkErr != nil {
		return ru.rep, fmt.Errorf("%s: %w", errCtx, walkErr)
	}

	if err := ctx.Err(); err != nil {
		return ru.rep, fmt.Errorf("%s: %w", errCtx, err)
	}

	su := ru.rep.Summary()
	if su.Failed > 0 {
		return ru.rep, fmt.Errorf(
			"%s: %w: %d of %d entries failed",
			errCtx, ErrIncomplete, su.Failed, su.Files,
		)
	}

	return ru.rep, nil
}

// prepare checks the source, guards against overlapping
// trees, optionally cleans and then creates the
// destination root.
func (cl *Cloner) prepare(
	srcDir string,
	dstDir string,
) (*run, error) {
	const errCtx = "preparing"

	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf(
			"%s: %w: %s", errCtx, ErrNotDirectory, srcDir,
		)
	}

	// The walk does not follow a symlinked root, so it starts
	// from the resolved directory.
	absSrc, err := resolvePath(srcDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	absDst, err := resolvePath(dstDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if absSrc == absDst {
		return nil, fmt.Errorf(
			"%s: %w: %s", errCtx, ErrOverlap, dstDir,
		)
	}

	if cl.Options.Clean {
		if isWithin(absDst, absSrc) {
			return nil, fmt.Errorf(
				"%s: %w: cleaning %s would remove the source",
				errCtx, ErrOverlap, dstDir,
			)
		}

		slog.Info("cleaning output directory", "path", dstDir)

		if err := os.RemoveAll(dstDir); err != nil {
			return nil, fmt.Errorf(
				"%s: cleaning output: %w", errCtx, err,
			)
		}
	}

	if err := os.MkdirAll(dstDir, dirPerm(info)); err != nil {
		return nil, fmt.Errorf(
			"%s: creating output: %w", errCtx, err,
		)
	}

	return &run{
		cl:      cl,
		srcDir:  srcDir,
		walkDir: absSrc,
		dstDir:  dstDir,
		absDst:  absDst,
		rep: report.New(
			srcDir, dstDir,
			cl.Engine.OpenTag, cl.Engine.CloseTag,
		),
	}, nil
}

// visit handles one walk callback. Directories are created
// synchronously so they exist before any of their files is
// handed to schedule.
func (ru *run) visit(
	pa string,
	de fs.DirEntry,
	walkErr error,
	schedule func(src, dst string, info fs.FileInfo),
) error {
	rel, err := filepath.Rel(ru.walkDir, pa)
	if err != nil {
		return err
	}

	// Entries name the source as given, not its resolved
	// form.
	src := filepath.Join(ru.srcDir, rel)
	dst := filepath.Join(ru.dstDir, rel)

	if walkErr != nil {
		ru.record(failed(src, dst, walkErr))

		return nil
	}

	if de.IsDir() {
		return ru.visitDir(pa, src, dst, de)
	}

	if !de.Type().IsRegular() {
		slog.Warn("skipping non-regular file", "path", src, "type", de.Type().String())
		ru.record(report.Entry{Source: src, Action: report.ActionSkipped})

		return nil
	}

	info, err := de.Info()
	if err != nil {
		ru.record(failed(src, dst, err))

		return nil
	}

	schedule(src, dst, info)

	return nil
}

// visitDir mirrors one directory. pa is the walked path,
// src the same directory named below the given source.
func (ru *run) visitDir(
	pa string,
	src string,
	dst string,
	de fs.DirEntry,
) error {
	if pa == ru.walkDir {
		return nil
	}

	if pa == ru.absDst {
		slog.Debug("skipping destination nested in source", "path", src)

		return filepath.SkipDir
	}

	// On failure the walk still descends so that every file
	// below the directory gets its own failed entry.
	info, err := de.Info()
	if err != nil {
		ru.record(failed(src, dst, err))

		return nil
	}

	if err := os.MkdirAll(dst, dirPerm(info)); err != nil {
		ru.record(failed(src, dst, err))
	}

	return nil
}

// processFile substitutes one file into dst. Content that
// is not valid UTF-8 is copied unchanged.
func (ru *run) processFile(
	src string,
	dst string,
	info fs.FileInfo,
) report.Entry {
	data, err := os.ReadFile(src) //nolint:gosec // walked from the source tree
	if err != nil {
		return failed(src, dst, err)
	}

	en := report.Entry{Source: src, Dest: dst}

	out := data
	en.Action = report.ActionCopied

	if utf8.Valid(data) {
		text, res, err := ru.cl.Engine.Substitute(string(data), ru.cl.Vars)
		if err != nil {
			return failed(src, dst, err)
		}

		out = []byte(text)
		en.Action = report.ActionSubstituted
		en.Tokens = res.Tokens
		en.Replaced = res.Replaced
	}

	if err := templating.WriteFile(dst, out, info.Mode().Perm()); err != nil {
		return failed(src, dst, err)
	}

	en.Digest = report.Digest(out)

	return en
}

// record adds en to the report, logs it, and trips the
// fail-fast switch on failures.
func (ru *run) record(en report.Entry) {
	ru.rep.Add(en)

	switch en.Action {
	case report.ActionFailed:
		slog.Error("processing failed", "path", en.Source, "error", en.Error)

		if ru.cl.Options.FailFast {
			ru.stopped.Store(true)
		}
	case report.ActionSubstituted:
		if en.Replaced > 0 {
			slog.Info(
				"parsed",
				"src", en.Source,
				"replacements", en.Replaced,
			)

			return
		}

		slog.Debug("copied", "src", en.Source, "dst", en.Dest)
	case report.ActionCopied:
		slog.Debug("copied binary", "src", en.Source, "dst", en.Dest)
	}
}

func failed(src, dst string, err error) report.Entry {
	return report.Entry{
		Source: src,
		Dest:   dst,
		Action: report.ActionFailed,
		Error:  err.Error(),
	}
}

// dirPerm mirrors a directory's permission bits while
// keeping it writable and traversable for the owner.
func dirPerm(info fs.FileInfo) os.FileMode {
	return info.Mode().Perm() | 0o700
}

// resolvePath returns the absolute form of pa with symlinks
// resolved. Trailing components that do not exist yet are
// kept as given.
func resolvePath(pa string) (string, error) {
	abs, err := filepath.Abs(pa)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}

	resolved, err = resolvePath(parent)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolved, filepath.Base(abs)), nil
}

// isWithin reports whether child is parent or lies below
// it. Both paths must be absolute and clean.
func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel == "." ||
		(rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
