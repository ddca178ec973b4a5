package templating

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/valyala/fasttemplate"
)

// Default tag pair.
const (
	DefaultOpenTag  = "{#"
	DefaultCloseTag = "#}"
)

var (
	// ErrEmptyDelimiter is returned when either tag is
	// empty.
	ErrEmptyDelimiter = errors.New("delimiter must not be empty")

	// ErrEqualDelimiters is returned when the open and close
	// tags are the same string.
	ErrEqualDelimiters = errors.New("open and close delimiters must differ")
)

// Lookuper resolves a dotted path to its value.
// *varstore.Store implements it.
type Lookuper interface {
	Lookup(path string) (string, bool)
}

// Result counts what happened to the tokens of one text.
type Result struct {
	// Tokens is the number of delimited spans found.
	Tokens int

	// Replaced is the number of spans that resolved and
	// were substituted.
	Replaced int
}

// Engine substitutes tokens delimited by OpenTag and
// CloseTag.
type Engine struct {
	OpenTag  string
	CloseTag string
}

// Validate reports whether the tag pair is usable.
func (en Engine) Validate() error {
	const errCtx = "validating delimiters"

	if en.OpenTag == "" || en.CloseTag == "" {
		return fmt.Errorf("%s: %w", errCtx, ErrEmptyDelimiter)
	}

	if en.OpenTag == en.CloseTag {
		return fmt.Errorf(
			"%s: %w: %q", errCtx, ErrEqualDelimiters, en.OpenTag,
		)
	}

	return nil
}

// Substitute replaces every OpenTag+path+CloseTag span in
// content whose path resolves through vars. Unresolved
// spans are emitted unchanged. The scan is a single left
// to right pass: the first close tag after an open tag ends
// the token, so nested open tags become part of the token
// text.
func (en Engine) Substitute(
	content string,
	vars Lookuper,
) (string, Result, error) {
	const errCtx = "substituting"

	if err := en.Validate(); err != nil {
		return "", Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	var (
		buf bytes.Buffer
		res Result
	)

	buf.Grow(len(content))

	_, err := fasttemplate.ExecuteFunc(
		content, en.OpenTag, en.CloseTag, &buf,
		en.tagFunc(vars, &res),
	)
	if err != nil {
		return "", Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return buf.String(), res, nil
}

func (en Engine) tagFunc(
	vars Lookuper,
	res *Result,
) fasttemplate.TagFunc {
	return func(wr io.Writer, tag string) (int, error) {
		res.Tokens++

		if vars != nil {
			if val, ok := vars.Lookup(tag); ok {
				res.Replaced++

				return io.WriteString(wr, val)
			}
		}

		return io.WriteString(wr, en.OpenTag+tag+en.CloseTag)
	}
}

// ExpandFile reads the template at srcPath, substitutes
// tokens and writes the result to dstPath with the source
// file's permission bits. An empty srcPath reads stdin and
// an empty dstPath writes stdout.
func (en Engine) ExpandFile(
	srcPath string,
	dstPath string,
	vars Lookuper,
) (Result, error) {
	const errCtx = "expanding template"

	if err := en.Validate(); err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	content, perm, err := readTemplate(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	out, res, err := en.Substitute(string(content), vars)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := writeOutput(dstPath, []byte(out), perm); err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return res, nil
}

// readTemplate reads the template from a file path and
// returns its permission bits. If tplPath is empty it reads
// from stdin.
func readTemplate(
	tplPath string,
) ([]byte, os.FileMode, error) {
	const errCtx = "reading template"

	if tplPath == "" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, 0, fmt.Errorf(
				"%s: reading stdin: %w", errCtx, err,
			)
		}

		return content, 0o666, nil
	}

	info, err := os.Stat(tplPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	content, err := os.ReadFile(tplPath) //nolint:gosec // paths from CLI flags
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	return content, info.Mode().Perm(), nil
}

// writeOutput writes data to outPath, or to stdout when
// outPath is empty. Existing files are truncated.
func writeOutput(
	outPath string,
	data []byte,
	perm os.FileMode,
) (retErr error) {
	const errCtx = "writing output"

	if outPath == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		return nil
	}

	fi, err := os.OpenFile( //nolint:gosec // paths from CLI flags
		outPath,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC,
		perm,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := fi.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	if _, err := fi.Write(data); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// WriteFile writes data to path with the given permission
// bits, truncating any existing file. An empty path writes
// to stdout.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return writeOutput(path, data, perm)
}
