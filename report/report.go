package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
)

// Action describes what happened to one source entry.
type Action string

// Possible actions.
const (
	ActionSubstituted Action = "substituted"
	ActionCopied      Action = "copied"
	ActionSkipped     Action = "skipped"
	ActionFailed      Action = "failed"
)

// Entry is the outcome for a single source file.
type Entry struct {
	Source   string `json:"source"`
	Dest     string `json:"dest,omitempty"`
	Action   Action `json:"action"`
	Tokens   int    `json:"tokens,omitempty"`
	Replaced int    `json:"replaced,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary aggregates a report's entries.
type Summary struct {
	Files        int `json:"files"`
	Substituted  int `json:"substituted"`
	Copied       int `json:"copied"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	Replacements int `json:"replacements"`
}

// Processed is the number of files written to the
// destination.
func (su Summary) Processed() int {
	return su.Substituted + su.Copied
}

// Report collects entries for one run. Add may be called
// from several goroutines.
type Report struct {
	Source   string
	Dest     string
	OpenTag  string
	CloseTag string

	mu      sync.Mutex
	entries []Entry
}

// New returns an empty report for a run from src to dst.
func New(src, dst, openTag, closeTag string) *Report {
	return &Report{
		Source:   src,
		Dest:     dst,
		OpenTag:  openTag,
		CloseTag: closeTag,
	}
}

// Add records an entry.
func (rp *Report) Add(en Entry) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.entries = append(rp.entries, en)
}

// Entries returns the entries sorted by source path.
func (rp *Report) Entries() []Entry {
	rp.mu.Lock()
	out := make([]Entry, len(rp.entries))
	copy(out, rp.entries)
	rp.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Source < out[j].Source
	})

	return out
}

// Failures returns the failed entries sorted by source
// path.
func (rp *Report) Failures() []Entry {
	var out []Entry

	for _, en := range rp.Entries() {
		if en.Action == ActionFailed {
			out = append(out, en)
		}
	}

	return out
}

// Summary counts entries per action.
func (rp *Report) Summary() Summary {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	var su Summary

	for _, en := range rp.entries {
		su.Files++
		su.Replacements += en.Replaced

		switch en.Action {
		case ActionSubstituted:
			su.Substituted++
		case ActionCopied:
			su.Copied++
		case ActionSkipped:
			su.Skipped++
		case ActionFailed:
			su.Failed++
		}
	}

	return su
}

type document struct {
	Source   string  `json:"source"`
	Dest     string  `json:"dest"`
	OpenTag  string  `json:"openTag"`
	CloseTag string  `json:"closeTag"`
	Summary  Summary `json:"summary"`
	Entries  []Entry `json:"entries"`
}

// WriteJSON writes the report as indented JSON.
func (rp *Report) WriteJSON(wr io.Writer) error {
	const errCtx = "writing report"

	doc := document{
		Source:   rp.Source,
		Dest:     rp.Dest,
		OpenTag:  rp.OpenTag,
		CloseTag: rp.CloseTag,
		Summary:  rp.Summary(),
		Entries:  rp.Entries(),
	}

	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}

	enc := json.NewEncoder(wr)
	enc.SetIndent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Save writes the JSON report to path.
func (rp *Report) Save(path string) (retErr error) {
	const errCtx = "saving report"

	fi, err := os.Create(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := fi.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	if err := rp.WriteJSON(fi); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Digest returns the SHA256 hex digest of data, the form
// recorded in Entry.Digest.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
