package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/tempa/report"
)

func sampleReport() *report.Report {
	rp := report.New("in", "out", "{#", "#}")

	rp.Add(report.Entry{
		Source:   "in/b.txt",
		Dest:     "out/b.txt",
		Action:   report.ActionSubstituted,
		Tokens:   3,
		Replaced: 2,
	})
	rp.Add(report.Entry{
		Source: "in/a.png",
		Dest:   "out/a.png",
		Action: report.ActionCopied,
	})
	rp.Add(report.Entry{
		Source: "in/link",
		Action: report.ActionSkipped,
	})
	rp.Add(report.Entry{
		Source: "in/c.txt",
		Dest:   "out/c.txt",
		Action: report.ActionFailed,
		Error:  "permission denied",
	})

	return rp
}

func TestSummary_counts_actions(t *testing.T) {
	t.Parallel()

	su := sampleReport().Summary()

	assert.Equal(t, report.Summary{
		Files:        4,
		Substituted:  1,
		Copied:       1,
		Skipped:      1,
		Failed:       1,
		Replacements: 2,
	}, su)
	assert.Equal(t, 2, su.Processed())
}

func TestEntries_sorted_by_source(t *testing.T) {
	t.Parallel()

	var sources []string
	for _, en := range sampleReport().Entries() {
		sources = append(sources, en.Source)
	}

	assert.Equal(
		t,
		[]string{"in/a.png", "in/b.txt", "in/c.txt", "in/link"},
		sources,
	)
}

func TestFailures(t *testing.T) {
	t.Parallel()

	fails := sampleReport().Failures()
	require.Len(t, fails, 1)
	assert.Equal(t, "in/c.txt", fails[0].Source)
	assert.Equal(t, "permission denied", fails[0].Error)
}

func TestAdd_concurrent(t *testing.T) {
	t.Parallel()

	rp := report.New("in", "out", "{#", "#}")

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			rp.Add(report.Entry{Action: report.ActionCopied})
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, rp.Summary().Copied)
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteJSON(&buf))

	var doc struct {
		Source  string         `json:"source"`
		OpenTag string         `json:"openTag"`
		Summary report.Summary `json:"summary"`
		Entries []report.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "in", doc.Source)
	assert.Equal(t, "{#", doc.OpenTag)
	assert.Equal(t, 4, doc.Summary.Files)
	require.Len(t, doc.Entries, 4)
	assert.Equal(t, report.ActionCopied, doc.Entries[0].Action)
}

func TestWriteJSON_empty_report_has_entries_array(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(
		t, report.New("in", "out", "{#", "#}").WriteJSON(&buf),
	)

	assert.Contains(t, buf.String(), `"entries": []`)
}

func TestSave(t *testing.T) {
	t.Parallel()

	pa := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, sampleReport().Save(pa))

	got, err := os.ReadFile(pa) //nolint:gosec // test file
	require.NoError(t, err)
	assert.Contains(t, string(got), `"failed": 1`)
}

func TestSave_unwritable_path(t *testing.T) {
	t.Parallel()

	err := sampleReport().Save("/nonexistent/dir/report.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving report")
}

func TestDigest_returns_sha256(t *testing.T) {
	t.Parallel()

	// sha256("hello")
	assert.Equal(
		t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		report.Digest([]byte("hello")),
	)
}
