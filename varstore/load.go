package varstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format identifies the syntax of a replacement document.
type Format string

// Supported document formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"

	// FormatStamp is the flat "KEY VALUE" line format of
	// workspace status files. Keys are used verbatim as
	// paths.
	FormatStamp Format = "stamp"
)

// ErrUnknownFormat is returned by ParseFormat for names
// that do not match a supported format.
var ErrUnknownFormat = errors.New("unknown document format")

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	case "stamp", "status":
		return FormatStamp, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath guesses the format from the file
// extension. Anything unrecognized is read as YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	case ".status", ".stamp":
		return FormatStamp
	}

	return FormatYAML
}

// Load reads the replacement document at path, detects its
// format from the extension and flattens it into a Store.
func Load(path string) (*Store, error) {
	const errCtx = "loading replacements"

	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	st, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return st, nil
}

// Decode parses data in the given format and flattens the
// result. No Store is returned when parsing fails.
func Decode(data []byte, format Format) (*Store, error) {
	const errCtx = "decoding document"

	var (
		doc any
		err error
	)

	switch format {
	case FormatYAML, "":
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON:
		doc, err = decodeJSON(data)
	case FormatTOML:
		var tbl map[string]any

		err = toml.Unmarshal(data, &tbl)
		if tbl != nil {
			doc = tbl
		}
	case FormatStamp:
		return &Store{vars: parseStamps(data)}, nil
	default:
		return nil, fmt.Errorf(
			"%s: %w: %q", errCtx, ErrUnknownFormat, format,
		)
	}

	if err != nil {
		return nil, fmt.Errorf(
			"%s: parsing %s: %w", errCtx, format, err,
		)
	}

	st, err := Flatten(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return st, nil
}

// parseStamps reads "KEY VALUE" lines with the first space
// as delimiter. Lines without a space are silently skipped
// and later lines override earlier ones.
func parseStamps(data []byte) map[string]string {
	stamps := make(map[string]string)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")

		parts := strings.SplitN(line, " ", 2)
		if len(parts) == 2 && parts[0] != "" {
			stamps[parts[0]] = parts[1]
		}
	}

	return stamps
}

// decodeJSON keeps numbers in their literal form so large
// integers survive without float rounding.
func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}

	return doc, nil
}
