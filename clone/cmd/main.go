// Binary tempa clones a directory tree, substituting delimited template
// variables in text files with values from a YAML, JSON or TOML document.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
