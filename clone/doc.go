// Package clone replicates a source directory tree into a destination tree,
// running every text file through a templating.Engine. Subdirectories are
// created before their files are written, files whose content is not valid
// UTF-8 are copied byte for byte, and symlinks or other special entries are
// skipped.
//
// A failing file does not stop the run unless Options.FailFast is set. Every
// outcome is recorded in the returned report.Report, and Run reports
// ErrIncomplete when at least one entry failed. Nothing already written is
// rolled back.
package clone
