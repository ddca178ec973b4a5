// Package report records the outcome of a clone run: one Entry per source
// entry with its action, token counts and the SHA256 digest of the written
// output. Reports are summarized for the terminal and exported as JSON.
package report
