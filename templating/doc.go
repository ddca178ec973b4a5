// Package templating substitutes delimiter-bounded tokens in text with values
// resolved by dotted path. It uses valyala/fasttemplate with configurable
// open and close tags (default "{#" and "#}").
//
// The Engine type holds the tag pair. Substitute works on an in-memory string
// and ExpandFile reads a template file, applies substitution and writes the
// result. Tokens that do not resolve are left in place together with their
// delimiters, and an open tag without a matching close tag is copied through
// with the rest of the text.
package templating
