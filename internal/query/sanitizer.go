// Package query turns raw model output into executable SQLite statements and
// checks the shape of the resulting schema.
package query

import (
	"regexp"
	"strings"
)

const (
	KeywordCreate = "CREATE TABLE"
	KeywordInsert = "INSERT INTO"
)

// constraintRegex finds the start of a CHECK(...) or UNIQUE(...) clause. The
// clause end is found by balancing parentheses since the body may nest.
var constraintRegex = regexp.MustCompile(`\b(CHECK|UNIQUE)\s*\(`)

// danglingComma matches a comma left before the closing parenthesis once a
// trailing table constraint was stripped.
var danglingComma = regexp.MustCompile(`,(\s*\)\s*;?\s*)$`)

// createRewrites are applied in order, each to the output of the previous
// one, so that " INT NOT NULL PRIMARY KEY " still becomes an INTEGER key.
var createRewrites = [][2]string{
	{" ENUM(", " CHECK("},
	{" NOT NULL", ""},
	{" UNIQUE,", ","},
	{" INT PRIMARY KEY ", " INTEGER PRIMARY KEY "},
	{" SERIAL ", " INTEGER "},
	{`\`, "'"},
}

// Statements is the sanitized content of one model response.
type Statements struct {
	Creates []string `json:"creates"`
	Inserts []string `json:"inserts"`
}

// All returns the CREATE statements followed by the INSERT statements.
func (s Statements) All() []string {
	out := make([]string, 0, len(s.Creates)+len(s.Inserts))
	out = append(out, s.Creates...)
	return append(out, s.Inserts...)
}

// Sanitize extracts and rewrites the CREATE TABLE and INSERT INTO statements of
// output.
func Sanitize(output string) Statements {
	var s Statements
	for _, stmt := range ExtractStatements(output, KeywordCreate) {
		s.Creates = append(s.Creates, RewriteCreateTable(stmt))
	}
	for _, stmt := range ExtractStatements(output, KeywordInsert) {
		s.Inserts = append(s.Inserts, RewriteInsert(stmt))
	}
	return s
}

// ExtractStatements returns every complete statement of output that starts at
// keyword and ends with a line whose last character is ';'. Text before the
// keyword on its line is dropped. Duplicates are removed keeping the first
// occurrence.
func ExtractStatements(output, keyword string) []string {
	lines := strings.Split(output, "\n")
	seen := make(map[string]bool)
	var stmts []string

	start := -1
	for i, line := range lines {
		if line == "" {
			continue
		}
		if k := strings.Index(line, keyword); k >= 0 {
			lines[i] = line[k:]
			start = i
		}
		if start >= 0 && strings.HasSuffix(line, ";") {
			stmt := strings.Join(lines[start:i+1], "\n")
			if !seen[stmt] {
				seen[stmt] = true
				stmts = append(stmts, stmt)
			}
			start = -1
		}
	}
	return stmts
}

// RewriteCreateTable adapts a CREATE TABLE statement to SQLite: ENUM becomes
// CHECK, NOT NULL and column UNIQUE markers are dropped, INT and SERIAL keys
// become INTEGER, backslashes become quotes, and every balanced CHECK(...) or
// UNIQUE(...) clause is removed.
func RewriteCreateTable(stmt string) string {
	for _, rw := range createRewrites {
		stmt = strings.ReplaceAll(stmt, rw[0], rw[1])
	}
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		stripped := stripConstraints(line)
		if stripped != line && strings.Trim(stripped, " \t,") == "" {
			continue
		}
		kept = append(kept, stripped)
	}
	return danglingComma.ReplaceAllString(strings.Join(kept, "\n"), "$1")
}

// RewriteInsert replaces backslash escapes with quotes.
func RewriteInsert(stmt string) string {
	return strings.ReplaceAll(stmt, `\`, "'")
}

// stripConstraints removes each CHECK(...) and UNIQUE(...) clause of line
// along with the whitespace that follows it. An unbalanced clause runs to the
// end of the line.
func stripConstraints(line string) string {
	for {
		loc := constraintRegex.FindStringIndex(line)
		if loc == nil {
			return line
		}
		end := len(line)
		depth := 0
		for i := loc[1] - 1; i < len(line); i++ {
			switch line[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				end = i + 1
				break
			}
		}
		rest := strings.TrimLeft(line[end:], " \t")
		line = line[:loc[0]] + rest
	}
}
