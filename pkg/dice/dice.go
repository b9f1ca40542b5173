// Package dice validates the dice-expression grammar used by macro values.
// An expression is one or more terms joined by + or -, where each term is
// either an integer constant or a roll of the form NdM ("2d6", "d20"). The
// package only checks the grammar; rolling happens on the client.
package dice

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxCount is the largest number of dice a single roll term may request.
	MaxCount = 1000
	// MaxFaces is the largest die size a roll term may request.
	MaxFaces = 10000
)

var (
	termPattern = regexp.MustCompile(`^(?i)([0-9]*)d([0-9]+)$`)
	numPattern  = regexp.MustCompile(`^[0-9]+$`)
)

// Validate reports whether expr is a well-formed dice expression.
// Whitespace around terms and operators is tolerated.
func Validate(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}

	// Split into terms on +/-, keeping an eye on dangling operators.
	terms := splitTerms(expr)
	if terms == nil {
		return false
	}

	for _, term := range terms {
		if !validTerm(term) {
			return false
		}
	}
	return true
}

func splitTerms(expr string) []string {
	var terms []string
	start := 0
	for i, r := range expr {
		if r == '+' || r == '-' {
			if i == start {
				// Leading operator or two operators in a row.
				return nil
			}
			terms = append(terms, expr[start:i])
			start = i + 1
		}
	}
	if start >= len(expr) {
		// Trailing operator.
		return nil
	}
	return append(terms, expr[start:])
}

func validTerm(term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return false
	}

	if numPattern.MatchString(term) {
		return true
	}

	m := termPattern.FindStringSubmatch(term)
	if m == nil {
		return false
	}
	if m[1] != "" {
		count, err := strconv.Atoi(m[1])
		if err != nil || count < 1 || count > MaxCount {
			return false
		}
	}
	faces, err := strconv.Atoi(m[2])
	if err != nil || faces < 2 || faces > MaxFaces {
		return false
	}
	return true
}
