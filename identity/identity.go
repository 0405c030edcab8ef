// Package identity encodes and decodes the (mode, iteration) pair embedded
// in generated test names. During matrix expansion every execution is labeled
// with an inline token of the form %mode.N% (N is 1-based so generated ids
// never read as ".0"); after the run the token is moved to a stable
// ".mode.N" (or ".mode.run_id") suffix so that external tooling can rely on
// one grammar for final test ids.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// tokenPattern matches a bracketed token as it appears in a parametrized
// test name: "[%mode.N%]" or "[%mode.N%-extra-params]". The mode is an
// identifier, the iteration a decimal number, and anything after the literal
// "-" up to the closing bracket is a parameter suffix that must survive the
// rewrite.
var tokenPattern = regexp.MustCompile(`\[%([a-zA-Z_][a-zA-Z0-9_]*)\.(\d+)%(-[^\]]+)?\]`)

// ErrMultipleTokens is returned by Rewrite when a name carries more than one
// identity token. A test name is expected to carry at most one; more than
// one means the matrix generator double-labeled the test, which is a
// configuration error rather than something to guess our way around.
var ErrMultipleTokens = fmt.Errorf("test name carries more than one identity token")

// Encode returns the inline token for one matrix cell. The iteration is
// zero-based on the way in and 1-based in the visible token.
func Encode(mode string, iteration int) string {
	return fmt.Sprintf("%%%s.%d%%", mode, iteration+1)
}

// Decode parses a bare token produced by Encode back into its mode and
// zero-based iteration. ok is false when the token does not follow the
// Encode grammar.
func Decode(token string) (mode string, iteration int, ok bool) {
	if len(token) < 2 || !strings.HasPrefix(token, "%") || !strings.HasSuffix(token, "%") {
		return "", 0, false
	}
	body := token[1 : len(token)-1]
	dot := strings.LastIndex(body, ".")
	if dot <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(body[dot+1:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	mode = body[:dot]
	if !isIdentifier(mode) {
		return "", 0, false
	}
	return mode, n - 1, true
}

// Rewrite moves the identity token of a finished test name to its final
// suffix position. Names like:
//
//	cluster/test_multidc.py::test_multidc[%dev.1%]
//	cluster/test_multidc.py::test_putget_2dc_with_rf[%release.1%-nodes_list0-1]
//
// become:
//
//	cluster/test_multidc.py::test_multidc.dev.1
//	cluster/test_multidc.py::test_putget_2dc_with_rf[nodes_list0-1].release.1
//
// When runID is non-empty it replaces the iteration number in the suffix.
// A name with no token is returned unchanged; this is the expected case for
// natively-identified tests and for names that were already rewritten, which
// makes Rewrite idempotent.
func Rewrite(name, runID string) (string, error) {
	matches := tokenPattern.FindAllStringSubmatchIndex(name, 2)
	if len(matches) == 0 {
		return name, nil
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("%w: %q", ErrMultipleTokens, name)
	}

	m := matches[0]
	mode := name[m[2]:m[3]]
	iteration := name[m[4]:m[5]]
	var suffix string
	if m[6] >= 0 {
		suffix = name[m[6]:m[7]]
	}

	var replacement string
	if suffix != "" {
		// Keep the parameter values that were bundled alongside the token,
		// minus the leading "-" separator.
		replacement = "[" + suffix[1:] + "]"
	}
	rewritten := name[:m[0]] + replacement + name[m[1]:]

	if runID != "" {
		return fmt.Sprintf("%s.%s.%s", rewritten, mode, runID), nil
	}
	return fmt.Sprintf("%s.%s.%s", rewritten, mode, iteration), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
