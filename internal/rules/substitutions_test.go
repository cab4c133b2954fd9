package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spoken.rules")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func TestSubstitutionsLiteralAndRegexRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `
# literal
e.g. => for example
# regex, case-insensitive by default
s/\bapi\b/A P I/g
`)

	subs, err := LoadSubstitutions(path, 30)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	if subs.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", subs.Len())
	}

	if got := subs.Apply("Call the API, e.g. the api"); got != "Call the A P I, for example the A P I" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestSubstitutionsIterateUntilStable(t *testing.T) {
	t.Parallel()

	subs, err := ParseSubstitutions("a => b\nb => c\n", 5)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := subs.Apply("a"); got != "c" {
		t.Fatalf("expected c, got %q", got)
	}
}

func TestSubstitutionsLoopLimitStopsCycles(t *testing.T) {
	t.Parallel()

	subs, err := ParseSubstitutions("x => xx\n", 3)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := subs.Apply("x"); got != "xxxxxxxx" {
		t.Fatalf("expected three doubling passes, got %q", got)
	}
}

func TestLiteralRuleStartingWithS(t *testing.T) {
	t.Parallel()

	subs, err := ParseSubstitutions("solid complaint => SOLID-compliant", 0)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := subs.Apply("solid complaint plan"); got != "SOLID-compliant plan" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestSedRuleWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	rule, err := parseSedRule(`s/(fo+)/[$1]/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	output, changed := rule.Apply("foo foo")
	if !changed {
		t.Fatalf("expected changed=true")
	}
	if output != "[foo] foo" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestSedRuleAlternateDelimiterAndEscapes(t *testing.T) {
	t.Parallel()

	rule, err := parseSedRule(`s#a\#b#c#g`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if output, _ := rule.Apply("a#b a#b"); output != "c c" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestParseRuleErrors(t *testing.T) {
	t.Parallel()

	for _, line := range []string{`s/foo/bar/x`, `s/foo/bar`, `s/(/x/`, " => empty", "not-a-rule"} {
		if _, err := ParseSubstitutions(line, 0); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}

func TestLoadSubstitutionsMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	subs, err := LoadSubstitutions(filepath.Join(t.TempDir(), "missing.rules"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := subs.Apply("unchanged"); got != "unchanged" {
		t.Fatalf("unexpected output: %q", got)
	}
}
