package validation

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Parser turns raw process output into diagnostics. Parsers are pure.
type Parser func(stdout, stderr string) ([]ValidationError, error)

// parsers is the closed classifier table.
var parsers = map[string]Parser{
	TypeTypeScript: parseTypeScript,
	TypeJavaScript: parseJavaScript,
	TypeESLint:     parseESLint,
	TypeTest:       parseTest,
	TypeBuild:      parseBuild,
	TypeFormat:     parseFormat,
	TypeCustom:     parseCustom,
}

// ParserFor returns the parser for typ, or the generic one.
func ParserFor(typ string) Parser {
	if p, ok := parsers[typ]; ok {
		return p
	}
	return parseCustom
}

// classify runs the parser for typ and degrades to the generic heuristic on
// a ParseError. The returned error, if any, is the ParseError that caused
// the fallback.
func classify(typ, stdout, stderr string) ([]ValidationError, error) {
	issues, err := ParserFor(typ)(stdout, stderr)
	if err == nil {
		return issues, nil
	}
	category := CategoryCustom
	if typ == TypeBuild {
		category = CategoryBuild
	}
	return heuristic(joinOutput(stdout, stderr), category), err
}

func joinOutput(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	}
	return strings.TrimRight(stdout, "\n") + "\n" + stderr
}

func lines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// mentionsError reports whether output looks like it reported a problem, in
// which case a dedicated parser that found nothing has missed something.
func mentionsError(s string) bool {
	for _, l := range lines(s) {
		if isErrorLine(l) {
			return true
		}
	}
	return false
}

// ─── typescript ──────────────────────────────────────────────────────────────

var (
	// src/a.ts(3,7): error TS2322: Type 'string' is not assignable to type 'number'.
	tscParenRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning|message) (TS\d+): (.*)$`)
	// src/a.ts:3:7 - error TS2322: ... (tsc --pretty)
	tscPrettyRe = regexp.MustCompile(`^(.+?):(\d+):(\d+) - (error|warning|message) (TS\d+): (.*)$`)
	// error TS5058: The specified path does not exist: 'tsconfig.json'.
	tscGlobalRe = regexp.MustCompile(`^(error|warning|message) (TS\d+): (.*)$`)
	ansiRe      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

func parseTypeScript(stdout, stderr string) ([]ValidationError, error) {
	var out []ValidationError
	for _, l := range lines(joinOutput(stdout, stderr)) {
		l = strings.TrimSpace(ansiRe.ReplaceAllString(l, ""))
		m := tscParenRe.FindStringSubmatch(l)
		if m == nil {
			m = tscPrettyRe.FindStringSubmatch(l)
		}
		if m != nil {
			out = append(out, ValidationError{
				File:     m[1],
				Line:     atoi(m[2]),
				Column:   atoi(m[3]),
				Message:  m[6],
				Rule:     m[5],
				Severity: tscSeverity(m[4]),
				Category: tscCategory(m[5]),
			})
			continue
		}
		if g := tscGlobalRe.FindStringSubmatch(l); g != nil {
			out = append(out, ValidationError{
				Message:  g[3],
				Rule:     g[2],
				Severity: tscSeverity(g[1]),
				Category: tscCategory(g[2]),
			})
		}
	}
	if len(out) == 0 && mentionsError(joinOutput(stdout, stderr)) {
		return nil, &ParseError{Type: TypeTypeScript, Reason: "no tsc diagnostics recognized"}
	}
	return out, nil
}

func tscSeverity(s string) Severity {
	switch s {
	case "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	}
	return SeverityInfo
}

// TS1xxx diagnostics come from the scanner and parser.
func tscCategory(code string) Category {
	if strings.HasPrefix(code, "TS1") && len(code) == 6 {
		return CategorySyntax
	}
	return CategoryType
}

// ─── javascript (node --check) ───────────────────────────────────────────────

var (
	nodeLocRe   = regexp.MustCompile(`^(.+\.[cm]?jsx?):(\d+)$`)
	nodeErrorRe = regexp.MustCompile(`^(\w*Error): (.*)$`)
)

// parseJavaScript reads node's syntax error report:
//
//	/app/a.js:3
//	const x = ;
//	          ^
//	SyntaxError: Unexpected token ';'
func parseJavaScript(stdout, stderr string) ([]ValidationError, error) {
	var out []ValidationError
	var cur ValidationError
	for _, raw := range lines(joinOutput(stdout, stderr)) {
		l := strings.TrimRight(raw, " \t")
		if m := nodeLocRe.FindStringSubmatch(strings.TrimSpace(l)); m != nil {
			cur = ValidationError{File: m[1], Line: atoi(m[2])}
			continue
		}
		if cur.File != "" && cur.Column == 0 && strings.TrimSpace(l) != "" && strings.Trim(l, " ^~") == "" {
			cur.Column = strings.IndexByte(l, '^') + 1
			continue
		}
		if m := nodeErrorRe.FindStringSubmatch(strings.TrimSpace(l)); m != nil {
			cur.Message = m[2]
			cur.Rule = m[1]
			cur.Severity = SeverityError
			cur.Category = CategorySyntax
			if m[1] != "SyntaxError" {
				cur.Category = CategoryCustom
			}
			out = append(out, cur)
			cur = ValidationError{}
		}
	}
	if len(out) == 0 && mentionsError(joinOutput(stdout, stderr)) {
		return nil, &ParseError{Type: TypeJavaScript, Reason: "no node diagnostics recognized"}
	}
	return out, nil
}

// ─── eslint ──────────────────────────────────────────────────────────────────

type eslintFileResult struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   *string         `json:"ruleId"`
	Severity int             `json:"severity"`
	Message  string          `json:"message"`
	Line     int             `json:"line"`
	Column   int             `json:"column"`
	Fatal    bool            `json:"fatal"`
	Fix      json.RawMessage `json:"fix"`
}

// Rules whose violations eslint --fix repairs. Text formats do not say which
// messages are fixable, so they are identified by rule; a fixable plugin rule
// missing here reads as not fixable until the JSON formatter is used.
var eslintFixableRules = map[string]bool{
	"prefer-const":                               true,
	"no-var":                                     true,
	"semi":                                       true,
	"quotes":                                     true,
	"indent":                                     true,
	"eol-last":                                   true,
	"no-extra-semi":                              true,
	"comma-dangle":                               true,
	"object-shorthand":                           true,
	"prefer-arrow-callback":                      true,
	"no-trailing-spaces":                         true,
	"arrow-parens":                               true,
	"prefer-template":                            true,
	"no-multi-spaces":                            true,
	"space-before-blocks":                        true,
	"keyword-spacing":                            true,
	"dot-notation":                               true,
	"curly":                                      true,
	"spaced-comment":                             true,
	"no-unneeded-ternary":                        true,
	"sort-imports":                               true,
	"no-extra-boolean-cast":                      true,
	"prefer-destructuring":                       true,
	"no-useless-rename":                          true,
	"no-useless-computed-key":                    true,
	"no-useless-return":                          true,
	"no-else-return":                             true,
	"no-extra-parens":                            true,
	"no-lonely-if":                               true,
	"no-regex-spaces":                            true,
	"no-undef-init":                              true,
	"no-unused-labels":                           true,
	"no-implicit-coercion":                       true,
	"no-multiple-empty-lines":                    true,
	"operator-assignment":                        true,
	"logical-assignment-operators":               true,
	"prefer-exponentiation-operator":             true,
	"prefer-numeric-literals":                    true,
	"prefer-object-spread":                       true,
	"yoda":                                       true,
	"strict":                                     true,
	"unicode-bom":                                true,
	"linebreak-style":                            true,
	"quote-props":                                true,
	"padded-blocks":                              true,
	"brace-style":                                true,
	"comma-spacing":                              true,
	"key-spacing":                                true,
	"space-infix-ops":                            true,
	"space-before-function-paren":                true,
	"object-curly-spacing":                       true,
	"array-bracket-spacing":                      true,
	"@typescript-eslint/semi":                    true,
	"@typescript-eslint/quotes":                  true,
	"@typescript-eslint/indent":                  true,
	"@typescript-eslint/consistent-type-imports": true,
	"@typescript-eslint/no-inferrable-types":     true,
	"@typescript-eslint/array-type":              true,
	"import/order":                               true,
	"prettier/prettier":                          true,
}

var (
	// file:line:col: error message (rule)
	eslintTextRe = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(error|warning)\s+(.+?)(?:\s+\(([^()\s]+)\))?$`)
	// file: line 1, col 7, Error - message (rule)   (compact formatter)
	eslintCompactRe = regexp.MustCompile(`^(.+?): line (\d+), col (\d+), (Error|Warning) - (.+?)(?: \(([^()\s]+)\))?$`)
	// file:line:col: message [Error/rule]   (unix formatter)
	eslintUnixRe = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(.+?)\s+\[(Error|Warning)(?:/(\S+))?\]$`)
	// "  1:7  error  message  rule"   (stylish formatter, under a file header)
	eslintStylishRe = regexp.MustCompile(`^\s+(\d+):(\d+)\s+(error|warning)\s+(.+?)(?:\s{2,}(\S+))?\s*$`)
)

func parseESLint(stdout, stderr string) ([]ValidationError, error) {
	if issues, ok := parseESLintJSON(stdout); ok {
		return issues, nil
	}

	var out []ValidationError
	var stylishFile string
	for _, raw := range lines(joinOutput(stdout, stderr)) {
		l := ansiRe.ReplaceAllString(raw, "")
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}

		var file, line, col, sev, msg, rule string
		switch m := matchAny(trimmed, eslintCompactRe, eslintUnixRe, eslintTextRe); {
		case m.re == eslintCompactRe:
			file, line, col, sev, msg, rule = m.sub[1], m.sub[2], m.sub[3], m.sub[4], m.sub[5], m.sub[6]
		case m.re == eslintUnixRe:
			file, line, col, msg, sev, rule = m.sub[1], m.sub[2], m.sub[3], m.sub[4], m.sub[5], m.sub[6]
		case m.re == eslintTextRe:
			file, line, col, sev, msg, rule = m.sub[1], m.sub[2], m.sub[3], m.sub[4], m.sub[5], m.sub[6]
		default:
			if s := eslintStylishRe.FindStringSubmatch(l); s != nil && stylishFile != "" {
				file, line, col, sev, msg, rule = stylishFile, s[1], s[2], s[3], s[4], s[5]
				break
			}
			if !strings.HasPrefix(l, " ") && !strings.HasPrefix(trimmed, "✖") && looksLikePath(trimmed) {
				stylishFile = trimmed
			}
			continue
		}
		out = append(out, eslintIssue(file, atoi(line), atoi(col), sev, msg, rule))
	}

	if len(out) == 0 && mentionsError(joinOutput(stdout, stderr)) {
		return nil, &ParseError{Type: TypeESLint, Reason: "output is neither eslint JSON nor a known text format"}
	}
	return out, nil
}

func parseESLintJSON(stdout string) ([]ValidationError, bool) {
	s := strings.TrimSpace(stdout)
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var results []eslintFileResult
	if err := json.Unmarshal([]byte(s), &results); err != nil {
		return nil, false
	}
	out := []ValidationError{}
	for _, r := range results {
		for _, m := range r.Messages {
			rule := ""
			if m.RuleID != nil {
				rule = *m.RuleID
			}
			sev := "warning"
			if m.Severity == 2 || m.Fatal {
				sev = "error"
			}
			issue := eslintIssue(r.FilePath, m.Line, m.Column, sev, m.Message, rule)
			issue.Fixable = len(m.Fix) > 0 && string(m.Fix) != "null"
			out = append(out, issue)
		}
	}
	return out, true
}

func eslintIssue(file string, line, col int, sev, msg, rule string) ValidationError {
	issue := ValidationError{
		File:     file,
		Line:     line,
		Column:   col,
		Message:  strings.TrimSpace(msg),
		Rule:     rule,
		Severity: SeverityWarning,
		Category: CategoryLint,
		Fixable:  eslintFixableRules[rule],
	}
	if strings.EqualFold(sev, "error") {
		issue.Severity = SeverityError
	}
	// Parsing errors carry no rule id.
	if rule == "" && strings.HasPrefix(issue.Message, "Parsing error") {
		issue.Category = CategorySyntax
	}
	return issue
}

type match struct {
	re  *regexp.Regexp
	sub []string
}

func matchAny(s string, res ...*regexp.Regexp) match {
	for _, re := range res {
		if m := re.FindStringSubmatch(s); m != nil {
			return match{re: re, sub: m}
		}
	}
	return match{}
}

// ─── test runner ─────────────────────────────────────────────────────────────

var (
	testFileRe    = regexp.MustCompile(`(\S+(?:\.(?:test|spec)\.[cm]?[jt]sx?|_test\.go|test_\w+\.py|_spec\.rb))\b`)
	testFailRe    = regexp.MustCompile(`^\s*(?:[✕✗×✘]|not ok\b|--- FAIL:|FAILED\b)`)
	testBulletRe  = regexp.MustCompile(`^\s*●\s+(.+)$`)
	testFileHdrRe = regexp.MustCompile(`^\s*(PASS|FAIL)\s+(\S+)`)
	testPassRe    = regexp.MustCompile(`[✓✔]|\bPASS\b|^\s*ok\b`)
)

func parseTest(stdout, stderr string) ([]ValidationError, error) {
	out := joinOutput(stdout, stderr)

	var failures, bullets, warnings []ValidationError
	var failedFiles []string
	var file string
	for _, raw := range lines(out) {
		l := ansiRe.ReplaceAllString(raw, "")
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		if m := testFileRe.FindStringSubmatch(trimmed); m != nil {
			file = m[1]
		}

		if h := testFileHdrRe.FindStringSubmatch(trimmed); h != nil {
			if h[1] == "FAIL" && testFileRe.MatchString(h[2]) {
				failedFiles = append(failedFiles, h[2])
			}
			continue
		}

		switch {
		case testFailRe.MatchString(trimmed):
			failures = append(failures, testIssue(file, trimmed, SeverityError))
		case testBulletRe.MatchString(trimmed):
			bullets = append(bullets, testIssue(file, testBulletRe.FindStringSubmatch(trimmed)[1], SeverityError))
		case testPassRe.MatchString(trimmed) && strings.Contains(strings.ToLower(trimmed), "warning"):
			warnings = append(warnings, testIssue(file, trimmed, SeverityWarning))
		}
	}

	// Jest prints a ✕ line per failed test and then repeats each one as a
	// ● block; only count the blocks when the short form is absent.
	errs := failures
	if len(errs) == 0 {
		errs = bullets
	}
	for _, f := range failedFiles {
		if !hasFile(errs, f) {
			errs = append(errs, testIssue(f, "Test suite failed: "+f, SeverityError))
		}
	}

	if len(errs) == 0 && len(warnings) == 0 && mentionsError(out) {
		return nil, &ParseError{Type: TypeTest, Reason: "no test failures recognized"}
	}
	return append(errs, warnings...), nil
}

func testIssue(file, msg string, sev Severity) ValidationError {
	return ValidationError{File: file, Message: msg, Severity: sev, Category: CategoryTest}
}

func hasFile(issues []ValidationError, file string) bool {
	for _, i := range issues {
		if i.File == file {
			return true
		}
	}
	return false
}

// ─── build / custom ──────────────────────────────────────────────────────────

func parseBuild(stdout, stderr string) ([]ValidationError, error) {
	return heuristic(joinOutput(stdout, stderr), CategoryBuild), nil
}

func parseCustom(stdout, stderr string) ([]ValidationError, error) {
	return heuristic(joinOutput(stdout, stderr), CategoryCustom), nil
}

var (
	locRe   = regexp.MustCompile(`([^\s:()'"]+\.[A-Za-z0-9]+)(?:[:(](\d+)(?:[:,](\d+))?\)?)?`)
	cleanRe = regexp.MustCompile(`(?i)\b(0|no|zero|without)\s+errors?\b`)
	quietRe = regexp.MustCompile(`(?i)\b(0|no|zero|without)\s+warnings?\b`)
)

func isErrorLine(l string) bool {
	lower := strings.ToLower(l)
	return strings.Contains(lower, "error") && !cleanRe.MatchString(l)
}

func isWarningLine(l string) bool {
	lower := strings.ToLower(l)
	return strings.Contains(lower, "warning") && !quietRe.MatchString(l)
}

// heuristic treats any line mentioning "error" as an error and any line
// mentioning "warning" as a warning, picking up a file location if present.
func heuristic(out string, category Category) []ValidationError {
	var issues []ValidationError
	for _, raw := range lines(out) {
		l := strings.TrimSpace(ansiRe.ReplaceAllString(raw, ""))
		if l == "" {
			continue
		}
		var sev Severity
		switch {
		case isErrorLine(l):
			sev = SeverityError
		case isWarningLine(l):
			sev = SeverityWarning
		default:
			continue
		}
		issue := ValidationError{Message: l, Severity: sev, Category: category}
		for _, m := range locRe.FindAllStringSubmatch(l, -1) {
			if m[2] != "" {
				issue.File = m[1]
				issue.Line = atoi(m[2])
				issue.Column = atoi(m[3])
				break
			}
		}
		issues = append(issues, issue)
	}
	return issues
}

// ─── format ──────────────────────────────────────────────────────────────────

var formattableExts = map[string]bool{
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
	".json": true, ".css": true, ".scss": true, ".less": true,
	".html": true, ".vue": true, ".svelte": true, ".md": true, ".mdx": true,
	".yaml": true, ".yml": true, ".graphql": true, ".gql": true,
}

var (
	fmtLevelRe = regexp.MustCompile(`^\[(warn|error)\]\s+(.*)$`)
	// [error] src/a.ts: SyntaxError: Unexpected token (3:7)
	fmtSyntaxRe = regexp.MustCompile(`^(\S+?):\s+(\w*Error): (.*?)(?:\s+\((\d+):(\d+)\))?$`)
)

func parseFormat(stdout, stderr string) ([]ValidationError, error) {
	var out []ValidationError
	for _, raw := range lines(joinOutput(stdout, stderr)) {
		l := strings.TrimSpace(ansiRe.ReplaceAllString(raw, ""))
		if l == "" {
			continue
		}
		level := ""
		if m := fmtLevelRe.FindStringSubmatch(l); m != nil {
			level, l = m[1], strings.TrimSpace(m[2])
		}

		if level == "error" {
			if m := fmtSyntaxRe.FindStringSubmatch(l); m != nil {
				out = append(out, ValidationError{
					File:     m[1],
					Line:     atoi(m[4]),
					Column:   atoi(m[5]),
					Message:  m[3],
					Rule:     m[2],
					Severity: SeverityError,
					Category: CategorySyntax,
				})
				continue
			}
		}

		if looksLikePath(l) && formattableExts[ext(l)] {
			out = append(out, ValidationError{
				File:     l,
				Message:  "File needs formatting",
				Rule:     "prettier",
				Severity: SeverityError,
				Category: CategoryFormat,
				Fixable:  true,
			})
		}
	}
	if len(out) == 0 && mentionsError(joinOutput(stdout, stderr)) {
		return nil, &ParseError{Type: TypeFormat, Reason: "no formatter diagnostics recognized"}
	}
	return out, nil
}

// looksLikePath reports whether s is a single token with a file extension.
func looksLikePath(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t") && ext(s) != ""
}

func ext(s string) string {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 || strings.ContainsAny(s[i:], `/\`) {
		return ""
	}
	return strings.ToLower(s[i:])
}
