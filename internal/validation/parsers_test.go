package validation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- typescript ---

func TestParseTypeScript_SingleError(t *testing.T) {
	out := "src/index.ts(3,7): error TS2322: Type 'string' is not assignable to type 'number'.\n"

	got, err := parseTypeScript(out, "")
	require.NoError(t, err)

	want := []ValidationError{{
		File:     "src/index.ts",
		Line:     3,
		Column:   7,
		Message:  "Type 'string' is not assignable to type 'number'.",
		Rule:     "TS2322",
		Severity: SeverityError,
		Category: CategoryType,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTypeScript_PrettySyntaxAndGlobal(t *testing.T) {
	out := "\x1b[96msrc/a.ts\x1b[0m:\x1b[93m1\x1b[0m:\x1b[93m10\x1b[0m - \x1b[91merror\x1b[0m\x1b[90m TS1005: \x1b[0m';' expected.\n" +
		"\n" +
		"error TS5058: The specified path does not exist: 'tsconfig.json'.\n" +
		"Found 2 errors.\n"

	got, err := parseTypeScript(out, "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "src/a.ts", got[0].File)
	assert.Equal(t, 1, got[0].Line)
	assert.Equal(t, 10, got[0].Column)
	assert.Equal(t, CategorySyntax, got[0].Category)

	assert.Empty(t, got[1].File)
	assert.Equal(t, "TS5058", got[1].Rule)
}

func TestParseTypeScript_UnrecognizedErrorIsParseError(t *testing.T) {
	_, err := parseTypeScript("", "sh: npx: Error loading module\n")
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestParseTypeScript_CleanOutput(t *testing.T) {
	got, err := parseTypeScript("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- javascript ---

func TestParseJavaScript_NodeCheck(t *testing.T) {
	stderr := "/app/src/a.js:3\n" +
		"const x = ;\n" +
		"          ^\n" +
		"\n" +
		"SyntaxError: Unexpected token ';'\n" +
		"    at wrapSafe (node:internal/modules/cjs/loader:1378:20)\n" +
		"\n" +
		"Node.js v20.11.0\n"

	got, err := parseJavaScript("", stderr)
	require.NoError(t, err)

	want := []ValidationError{{
		File:     "/app/src/a.js",
		Line:     3,
		Column:   11,
		Message:  "Unexpected token ';'",
		Rule:     "SyntaxError",
		Severity: SeverityError,
		Category: CategorySyntax,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

// --- eslint ---

const eslintJSON = `[
  {
    "filePath": "/app/src/a.js",
    "messages": [
      {
        "ruleId": "prefer-const",
        "severity": 2,
        "message": "'a' is never reassigned. Use 'const' instead.",
        "line": 1,
        "column": 5,
        "fix": {"range": [0, 3], "text": "const"}
      },
      {
        "ruleId": "no-console",
        "severity": 1,
        "message": "Unexpected console statement.",
        "line": 2,
        "column": 1
      }
    ],
    "errorCount": 1,
    "warningCount": 1
  }
]`

func TestParseESLint_JSONAndTextAgree(t *testing.T) {
	fromJSON, err := parseESLint(eslintJSON, "")
	require.NoError(t, err)
	require.Len(t, fromJSON, 2)

	texts := map[string]string{
		"default": "/app/src/a.js:1:5: error 'a' is never reassigned. Use 'const' instead. (prefer-const)\n" +
			"/app/src/a.js:2:1: warning Unexpected console statement. (no-console)\n",
		"compact": "/app/src/a.js: line 1, col 5, Error - 'a' is never reassigned. Use 'const' instead. (prefer-const)\n" +
			"/app/src/a.js: line 2, col 1, Warning - Unexpected console statement. (no-console)\n\n2 problems\n",
		"unix": "/app/src/a.js:1:5: 'a' is never reassigned. Use 'const' instead. [Error/prefer-const]\n" +
			"/app/src/a.js:2:1: Unexpected console statement. [Warning/no-console]\n",
		"stylish": "\n/app/src/a.js\n" +
			"  1:5  error    'a' is never reassigned. Use 'const' instead.  prefer-const\n" +
			"  2:1  warning  Unexpected console statement.                   no-console\n" +
			"\n✖ 2 problems (1 error, 1 warning)\n" +
			"  1 error and 0 warnings potentially fixable with the `--fix` option.\n",
	}

	for name, text := range texts {
		t.Run(name, func(t *testing.T) {
			fromText, err := parseESLint(text, "")
			require.NoError(t, err)
			require.Len(t, fromText, 2)

			if diff := cmp.Diff(fromJSON, fromText); diff != "" {
				t.Errorf("JSON and %s disagree (-json +text):\n%s", name, diff)
			}
		})
	}

	assert.True(t, fromJSON[0].Fixable)
	assert.Equal(t, SeverityError, fromJSON[0].Severity)
	assert.False(t, fromJSON[1].Fixable)
	assert.Equal(t, SeverityWarning, fromJSON[1].Severity)
}

func TestParseESLint_FixableRuleFromText(t *testing.T) {
	fromJSON, err := parseESLint(`[{"filePath":"/app/b.js","messages":[{"ruleId":"no-useless-rename","severity":2,"message":"Import { a } unnecessarily renamed.","line":3,"column":10,"fix":{"range":[20,26],"text":"a"}}]}]`, "")
	require.NoError(t, err)
	fromText, err := parseESLint("/app/b.js:3:10: error Import { a } unnecessarily renamed. (no-useless-rename)\n", "")
	require.NoError(t, err)

	if diff := cmp.Diff(fromJSON, fromText); diff != "" {
		t.Errorf("JSON and text disagree (-json +text):\n%s", diff)
	}
	require.Len(t, fromText, 1)
	assert.True(t, fromText[0].Fixable)
}

func TestParseESLint_ParsingError(t *testing.T) {
	out := `[{"filePath":"/app/b.js","messages":[{"ruleId":null,"fatal":true,"severity":2,"message":"Parsing error: Unexpected token }","line":4,"column":1}]}]`

	got, err := parseESLint(out, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, CategorySyntax, got[0].Category)
	assert.Empty(t, got[0].Rule)
}

func TestParseESLint_CrashFallsBack(t *testing.T) {
	_, err := parseESLint("", "Oops! Something went wrong! :(\n\nESLint: 9.0.0\n\nError: Could not find config file.\n")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))

	got, err := classify(TypeESLint, "", "Error: Could not find config file.\n")
	assert.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryCustom, got[0].Category)
}

// --- test runner ---

func TestParseTest_Jest(t *testing.T) {
	out := "FAIL src/sum.test.js\n" +
		"  sum\n" +
		"    ✓ adds positives (2 ms)\n" +
		"    ✕ adds negatives (3 ms)\n" +
		"\n" +
		"  ● sum › adds negatives\n" +
		"\n" +
		"    expect(received).toBe(expected)\n" +
		"PASS src/util.test.js\n" +
		"    ✓ formats with warning about deprecated option\n" +
		"Tests: 1 failed, 2 passed, 3 total\n"

	got, err := parseTest("", out)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, SeverityError, got[0].Severity)
	assert.Equal(t, "src/sum.test.js", got[0].File)
	assert.Contains(t, got[0].Message, "adds negatives")

	assert.Equal(t, SeverityWarning, got[1].Severity)
	assert.Equal(t, "src/util.test.js", got[1].File)
}

func TestParseTest_BulletsOnlyAndFailedSuite(t *testing.T) {
	out := "FAIL src/a.test.ts\n" +
		"  ● suite › case one\n" +
		"FAIL src/b.test.ts\n" +
		"  Test suite failed to run\n"

	got, err := parseTest(out, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "suite › case one", got[0].Message)
	assert.Equal(t, "src/a.test.ts", got[0].File)
	assert.Equal(t, "src/b.test.ts", got[1].File)
	assert.Equal(t, "Test suite failed: src/b.test.ts", got[1].Message)
}

func TestParseTest_TAPAndGo(t *testing.T) {
	out := "not ok 2 - handles empty input\n--- FAIL: TestParse (0.00s)\nok 1 - works\n"
	got, err := parseTest(out, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// --- build / custom ---

func TestHeuristic(t *testing.T) {
	out := "Compiling...\n" +
		"src/main.ts:10:5 - error TS2304: Cannot find name 'foo'.\n" +
		"WARNING in ./src/a.ts 3:7\n" +
		"Build finished with 0 errors\n" +
		"No warnings.\n"

	got := heuristic(out, CategoryBuild)
	require.Len(t, got, 2)

	assert.Equal(t, SeverityError, got[0].Severity)
	assert.Equal(t, "src/main.ts", got[0].File)
	assert.Equal(t, 10, got[0].Line)
	assert.Equal(t, 5, got[0].Column)
	assert.Equal(t, CategoryBuild, got[0].Category)

	assert.Equal(t, SeverityWarning, got[1].Severity)
}

func TestParserFor_UnknownIsCustom(t *testing.T) {
	got, err := ParserFor("rust")("error: thing broke\n", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryCustom, got[0].Category)
}

// --- format ---

func TestParseFormat(t *testing.T) {
	out := "Checking formatting...\n" +
		"[warn] src/a.ts\n" +
		"[warn] styles/main.css\n" +
		"[warn] Code style issues found in 2 files. Run Prettier with --write to fix.\n"
	stderr := "[error] src/broken.ts: SyntaxError: Unexpected token (3:7)\n"

	got, err := parseFormat(out, stderr)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for _, g := range got[:2] {
		assert.Equal(t, "File needs formatting", g.Message)
		assert.True(t, g.Fixable)
		assert.Equal(t, CategoryFormat, g.Category)
	}
	assert.Equal(t, "src/a.ts", got[0].File)
	assert.Equal(t, ValidationError{
		File: "src/broken.ts", Line: 3, Column: 7,
		Message: "Unexpected token", Rule: "SyntaxError",
		Severity: SeverityError, Category: CategorySyntax,
	}, got[2])
}

func TestParseFormat_IgnoresUnknownExtensions(t *testing.T) {
	got, err := parseFormat("[warn] build/output.bin\n", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Summarize ---

func TestSummarize(t *testing.T) {
	errs := []ValidationError{
		{File: "a.ts", Fixable: true},
		{File: "a.ts"},
		{File: "b.ts"},
		{},
	}
	warnings := []ValidationError{
		{File: "b.ts", Fixable: true},
		{File: "c.ts"},
	}

	assert.Equal(t, Summary{
		TotalFiles:        3,
		FilesWithErrors:   2,
		FilesWithWarnings: 2,
		TotalErrors:       4,
		TotalWarnings:     2,
		FixableIssues:     2,
	}, Summarize(errs, warnings))
}
