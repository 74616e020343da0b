package params

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/HendryAvila/hoofy-guard/internal/writer"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Classify ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want RawParam
	}{
		{"nil", nil, Primitive{}},
		{"object", map[string]any{"a": 1.0}, Object{"a": 1.0}},
		{"array", []any{"x"}, Array{"x"}},
		{"string", "hi", String("hi")},
		{"bool", true, Primitive{Value: true}},
		{"number", 3.0, Primitive{Value: 3.0}},
		{"typed struct", writer.FileMutation{Path: "a", Content: "b"}, Object{"path": "a", "content": "b"}},
		{"typed slice", []string{"a", "b"}, Array{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Classify(tt.in)); diff != "" {
				t.Errorf("Classify mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// --- Files ---

func TestNormalizeFiles_AcceptedForms(t *testing.T) {
	want := FileBatch{Files: []writer.FileMutation{
		{Path: "src/a.ts", Content: "export const a = 1;\n"},
		{Path: "src/b.ts", Content: ""},
	}}

	canonical := map[string]any{"files": []any{
		map[string]any{"path": "src/a.ts", "content": "export const a = 1;\n"},
		map[string]any{"path": "src/b.ts", "content": ""},
	}}
	encoded, err := json.Marshal(canonical)
	require.NoError(t, err)
	encodedFiles, err := json.Marshal(canonical["files"])
	require.NoError(t, err)
	doubleEncoded, err := json.Marshal(string(encoded))
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  any
	}{
		{"canonical object", canonical},
		{"bare array", canonical["files"]},
		{"encoded object", string(encoded)},
		{"encoded array", string(encodedFiles)},
		{"object with encoded files field", map[string]any{"files": string(encodedFiles)}},
		{"double encoded", string(doubleEncoded)},
		{"alias key", map[string]any{"mutations": canonical["files"]}},
		{"edits alias", map[string]any{"edits": canonical["files"]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, Files)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("batch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeFiles_SingleObjectIsPromoted(t *testing.T) {
	got, err := Normalize(map[string]any{"path": "README.md", "content": "# hi\n"}, Files)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "README.md", got.Files[0].Path)
}

func TestNormalizeFiles_Idempotent(t *testing.T) {
	first, err := Normalize([]any{map[string]any{"path": "a.txt", "content": "x"}}, Files)
	require.NoError(t, err)

	second, err := Normalize(first, Files)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeFiles_StructuredContentIsSerialized(t *testing.T) {
	got, err := Normalize(map[string]any{"files": []any{
		map[string]any{"path": "package.json", "content": map[string]any{"name": "demo"}},
	}}, Files)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"demo\"\n}\n", got.Files[0].Content)
}

func TestNormalizeFiles_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		cause     error
		index     int
		field     string
		wantInMsg string
	}{
		{"nil", nil, ErrMissing, -1, "files", "files: is required"},
		{"empty array", []any{}, ErrEmpty, -1, "files", "at least one file"},
		{"empty object", map[string]any{}, ErrMissing, -1, "files", "is required"},
		{"files null", map[string]any{"files": nil}, ErrMissing, -1, "files", "is required"},
		{"number", 42.0, ErrInvalidType, -1, "files", "unexpected"},
		{"garbage string", "not json", ErrInvalidType, -1, "files", "undecodable"},
		{"missing content", []any{map[string]any{"path": "a"}}, ErrMissing, 0, "content", "files[0].content"},
		{"empty path", []any{
			map[string]any{"path": "ok", "content": ""},
			map[string]any{"path": "  ", "content": "x"},
		}, ErrEmpty, 1, "path", "files[1].path: must not be empty"},
		{"non-object element", []any{"a.txt"}, ErrInvalidType, 0, "path", "{path, content}"},
		{"object path", []any{map[string]any{"path": map[string]any{}, "content": ""}}, ErrInvalidType, 0, "path", "must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, Files)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause), "want cause %v, got %v", tt.cause, err)
			assert.Contains(t, err.Error(), tt.wantInMsg)

			var me *MutationError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, tt.index, me.Index)
			assert.Equal(t, tt.field, me.Field)
		})
	}
}

func TestNormalizeFiles_EmptyVsMissingDistinct(t *testing.T) {
	_, missing := Normalize(map[string]any{}, Files)
	_, empty := Normalize(map[string]any{"files": []any{}}, Files)

	assert.ErrorIs(t, missing, ErrMissing)
	assert.ErrorIs(t, empty, ErrEmpty)
	assert.NotErrorIs(t, missing, ErrEmpty)
}

// --- Validation ---

func TestNormalizeValidation_BareStringIsType(t *testing.T) {
	got, err := Normalize("TypeScript", Validation)
	require.NoError(t, err)
	assert.Equal(t, ValidationRequest{Type: "typescript", FixMode: FixAfter}, got)
}

func TestNormalizeValidation_FullObject(t *testing.T) {
	got, err := Normalize(map[string]any{
		"type":            "eslint",
		"command":         []any{"npx", "eslint", "src dir"},
		"files":           "src/a.ts",
		"fix":             "true",
		"fix_mode":        "INLINE",
		"config_file":     ".eslintrc.json",
		"working_dir":     "web",
		"timeout_seconds": 30.0,
	}, Validation)
	require.NoError(t, err)

	want := ValidationRequest{
		Type:           "eslint",
		Command:        "npx eslint 'src dir'",
		Files:          []string{"src/a.ts"},
		Fix:            true,
		FixMode:        FixInline,
		ConfigFile:     ".eslintrc.json",
		WorkingDir:     "web",
		TimeoutSeconds: 30,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeValidation_AliasAndEncoded(t *testing.T) {
	got, err := Normalize(`{"kind":"test","files":["a_test.go","b_test.go"]}`, Validation)
	require.NoError(t, err)
	assert.Equal(t, "test", got.Type)
	assert.Equal(t, []string{"a_test.go", "b_test.go"}, got.Files)
}

func TestNormalizeValidation_EmptyOptionalsAreAbsent(t *testing.T) {
	got, err := Normalize(map[string]any{"type": "build", "command": "", "files": []any{}}, Validation)
	require.NoError(t, err)
	assert.Empty(t, got.Command)
	assert.Empty(t, got.Files)
}

func TestNormalizeValidation_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		param string
		cause error
	}{
		{"missing type", map[string]any{"command": "make"}, "type", ErrMissing},
		{"empty string", "", "type", ErrEmpty},
		{"bad fix", map[string]any{"type": "test", "fix": "perhaps"}, "fix", ErrInvalidType},
		{"bad fix mode", map[string]any{"type": "test", "fix_mode": "later"}, "fix_mode", ErrInvalidValue},
		{"negative timeout", map[string]any{"type": "test", "timeout_seconds": -1}, "timeout_seconds", ErrInvalidValue},
		{"array", []any{"test"}, "type", ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, Validation)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.cause)

			var pe *ParameterError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.param, pe.Param)
		})
	}
}

// --- Command / PathList ---

func TestNormalizeCommand(t *testing.T) {
	got, err := Normalize("  npm run lint  ", Command)
	require.NoError(t, err)
	assert.Equal(t, "npm run lint", got)

	got, err = Normalize(`["go","test","./..."]`, Command)
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", got)

	got, err = Normalize(map[string]any{"cmd": "make check"}, Command)
	require.NoError(t, err)
	assert.Equal(t, "make check", got)

	_, err = Normalize([]any{}, Command)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNormalizePathList(t *testing.T) {
	got, err := Normalize([]any{"a.go", " b.go "}, PathList)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, got)

	_, err = Normalize([]any{"a.go", 3.0, ""}, PathList)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmpty)
}
