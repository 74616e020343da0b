package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/hoofy-guard/internal/runner"
	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/HendryAvila/hoofy-guard/internal/writer"
	"github.com/spf13/cast"
)

// ─── File batch ──────────────────────────────────────────────────────────────

// FileBatch is the normalized payload of a file-mutation call.
type FileBatch struct {
	Files []writer.FileMutation `json:"files"`
}

// FilesShape normalizes file-mutation payloads into a FileBatch.
type FilesShape struct{}

// Files is the shape for file-mutation calls.
var Files = FilesShape{}

func (FilesShape) Field() string { return "files" }

// Aliases are the alternate keys hosts have been seen to use for the batch.
func (FilesShape) Aliases() []string {
	return []string{"file", "mutations", "changes", "edits"}
}

func (FilesShape) WrapsArray() bool { return true }

func (FilesShape) Reject(field, constraint string, cause error) error {
	return &MutationError{Index: -1, Field: field, Constraint: constraint, Err: cause}
}

// Promote lifts a lone {path, content} object into a one-element batch.
func (FilesShape) Promote(obj Object) (Object, bool) {
	if _, ok := obj["path"]; !ok {
		return nil, false
	}
	return Object{"files": []any{map[string]any(obj)}}, true
}

func (s FilesShape) FromObject(obj Object) (FileBatch, error) {
	items, err := s.list(obj["files"], 0)
	if err != nil {
		return FileBatch{}, err
	}
	if len(items) == 0 {
		return FileBatch{}, s.Reject("files", "at least one file is required", ErrEmpty)
	}

	batch := FileBatch{Files: make([]writer.FileMutation, 0, len(items))}
	for i, item := range items {
		m, err := mutation(i, item)
		if err != nil {
			return FileBatch{}, err
		}
		batch.Files = append(batch.Files, m)
	}
	return batch, nil
}

// list resolves the value of the files field to a slice of elements.
func (s FilesShape) list(v any, depth int) ([]any, error) {
	if depth > maxDepth {
		return nil, s.Reject("files", "payload nests encoded JSON too deeply", ErrInvalidType)
	}
	switch r := Classify(v).(type) {
	case Array:
		return r, nil
	case Object:
		if _, ok := r["path"]; ok {
			return []any{map[string]any(r)}, nil
		}
		return nil, s.Reject("files", "must be an array of {path, content} objects", ErrInvalidType)
	case String:
		var decoded any
		if err := json.Unmarshal([]byte(r), &decoded); err != nil {
			return nil, s.Reject("files", "must be an array of {path, content} objects, got an undecodable string", ErrInvalidType)
		}
		return s.list(decoded, depth+1)
	case Primitive:
		if r.Value == nil {
			return nil, s.Reject("files", "is required", ErrMissing)
		}
		return nil, s.Reject("files", fmt.Sprintf("must be an array, got %T", r.Value), ErrInvalidType)
	}
	return nil, s.Reject("files", "unsupported payload", ErrInvalidType)
}

func mutation(i int, item any) (writer.FileMutation, error) {
	var obj Object
	switch r := Classify(item).(type) {
	case Object:
		obj = r
	case String:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(r), &decoded); err != nil {
			return writer.FileMutation{}, &MutationError{Index: i, Field: "path", Constraint: "each file must be a {path, content} object", Err: ErrInvalidType}
		}
		obj = decoded
	default:
		return writer.FileMutation{}, &MutationError{Index: i, Field: "path", Constraint: "each file must be a {path, content} object", Err: ErrInvalidType}
	}

	rawPath, ok := obj["path"]
	if !ok || rawPath == nil {
		return writer.FileMutation{}, &MutationError{Index: i, Field: "path", Constraint: "is required", Err: ErrMissing}
	}
	path, err := primitiveString(rawPath)
	if err != nil {
		return writer.FileMutation{}, &MutationError{Index: i, Field: "path", Constraint: "must be a string", Err: ErrInvalidType}
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return writer.FileMutation{}, &MutationError{Index: i, Field: "path", Constraint: "must not be empty", Err: ErrEmpty}
	}

	rawContent, ok := obj["content"]
	if !ok || rawContent == nil {
		return writer.FileMutation{}, &MutationError{Index: i, Field: "content", Constraint: "is required (use \"\" for an empty file)", Err: ErrMissing}
	}
	content, err := contentString(rawContent)
	if err != nil {
		return writer.FileMutation{}, &MutationError{Index: i, Field: "content", Constraint: err.Error(), Err: ErrInvalidType}
	}

	return writer.FileMutation{Path: path, Content: content}, nil
}

// contentString accepts strings and primitives, and serializes structured
// JSON (hosts sometimes send package.json content as an object) with a
// two-space indent and trailing newline.
func contentString(v any) (string, error) {
	switch r := Classify(v).(type) {
	case String:
		return string(r), nil
	case Primitive:
		return cast.ToStringE(r.Value)
	case Object, Array:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("cannot serialize structured content: %w", err)
		}
		return string(data) + "\n", nil
	}
	return "", fmt.Errorf("must be a string")
}

// primitiveString coerces strings and scalars, refusing objects and arrays.
func primitiveString(v any) (string, error) {
	switch r := Classify(v).(type) {
	case String:
		return string(r), nil
	case Primitive:
		return cast.ToStringE(r.Value)
	}
	return "", ErrInvalidType
}

// ─── Validation request ──────────────────────────────────────────────────────

// Fix modes.
const (
	// FixAfter runs the fix variant only after a failed check run.
	FixAfter = validation.FixAfter
	// FixInline substitutes the fix variant for the check command.
	FixInline = validation.FixInline
)

// ValidationRequest is the normalized payload of a validation call.
type ValidationRequest struct {
	Type           string   `json:"type"`
	Command        string   `json:"command,omitempty"`
	Files          []string `json:"files,omitempty"`
	Fix            bool     `json:"fix,omitempty"`
	FixMode        string   `json:"fix_mode,omitempty"`
	ConfigFile     string   `json:"config_file,omitempty"`
	WorkingDir     string   `json:"working_dir,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// ValidationShape normalizes validation payloads.
type ValidationShape struct{}

// Validation is the shape for validation calls.
var Validation = ValidationShape{}

func (ValidationShape) Field() string { return "type" }

func (ValidationShape) Aliases() []string {
	return []string{"validation_type", "kind", "validator"}
}

func (ValidationShape) Reject(field, constraint string, cause error) error {
	return &ParameterError{Param: field, Constraint: constraint, Err: cause}
}

// FromString treats a bare string as the validation type.
func (s ValidationShape) FromString(str string) (ValidationRequest, error) {
	return s.FromObject(Object{"type": str})
}

func (s ValidationShape) FromObject(obj Object) (ValidationRequest, error) {
	var req ValidationRequest

	typ, err := primitiveString(obj["type"])
	if err != nil {
		return req, s.Reject("type", "must be a string", ErrInvalidType)
	}
	req.Type = strings.ToLower(strings.TrimSpace(typ))
	if req.Type == "" {
		return req, s.Reject("type", "must not be empty", ErrEmpty)
	}

	if v, ok := present(obj, "command"); ok {
		cmd, err := Normalize(v, Command)
		if err != nil && !isEmptyOptional(err) {
			return req, err
		}
		req.Command = cmd
	}

	if v, ok := present(obj, "files"); ok {
		files, err := Normalize(v, PathList)
		if err != nil && !isEmptyOptional(err) {
			return req, err
		}
		req.Files = files
	}

	if v, ok := present(obj, "fix"); ok {
		fix, err := cast.ToBoolE(v)
		if err != nil {
			return req, s.Reject("fix", "must be a boolean", ErrInvalidType)
		}
		req.Fix = fix
	}

	req.FixMode = FixAfter
	if v, ok := present(obj, "fix_mode"); ok {
		mode, err := primitiveString(v)
		if err != nil {
			return req, s.Reject("fix_mode", "must be a string", ErrInvalidType)
		}
		switch mode = strings.ToLower(strings.TrimSpace(mode)); mode {
		case "", FixAfter:
		case FixInline:
			req.FixMode = FixInline
		default:
			return req, s.Reject("fix_mode", fmt.Sprintf("must be %q or %q, got %q", FixAfter, FixInline, mode), ErrInvalidValue)
		}
	}

	for key, dst := range map[string]*string{"config_file": &req.ConfigFile, "working_dir": &req.WorkingDir} {
		if v, ok := present(obj, key); ok {
			str, err := primitiveString(v)
			if err != nil {
				return req, s.Reject(key, "must be a string", ErrInvalidType)
			}
			*dst = strings.TrimSpace(str)
		}
	}

	if v, ok := present(obj, "timeout_seconds"); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return req, s.Reject("timeout_seconds", "must be an integer", ErrInvalidType)
		}
		if n < 0 {
			return req, s.Reject("timeout_seconds", "must not be negative", ErrInvalidValue)
		}
		req.TimeoutSeconds = n
	}

	return req, nil
}

// present reports whether key is set to something other than null.
func present(obj Object, key string) (any, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// isEmptyOptional lets optional fields be sent as "" or [] by hosts that
// always emit every declared argument.
func isEmptyOptional(err error) bool {
	return errors.Is(err, ErrEmpty) || errors.Is(err, ErrMissing)
}

// ─── Command ─────────────────────────────────────────────────────────────────

// CommandShape normalizes a shell command. Bare strings are used verbatim;
// arrays of arguments are quoted and joined.
type CommandShape struct{}

// Command is the shape for command arguments.
var Command = CommandShape{}

func (CommandShape) Field() string { return "command" }

func (CommandShape) Aliases() []string { return []string{"cmd"} }

func (CommandShape) Reject(field, constraint string, cause error) error {
	return &ParameterError{Param: field, Constraint: constraint, Err: cause}
}

func (s CommandShape) FromObject(obj Object) (string, error) {
	return Normalize(obj["command"], s)
}

func (s CommandShape) FromString(str string) (string, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return "", s.Reject("command", "must not be empty", ErrEmpty)
	}
	return str, nil
}

func (s CommandShape) FromArray(arr Array) (string, error) {
	if len(arr) == 0 {
		return "", s.Reject("command", "at least one argument is required", ErrEmpty)
	}
	args := make([]string, 0, len(arr))
	for _, a := range arr {
		str, err := primitiveString(a)
		if err != nil {
			return "", s.Reject("command", "arguments must be strings", ErrInvalidType)
		}
		args = append(args, str)
	}
	return runner.QuoteArgs(args), nil
}

// ─── Path list ───────────────────────────────────────────────────────────────

// PathListShape normalizes a list of file paths. A bare string is one path.
type PathListShape struct{}

// PathList is the shape for file-path lists.
var PathList = PathListShape{}

func (PathListShape) Field() string { return "files" }

func (PathListShape) Aliases() []string { return []string{"paths", "file"} }

func (PathListShape) Reject(field, constraint string, cause error) error {
	return &ParameterError{Param: field, Constraint: constraint, Err: cause}
}

func (s PathListShape) FromObject(obj Object) ([]string, error) {
	return Normalize(obj["files"], s)
}

func (s PathListShape) FromString(str string) ([]string, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, s.Reject("files", "at least one path is required", ErrEmpty)
	}
	return []string{str}, nil
}

func (s PathListShape) FromArray(arr Array) ([]string, error) {
	if len(arr) == 0 {
		return nil, s.Reject("files", "at least one path is required", ErrEmpty)
	}
	paths := make([]string, 0, len(arr))
	for i, a := range arr {
		str, err := primitiveString(a)
		if err != nil {
			return nil, s.Reject(fmt.Sprintf("files[%d]", i), "must be a string", ErrInvalidType)
		}
		if str = strings.TrimSpace(str); str == "" {
			return nil, s.Reject(fmt.Sprintf("files[%d]", i), "must not be empty", ErrEmpty)
		}
		paths = append(paths, str)
	}
	return paths, nil
}
