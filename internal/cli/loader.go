package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedRule is one compiled rule and where it was declared.
type LoadedRule struct {
	Key  string
	File string
	Rule ir.Rule
}

// LoadResult contains the rules compiled from a directory.
type LoadResult struct {
	Rules     []LoadedRule
	FileCount int
}

// LoadError represents an error that occurred during rule loading.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants shared by all commands. Rule-level codes come from
// the compiler package (E1xx).
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // File read failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE evaluation failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeDuplicateKey = "E008" // Rule key declared in two files
	ErrCodeStore        = "E009" // Store unreachable or write failed
)

// LoadRules compiles every .cue file under path, which may be a directory
// or a single file. Each file is compiled on its own; rules are returned
// sorted by file, then in declaration order.
func LoadRules(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules path: %v", err)}}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
	}

	result := &LoadResult{FileCount: len(files)}
	seen := make(map[string]string) // key -> file
	var errs []error

	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", file, err)})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}

		defs, compileErrs := compiler.CompileSource(file, src)
		for _, cerr := range compileErrs {
			errs = append(errs, convertCompileError(cerr, file))
			if mode == LoadModeFailFast {
				return result, errs
			}
		}

		for _, def := range defs {
			if prev, dup := seen[def.Key]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrCodeDuplicateKey,
					Field:   "rule." + def.Key,
					Message: fmt.Sprintf("rule %q declared in both %s and %s", def.Key, prev, file),
				})
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			seen[def.Key] = file
			result.Rules = append(result.Rules, LoadedRule{Key: def.Key, File: file, Rule: def.Rule})
		}
	}

	if len(result.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("no rules found in %s", path)})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, file string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code := MapFieldToErrorCode(compileErr.Field)
		if compileErr.Field == "cue" {
			code = ErrCodeBuildFailed
		}
		return &LoadError{
			Code:    code,
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", file, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "name":
		return compiler.ErrRuleNameEmpty
	case field == "trigger", strings.HasPrefix(field, "trigger."):
		return compiler.ErrInvalidTrigger
	case field == "actions":
		return compiler.ErrRuleNoActions
	case strings.HasPrefix(field, "actions[") && strings.HasSuffix(field, ".type"):
		return compiler.ErrUnknownActionType
	case strings.HasPrefix(field, "actions[") && strings.Contains(field, ".config"):
		return compiler.ErrInvalidConfig
	default:
		return ErrCodeGeneric
	}
}
