// accolade/pkg/rules/loader.go

package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/validator"
)

// LoadError reports a rule file that could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader reads rule files and validates them before compiling.
type Loader struct {
	validator *validator.Validator
}

func NewLoader() (*Loader, error) {
	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	return &Loader{validator: v}, nil
}

// Parse validates and compiles one YAML rule document.
func (l *Loader) Parse(data []byte, source string) (*Rule, error) {
	var def map[string]any
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if def == nil {
		return nil, errors.New("empty rule file")
	}
	if err := l.validator.ValidateRule(def, filepath.Base(source)); err != nil {
		return nil, err
	}
	r, err := New(def)
	if err != nil {
		return nil, err
	}
	r.Source = source
	return r, nil
}

func (l *Loader) LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.Parse(data, path)
}

// LoadDir loads every *.yml and *.yaml file in dir, in name order. Invalid
// files and duplicate rule names are reported and skipped; only an
// unreadable directory fails the whole load.
func (l *Loader) LoadDir(dir string) ([]*Rule, []error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, logging.NewError(logging.ErrorTypeConfig, "cannot read rules directory", err,
			map[string]interface{}{"directory": dir})
	}

	var paths []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var (
		loaded   []*Rule
		problems []error
		seen     = make(map[string]string)
	)
	for _, path := range paths {
		r, err := l.LoadFile(path)
		if err != nil {
			problems = append(problems, &LoadError{Path: path, Err: err})
			continue
		}
		if first, dup := seen[r.Name]; dup {
			problems = append(problems, &LoadError{Path: path, Err: fmt.Errorf("rule %q is already defined in %s", r.Name, first)})
			continue
		}
		seen[r.Name] = path
		loaded = append(loaded, r)
	}

	logging.Logger.Info().Str("directory", dir).Int("rules", len(loaded)).Int("errors", len(problems)).Msg("Loaded rules")
	return loaded, problems, nil
}
