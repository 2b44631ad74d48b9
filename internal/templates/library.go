// Package templates holds reusable strategic questions. A built-in set is
// always present; a YAML file on disk and the backend's library are merged
// on top of it.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrUnfilled is returned when a question still has placeholders after
// filling.
var ErrUnfilled = errors.New("unfilled template placeholders")

// Both {{TIME_FRAME}} and {market} styles are accepted.
var placeholderRegexp = regexp.MustCompile(`\{\{\s*([A-Za-z_]+)\s*\}\}|\{([A-Za-z_]+)\}`)

type file struct {
	Templates []types.Template `yaml:"templates"`
}

// Library is an ordered set of templates keyed by case-insensitive name.
type Library struct {
	mu        sync.RWMutex
	templates []types.Template
	index     map[string]int
	logger    *zap.Logger
}

// Defaults returns a library holding only the built-in templates.
func Defaults() *Library {
	lib := &Library{index: make(map[string]int), logger: zap.NewNop()}
	var f file
	if err := yaml.Unmarshal(defaultsYAML, &f); err != nil {
		panic(fmt.Sprintf("templates: bad built-in defaults: %v", err))
	}
	for _, t := range f.Templates {
		lib.put(t)
	}
	return lib
}

// Load returns the built-in templates overlaid with those in path. A
// missing file is not an error.
func Load(path string, logger *zap.Logger) (*Library, error) {
	lib := Defaults()
	if logger != nil {
		lib.logger = logger
	}
	if path == "" {
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		lib.logger.Debug("No template file, using built-ins", zap.String("path", path))
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	for _, t := range f.Templates {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		lib.put(t)
	}

	lib.logger.Debug("Templates loaded",
		zap.String("path", path),
		zap.Int("count", len(f.Templates)))
	return lib, nil
}

// Save writes every template in the library to path as YAML.
func (l *Library) Save(path string) error {
	data, err := yaml.Marshal(file{Templates: l.List()})
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write templates: %w", err)
	}
	return nil
}

// Merge adds remote templates the library does not have yet and refreshes
// usage counts on those it does. It returns how many were added.
func (l *Library) Merge(remote []types.Template) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, t := range remote {
		key := normalize(t.Name)
		if key == "" {
			continue
		}
		if i, ok := l.index[key]; ok {
			l.templates[i].UsageCount = t.UsageCount
			if l.templates[i].ID == 0 {
				l.templates[i].ID = t.ID
			}
			continue
		}
		l.index[key] = len(l.templates)
		l.templates = append(l.templates, t)
		added++
	}
	return added
}

func (l *Library) put(t types.Template) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := normalize(t.Name)
	if i, ok := l.index[key]; ok {
		l.templates[i] = t
		return
	}
	l.index[key] = len(l.templates)
	l.templates = append(l.templates, t)
}

// List returns the templates in insertion order.
func (l *Library) List() []types.Template {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Template, len(l.templates))
	copy(out, l.templates)
	return out
}

// Popular returns templates by descending usage count.
func (l *Library) Popular() []types.Template {
	out := l.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UsageCount > out[j].UsageCount
	})
	return out
}

// Get finds a template by name or by its 1-based position in List.
func (l *Library) Get(ref string) (types.Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i, ok := l.index[normalize(ref)]; ok {
		return l.templates[i], true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil && n >= 1 && n <= len(l.templates) {
		return l.templates[n-1], true
	}
	return types.Template{}, false
}

// Len returns the number of templates.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.templates)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Placeholders returns the distinct placeholder names in s, lowercased, in
// order of first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRegexp.FindAllStringSubmatch(s, -1) {
		name := strings.ToLower(m[1] + m[2])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Fill replaces placeholders with values from vars; keys match
// case-insensitively. Unknown placeholders are left in place.
func Fill(s string, vars map[string]string) string {
	lower := make(map[string]string, len(vars))
	for k, v := range vars {
		lower[strings.ToLower(k)] = v
	}
	return placeholderRegexp.ReplaceAllStringFunc(s, func(match string) string {
		m := placeholderRegexp.FindStringSubmatch(match)
		if v, ok := lower[strings.ToLower(m[1]+m[2])]; ok {
			return v
		}
		return match
	})
}

// ToRequest builds an analysis request from t. Explicit region and
// time_frame entries in vars override the template defaults and are also
// available as placeholders.
func ToRequest(t types.Template, vars map[string]string) (types.AnalysisRequest, error) {
	merged := map[string]string{
		"region":     t.DefaultRegion,
		"time_frame": t.DefaultTimeFrame,
	}
	for k, v := range vars {
		if v != "" {
			merged[strings.ToLower(k)] = v
		}
	}

	req := types.AnalysisRequest{
		StrategicQuestion: Fill(t.QuestionTemplate, merged),
		TimeFrame:         merged["time_frame"],
		Region:            merged["region"],
		Prompt:            t.DefaultInstructions,
	}

	if missing := Placeholders(req.StrategicQuestion); len(missing) > 0 {
		return req, fmt.Errorf("%w: %s", ErrUnfilled, strings.Join(missing, ", "))
	}
	return req, nil
}
