package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

//go:embed templates/*.yaml
var templateFS embed.FS

type messageTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Templates renders notification emails keyed by template name.
type Templates struct {
	byKey map[string]compiled
}

// LoadTemplates parses every embedded YAML template.
func LoadTemplates() (*Templates, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("op=mailer.load_templates: %w", err)
	}
	t := &Templates{byKey: make(map[string]compiled, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("op=mailer.load_templates: read %s: %w", entry.Name(), err)
		}
		key := strings.TrimSuffix(entry.Name(), ".yaml")
		if err := t.add(key, data); err != nil {
			return nil, fmt.Errorf("op=mailer.load_templates: %w", err)
		}
	}
	return t, nil
}

func (t *Templates) add(key string, data []byte) error {
	var mt messageTemplate
	if err := yaml.Unmarshal(data, &mt); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if mt.Subject == "" || mt.Body == "" {
		return fmt.Errorf("template %s needs subject and body", key)
	}
	subj, err := template.New(key + ".subject").Option("missingkey=zero").Parse(mt.Subject)
	if err != nil {
		return fmt.Errorf("subject %s: %w", key, err)
	}
	body, err := template.New(key + ".body").Option("missingkey=zero").Parse(mt.Body)
	if err != nil {
		return fmt.Errorf("body %s: %w", key, err)
	}
	t.byKey[key] = compiled{subject: subj, body: body}
	return nil
}

// Keys lists the loaded template names.
func (t *Templates) Keys() []string {
	keys := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	return keys
}

// Render returns subject and body for key. An unknown key is ErrInvalidArgument.
func (t *Templates) Render(key string, vars map[string]string) (subject, body string, err error) {
	c, ok := t.byKey[key]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown template %q", domain.ErrInvalidArgument, key)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var sb, bb bytes.Buffer
	if err := c.subject.Execute(&sb, vars); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", key, err)
	}
	if err := c.body.Execute(&bb, vars); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", key, err)
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}
