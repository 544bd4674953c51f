package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

// Well-known template keys.
const (
	KeyMentorSystem  = "mentor_system"
	KeyFreeSystem    = "free_system"
	KeySummarySystem = "summary_system"
)

// Template is an editable prompt template.
type Template struct {
	Key       string    `json:"key" yaml:"key"`
	Label     string    `json:"label" yaml:"label"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Validate checks a template before it is stored.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Key) == "" {
		return shared.WrapError("prompt", "Validate", shared.ErrInvalidInput, "key is required", nil)
	}
	if strings.TrimSpace(t.Content) == "" {
		return shared.WrapError("prompt", "Validate", shared.ErrInvalidInput, "content is required", nil)
	}
	return nil
}

// MentorConfig carries the school-wide mentor settings injected into prompts.
type MentorConfig struct {
	SchoolName string    `json:"school_name" yaml:"school_name"`
	Tone       string    `json:"tone" yaml:"tone"`
	Rules      string    `json:"rules" yaml:"rules"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// TemplateRepository stores prompt templates.
type TemplateRepository interface {
	// Get returns shared.ErrTemplateNotFound when key is absent.
	Get(ctx context.Context, key string) (*Template, error)
	List(ctx context.Context) ([]*Template, error)
	Upsert(ctx context.Context, t *Template) error
	Delete(ctx context.Context, key string) error
}

// ConfigRepository stores the mentor config.
type ConfigRepository interface {
	// GetMentorConfig returns a zero config when none was saved.
	GetMentorConfig(ctx context.Context) (MentorConfig, error)
	SaveMentorConfig(ctx context.Context, cfg MentorConfig) error
}

// NoHistory stands in for a student without a stored summary.
const NoHistory = "- Aucun historique significatif pour l'instant -"

// Built-in templates used when none is stored.
const (
	DefaultMentorTemplate = `Tu es le mentor pédagogique de {{ school_name }}.
Ton : {{ tone }}
Règles : {{ rules }}

Étudiant : {{ email }}

Résumé des échanges précédents :
{{ summary }}

Contexte du programme :
{{ program }}`

	DefaultFreeTemplate = `Tu es un assistant pédagogique en mode discussion libre.
Tu peux répondre à toutes les questions de l'étudiant, même si elles sortent du cadre du programme.
Voici les informations sur le résumé de ses interactions précédentes avec toi :
{{ summary }}`

	DefaultSummaryTemplate = `Tu maintiens un résumé concis du parcours d'un étudiant avec son mentor.

Résumé précédent :
{{ previous_summary }}

Dernier message de l'étudiant :
{{ last_user_message }}

Dernière réponse du mentor :
{{ last_assistant_reply }}

Rédige le nouveau résumé complet sous forme de liste à puces.`
)

// Defaults maps well-known keys to their built-in content.
var Defaults = map[string]string{
	KeyMentorSystem:  DefaultMentorTemplate,
	KeyFreeSystem:    DefaultFreeTemplate,
	KeySummarySystem: DefaultSummaryTemplate,
}

// Lookup returns the stored template content for key, or the built-in
// default when the repository has none.
func Lookup(ctx context.Context, repo TemplateRepository, key string) (string, error) {
	t, err := repo.Get(ctx, key)
	if err == nil && strings.TrimSpace(t.Content) != "" {
		return t.Content, nil
	}
	if err != nil && !shared.IsNotFound(err) {
		return "", err
	}
	return Defaults[key], nil
}
