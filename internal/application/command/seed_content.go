package command

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED FILE
// ══════════════════════════════════════════════════════════════════════════════

// SeedFile is the YAML document loaded by `mentorctl seed`:
//
//	mentor:
//	  school_name: Alem
//	  tone: bienveillant
//	  rules: Ne donne jamais la solution complète.
//	prompts:
//	  - key: mentor_system
//	    label: Mentor
//	    content: "Tu es le mentor de {{school_name}}..."
//	programs:
//	  - key: A1
//	    label: Bachelor Dev
//	    modules:
//	      - id: go
//	        label: Go avancé
//	        start_month: 9
//	        end_month: 2
//	        content: [goroutines, channels]
type SeedFile struct {
	Mentor   *prompt.MentorConfig `yaml:"mentor"`
	Prompts  []prompt.Template    `yaml:"prompts"`
	Programs []program.Program    `yaml:"programs"`
}

// SeedReport counts what Seed wrote.
type SeedReport struct {
	Programs int
	Prompts  int
	Mentor   bool
}

// ParseSeed decodes a seed document. Unknown fields are rejected.
func ParseSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f SeedFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// Seed upserts every entry of f. It stops at the first invalid entry;
// entries before it stay written.
func (h *ContentHandler) Seed(ctx context.Context, f *SeedFile) (SeedReport, error) {
	var rep SeedReport

	if f.Mentor != nil {
		if err := h.SaveMentorConfig(ctx, *f.Mentor); err != nil {
			return rep, err
		}
		rep.Mentor = true
	}
	for i := range f.Prompts {
		if err := h.UpsertTemplate(ctx, &f.Prompts[i]); err != nil {
			return rep, fmt.Errorf("prompt %q: %w", f.Prompts[i].Key, err)
		}
		rep.Prompts++
	}
	for i := range f.Programs {
		if err := h.UpsertProgram(ctx, &f.Programs[i]); err != nil {
			return rep, fmt.Errorf("program %q: %w", f.Programs[i].Key, err)
		}
		rep.Programs++
	}

	h.log.Info("content seeded",
		logger.Int("programs", rep.Programs),
		logger.Int("prompts", rep.Prompts),
		logger.Bool("mentor", rep.Mentor),
	)
	return rep, nil
}
