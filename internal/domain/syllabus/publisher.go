// Package syllabus manages public share links for programs. A published
// program is readable by anyone holding its current token.
package syllabus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// TokenBytes is the amount of randomness in a token (256 bits).
const TokenBytes = 32

var tokenRe = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// ValidTokenFormat reports whether s looks like a publish token.
func ValidTokenFormat(s string) bool {
	return tokenRe.MatchString(s)
}

// PublicProgram is the redacted program view served to anonymous readers.
type PublicProgram struct {
	Key         string           `json:"key"`
	Label       string           `json:"label"`
	Description string           `json:"description"`
	Modules     []program.Module `json:"modules"`
	PublishedAt *time.Time       `json:"publishedAt"`
}

// Publication is returned by Publish and Regenerate.
type Publication struct {
	Token       string    `json:"token"`
	PublishedAt time.Time `json:"publishedAt"`
}

// maxTokenAttempts bounds retries when a random token collides with a revoked one.
const maxTokenAttempts = 5

// Publisher implements publish, unpublish, regenerate and resolve.
type Publisher struct {
	programs program.Repository
	clock    timeutil.Clock
	random   io.Reader
}

// NewPublisher creates a Publisher backed by crypto/rand.
func NewPublisher(programs program.Repository, clock timeutil.Clock) *Publisher {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	return &Publisher{programs: programs, clock: clock, random: rand.Reader}
}

// Publish issues a fresh token and marks the program published. Publishing
// an already published program rotates its token.
func (p *Publisher) Publish(ctx context.Context, key string) (Publication, error) {
	if _, err := p.programs.GetByKey(ctx, key); err != nil {
		return Publication{}, err
	}
	return p.issue(ctx, key, p.programs.SavePublishState)
}

// Regenerate replaces the token of a published program. A concurrent
// Unpublish wins: the program stays unpublished and shared.ErrNotPublished
// is returned.
func (p *Publisher) Regenerate(ctx context.Context, key string) (Publication, error) {
	return p.issue(ctx, key, p.programs.RotatePublishToken)
}

// Unpublish withdraws the program. Its token never resolves again, even if
// the program is published later.
func (p *Publisher) Unpublish(ctx context.Context, key string) error {
	if _, err := p.programs.GetByKey(ctx, key); err != nil {
		return err
	}
	return p.programs.SavePublishState(ctx, key, program.PublishState{})
}

// Resolve returns the public view for token. A malformed token yields
// shared.ErrInvalidTokenFormat; anything else that does not match a
// published program yields shared.ErrSyllabusNotFound.
func (p *Publisher) Resolve(ctx context.Context, token string) (*PublicProgram, error) {
	if !ValidTokenFormat(token) {
		return nil, shared.ErrInvalidTokenFormat
	}
	token = strings.ToLower(token)

	prog, err := p.programs.GetByPublishToken(ctx, token)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrSyllabusNotFound
		}
		return nil, err
	}
	if !prog.Published || prog.Token == nil || *prog.Token != token {
		return nil, shared.ErrSyllabusNotFound
	}

	modules := prog.Modules
	if modules == nil {
		modules = []program.Module{}
	}
	return &PublicProgram{
		Key:         prog.Key,
		Label:       prog.Label,
		Description: prog.Description,
		Modules:     modules,
		PublishedAt: prog.PublishedAt,
	}, nil
}

type saveFunc func(ctx context.Context, key string, state program.PublishState) error

func (p *Publisher) issue(ctx context.Context, key string, save saveFunc) (Publication, error) {
	token, err := p.newToken(ctx)
	if err != nil {
		return Publication{}, err
	}

	now := p.clock.Now().UTC()
	state := program.PublishState{Published: true, Token: &token, PublishedAt: &now}
	if err := save(ctx, key, state); err != nil {
		return Publication{}, err
	}
	return Publication{Token: token, PublishedAt: now}, nil
}

func (p *Publisher) newToken(ctx context.Context) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token, err := GenerateToken(p.random)
		if err != nil {
			return "", err
		}
		revoked, err := p.programs.TokenRevoked(ctx, token)
		if err != nil {
			return "", err
		}
		if !revoked {
			return token, nil
		}
	}
	return "", fmt.Errorf("could not generate an unused token after %d attempts", maxTokenAttempts)
}

// GenerateToken reads TokenBytes from r and hex-encodes them.
func GenerateToken(r io.Reader) (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
