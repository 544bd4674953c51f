package syllabus

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

type fakePrograms struct {
	mu       sync.Mutex
	programs map[string]*program.Program
	revoked  map[string]bool

	// beforeTokenCheck runs outside the lock when TokenRevoked is called.
	beforeTokenCheck func()
}

func newFakePrograms(ps ...*program.Program) *fakePrograms {
	f := &fakePrograms{programs: map[string]*program.Program{}, revoked: map[string]bool{}}
	for _, p := range ps {
		f.programs[p.Key] = p
	}
	return f
}

func (f *fakePrograms) GetByKey(_ context.Context, key string) (*program.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[key]
	if !ok {
		return nil, shared.ErrProgramNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrograms) List(context.Context) ([]*program.Program, error) { return nil, nil }
func (f *fakePrograms) Upsert(context.Context, *program.Program) error   { return nil }
func (f *fakePrograms) Delete(context.Context, string) error             { return nil }

func (f *fakePrograms) GetByPublishToken(_ context.Context, token string) (*program.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.programs {
		if p.Published && p.Token != nil && *p.Token == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrProgramNotFound
}

func (f *fakePrograms) SavePublishState(_ context.Context, key string, st program.PublishState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[key]
	if !ok {
		return shared.ErrProgramNotFound
	}
	if p.Token != nil && (st.Token == nil || *st.Token != *p.Token) {
		f.revoked[*p.Token] = true
	}
	p.PublishState = st
	return nil
}

func (f *fakePrograms) RotatePublishToken(ctx context.Context, key string, st program.PublishState) error {
	f.mu.Lock()
	p, ok := f.programs[key]
	published := ok && p.Published
	f.mu.Unlock()
	if ok && !published {
		return shared.ErrNotPublished
	}
	return f.SavePublishState(ctx, key, st)
}

func (f *fakePrograms) TokenRevoked(_ context.Context, token string) (bool, error) {
	if f.beforeTokenCheck != nil {
		f.beforeTokenCheck()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[token], nil
}

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newPublisher() (*Publisher, *fakePrograms) {
	repo := newFakePrograms(&program.Program{
		Key: "A1", Label: "Anglais A1", Description: "Bases",
		Modules: []program.Module{{ID: "m1", Label: "Grammaire", StartMonth: 9, EndMonth: 6}},
	})
	return NewPublisher(repo, timeutil.FixedClock(now)), repo
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken(bytes.NewReader(bytes.Repeat([]byte{0xab}, 32)))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), tok)
	assert.True(t, ValidTokenFormat(tok))

	_, err = GenerateToken(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestValidTokenFormat(t *testing.T) {
	assert.True(t, ValidTokenFormat(strings.Repeat("F", 64)))
	assert.False(t, ValidTokenFormat(strings.Repeat("a", 63)))
	assert.False(t, ValidTokenFormat(strings.Repeat("g", 64)))
	assert.False(t, ValidTokenFormat(""))
}

func TestPublisher_PublishAndResolve(t *testing.T) {
	ctx := context.Background()
	pub, _ := newPublisher()

	p, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)
	assert.Len(t, p.Token, 64)
	assert.Equal(t, now, p.PublishedAt)

	view, err := pub.Resolve(ctx, p.Token)
	require.NoError(t, err)
	assert.Equal(t, "A1", view.Key)
	assert.Equal(t, "Anglais A1", view.Label)
	assert.Len(t, view.Modules, 1)
	require.NotNil(t, view.PublishedAt)

	// Upper-case form of the same token resolves too.
	_, err = pub.Resolve(ctx, strings.ToUpper(p.Token))
	assert.NoError(t, err)
}

func TestPublisher_PublishTwiceRotates(t *testing.T) {
	ctx := context.Background()
	pub, _ := newPublisher()

	first, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)
	second, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = pub.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, shared.ErrSyllabusNotFound)
	_, err = pub.Resolve(ctx, second.Token)
	assert.NoError(t, err)
}

func TestPublisher_Regenerate(t *testing.T) {
	ctx := context.Background()
	pub, repo := newPublisher()

	_, err := pub.Regenerate(ctx, "A1")
	assert.ErrorIs(t, err, shared.ErrNotPublished)

	old, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)
	fresh, err := pub.Regenerate(ctx, "A1")
	require.NoError(t, err)

	_, err = pub.Resolve(ctx, old.Token)
	assert.ErrorIs(t, err, shared.ErrSyllabusNotFound)
	_, err = pub.Resolve(ctx, fresh.Token)
	assert.NoError(t, err)

	p, _ := repo.GetByKey(ctx, "A1")
	assert.True(t, p.Published)
	assert.True(t, p.Consistent())
}

func TestPublisher_RegenerateLosesToConcurrentUnpublish(t *testing.T) {
	ctx := context.Background()
	pub, repo := newPublisher()

	first, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)

	repo.beforeTokenCheck = func() {
		repo.beforeTokenCheck = nil
		require.NoError(t, pub.Unpublish(ctx, "A1"))
	}
	_, err = pub.Regenerate(ctx, "A1")
	assert.ErrorIs(t, err, shared.ErrNotPublished)

	p, _ := repo.GetByKey(ctx, "A1")
	assert.False(t, p.Published)
	assert.Nil(t, p.Token)
	_, err = pub.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, shared.ErrSyllabusNotFound)
}

func TestPublisher_RegenerateUnknownProgram(t *testing.T) {
	pub, _ := newPublisher()
	_, err := pub.Regenerate(context.Background(), "nope")
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)
}

func TestPublisher_UnpublishIsFinal(t *testing.T) {
	ctx := context.Background()
	pub, repo := newPublisher()

	first, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)
	require.NoError(t, pub.Unpublish(ctx, "A1"))

	p, _ := repo.GetByKey(ctx, "A1")
	assert.False(t, p.Published)
	assert.Nil(t, p.Token)
	assert.Nil(t, p.PublishedAt)

	_, err = pub.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, shared.ErrSyllabusNotFound)

	// Publishing again never brings the old token back.
	_, err = pub.Publish(ctx, "A1")
	require.NoError(t, err)
	_, err = pub.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, shared.ErrSyllabusNotFound)
}

func TestPublisher_RevokedTokenNotReissued(t *testing.T) {
	ctx := context.Background()
	pub, repo := newPublisher()
	revoked := strings.Repeat("ab", 32)
	repo.revoked[revoked] = true

	pub.random = bytes.NewReader(append(bytes.Repeat([]byte{0xab}, 32), bytes.Repeat([]byte{0xcd}, 32)...))
	p, err := pub.Publish(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("cd", 32), p.Token)
}

func TestPublisher_Errors(t *testing.T) {
	ctx := context.Background()
	pub, _ := newPublisher()

	_, err := pub.Resolve(ctx, "short")
	assert.ErrorIs(t, err, shared.ErrInvalidTokenFormat)
	assert.True(t, shared.IsValidation(err))

	_, err = pub.Resolve(ctx, strings.Repeat("0", 64))
	assert.ErrorIs(t, err, shared.ErrSyllabusNotFound)

	_, err = pub.Publish(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)
	assert.ErrorIs(t, pub.Unpublish(ctx, "nope"), shared.ErrProgramNotFound)
}
