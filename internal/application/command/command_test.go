package command

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/session"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
	"github.com/mentor-hub/mentor-hub/internal/domain/syllabus"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/persistence/sqlite"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

var october = timeutil.FixedClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

type fakeCompleter struct {
	mu           sync.Mutex
	reply        string
	err          error
	instructions []string
	inputs       []string
}

func (f *fakeCompleter) Complete(_ context.Context, instructions, input string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructions = append(f.instructions, instructions)
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.instructions)
}

type fakeQueue struct {
	got []summary.Exchange
}

func (q *fakeQueue) Enqueue(_ context.Context, ex summary.Exchange) error {
	q.got = append(q.got, ex)
	return nil
}

type flags map[string]bool

func (f flags) EnabledFor(feature, _ string) bool {
	enabled, ok := f[feature]
	return !ok || enabled
}

type env struct {
	programs  *sqlite.ProgramRepository
	prompts   *sqlite.PromptRepository
	summaries *sqlite.SummaryRepository
	counter   *usage.MemoryCounter
	governor  *usage.Governor
	sessions  *session.Manager
	completer *fakeCompleter
	queue     *fakeQueue
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "mentor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	e := &env{
		programs:  sqlite.NewProgramRepository(store),
		prompts:   sqlite.NewPromptRepository(store),
		summaries: sqlite.NewSummaryRepository(store),
		counter:   usage.NewMemoryCounter(),
		completer: &fakeCompleter{reply: "  Commence par les goroutines.  "},
		queue:     &fakeQueue{},
	}
	e.governor = usage.NewGovernor(e.counter, october)
	e.sessions = session.NewManager(session.NewMemoryStore(), time.Hour, program.Calendar{}, october)

	require.NoError(t, e.programs.Upsert(ctx, &program.Program{
		Key:         "A1",
		Label:       "Bachelor Dev",
		Description: "Développement backend",
		Modules: []program.Module{
			{ID: "go", Label: "Go avancé", StartMonth: 9, EndMonth: 2, Content: []string{"goroutines", "channels"}},
			{ID: "web", Label: "Web", StartMonth: 10, EndMonth: 12, Content: []string{"HTTP"}},
			{ID: "spring", Label: "Projet", StartMonth: 3, EndMonth: 5, Content: []string{"soutenance"}},
		},
	}))
	return e
}

func (e *env) chat(limit int64, features FeatureChecker) *SendMessageHandler {
	return NewSendMessageHandler(SendMessageDeps{
		Governor:     e.governor,
		MonthlyLimit: limit,
		Sessions:     e.sessions,
		Programs:     e.programs,
		Templates:    e.prompts,
		Configs:      e.prompts,
		Summaries:    e.summaries,
		Completer:    e.completer,
		Queue:        e.queue,
		Features:     features,
		Clock:        october,
	})
}

func (e *env) count(t *testing.T, email string) int64 {
	t.Helper()
	n, err := e.counter.Count(context.Background(), email, "2026-10")
	require.NoError(t, err)
	return n
}

func guided(msg string) SendMessageCommand {
	return SendMessageCommand{Email: "Ana@School.fr", Message: msg, ProgramKey: "A1", Mode: "guided", SessionID: "sid-1"}
}

// ══════════════════════════════════════════════════════════════════════════════
// SEND MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

func TestSendMessage_GuidedThenFocused(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chat := e.chat(20, nil)
	sessions := NewSessionHandler(e.sessions, e.programs, october, nil)

	opened, err := sessions.Init(ctx, InitSessionCommand{ProgramKey: "A1", Email: "ana@school.fr", SessionID: "sid-1"})
	require.NoError(t, err)
	require.Len(t, opened.Modules, 2)
	assert.Equal(t, session.PhaseOriented, opened.State.Phase())

	res, err := chat.Handle(ctx, guided("Par quoi commencer ?"))
	require.NoError(t, err)
	assert.Equal(t, "Commence par les goroutines.", res.Reply)
	assert.True(t, res.FullContext)
	assert.Equal(t, session.PhaseOriented, res.Phase)
	assert.Contains(t, e.completer.instructions[0], "Modules en cours :")
	assert.Contains(t, e.completer.instructions[0], "Web (HTTP)")
	assert.Contains(t, e.completer.instructions[0], prompt.NoHistory)
	assert.Equal(t, "Par quoi commencer ?", e.completer.inputs[0])

	mod, err := sessions.SelectModule(ctx, SelectModuleCommand{ProgramKey: "A1", ModuleID: "go", SessionID: "sid-1"})
	require.NoError(t, err)
	assert.Equal(t, "Go avancé", mod.Label)

	res, err = chat.Handle(ctx, guided("Et ensuite ?"))
	require.NoError(t, err)
	assert.False(t, res.FullContext)
	assert.Equal(t, session.PhaseFocused, res.Phase)
	assert.Contains(t, e.completer.instructions[1], "Focus: Go avancé (goroutines, channels)")
	assert.NotContains(t, e.completer.instructions[1], "Web (HTTP)")

	assert.Equal(t, int64(2), res.Decision.Count)
	assert.Equal(t, int64(2), e.count(t, "ana@school.fr"))
	assert.Equal(t, summary.Exchange{Email: "ana@school.fr", UserMessage: "Et ensuite ?", MentorReply: "Commence par les goroutines."}, res.Exchange)
}

func TestSendMessage_FocusDisabledKeepsFullContext(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chat := e.chat(20, flags{FeatureFocusModule: false})
	sessions := NewSessionHandler(e.sessions, e.programs, october, nil)

	_, err := sessions.SelectModule(ctx, SelectModuleCommand{ProgramKey: "A1", ModuleID: "go", SessionID: "sid-1"})
	require.NoError(t, err)

	res, err := chat.Handle(ctx, guided("Salut"))
	require.NoError(t, err)
	assert.True(t, res.FullContext)
}

func TestSendMessage_SharedCookieDoesNotLeakFocus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chat := e.chat(20, nil)
	sessions := NewSessionHandler(e.sessions, e.programs, october, nil)

	_, err := sessions.SelectModule(ctx, SelectModuleCommand{ProgramKey: "A1", ModuleID: "go", Email: "ana@school.fr", SessionID: "sid-1"})
	require.NoError(t, err)

	other := guided("Bonjour")
	other.Email = "leo@school.fr"
	res, err := chat.Handle(ctx, other)
	require.NoError(t, err)
	assert.True(t, res.FullContext)
	assert.Equal(t, session.PhaseFresh, res.Phase)
	assert.NotContains(t, e.completer.instructions[0], "Focus:")

	res, err = chat.Handle(ctx, guided("Et moi ?"))
	require.NoError(t, err)
	assert.Equal(t, session.PhaseFocused, res.Phase)
}

func TestSendMessage_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chat := e.chat(1, nil)

	_, err := chat.Handle(ctx, guided("un"))
	require.NoError(t, err)

	res, err := chat.Handle(ctx, guided("deux"))
	assert.ErrorIs(t, err, shared.ErrMonthlyQuotaExceeded)
	assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
	require.NotNil(t, res)
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, 1, e.completer.calls())
}

func TestSendMessage_UnknownProgramStillBilled(t *testing.T) {
	e := newEnv(t)
	cmd := guided("Salut")
	cmd.ProgramKey = "ZZ"

	_, err := e.chat(20, nil).Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)
	assert.Equal(t, int64(1), e.count(t, "ana@school.fr"))
	assert.Zero(t, e.completer.calls())
}

func TestSendMessage_FreeMode(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.summaries.Put(ctx, "ana@school.fr", "- aime Go"))

	cmd := guided("Une question hors programme")
	cmd.Mode = "free"
	cmd.ProgramKey = "whatever"

	res, err := e.chat(20, nil).Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.FullContext)
	assert.Contains(t, e.completer.instructions[0], "- aime Go")
	assert.NotContains(t, e.completer.instructions[0], "Bachelor Dev")
}

func TestSendMessage_FreeModeDisabled(t *testing.T) {
	e := newEnv(t)
	cmd := guided("x")
	cmd.Mode = "free"

	_, err := e.chat(20, flags{FeatureFreeMode: false}).Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Zero(t, e.count(t, "ana@school.fr"))
}

func TestSendMessage_InvalidInput(t *testing.T) {
	e := newEnv(t)
	chat := e.chat(20, nil)

	for _, cmd := range []SendMessageCommand{
		{Message: "x", ProgramKey: "A1", Mode: "guided"},
		{Email: "a@b.fr", Message: "  ", ProgramKey: "A1", Mode: "guided"},
		{Email: "a@b.fr", Message: "x", Mode: "guided"},
		{Email: "a@b.fr", Message: "x", ProgramKey: "A1"},
	} {
		_, err := chat.Handle(context.Background(), cmd)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	}

	cmd := guided("x")
	cmd.Mode = "socratic"
	_, err := chat.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrUnknownMode)
	assert.Zero(t, e.count(t, "ana@school.fr"))
}

func TestSendMessage_CompletionFailureStaysBilled(t *testing.T) {
	e := newEnv(t)
	e.completer.err = shared.ErrCompletionUnavailable

	_, err := e.chat(20, nil).Handle(context.Background(), guided("x"))
	assert.ErrorIs(t, err, shared.ErrCompletionUnavailable)
	assert.Equal(t, int64(1), e.count(t, "ana@school.fr"))
}

func TestSendMessage_UsesStoredTemplateAndConfig(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.prompts.Upsert(ctx, &prompt.Template{Key: prompt.KeyMentorSystem, Content: "École {{school_name}} / {{ tone }} / {{ unknown }}"}))
	require.NoError(t, e.prompts.SaveMentorConfig(ctx, prompt.MentorConfig{SchoolName: "EPSI", Tone: "bienveillant"}))

	_, err := e.chat(20, nil).Handle(ctx, guided("x"))
	require.NoError(t, err)
	assert.Equal(t, "École EPSI / bienveillant / ", e.completer.instructions[0])
}

func TestRecordExchange(t *testing.T) {
	e := newEnv(t)
	ex := summary.Exchange{Email: "ana@school.fr", UserMessage: "q", MentorReply: "r"}

	e.chat(20, nil).RecordExchange(context.Background(), ex)
	assert.Equal(t, []summary.Exchange{ex}, e.queue.got)

	e.chat(20, flags{FeatureSummaries: false}).RecordExchange(context.Background(), ex)
	assert.Len(t, e.queue.got, 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestSelectModule_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := NewSessionHandler(e.sessions, e.programs, october, nil)

	_, err := h.SelectModule(ctx, SelectModuleCommand{ProgramKey: "A1", ModuleID: "spring", SessionID: "s"})
	assert.ErrorIs(t, err, shared.ErrModuleInactive)

	_, err = h.SelectModule(ctx, SelectModuleCommand{ProgramKey: "A1", ModuleID: "nope", SessionID: "s"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.SelectModule(ctx, SelectModuleCommand{ProgramKey: "ZZ", ModuleID: "go", SessionID: "s"})
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)

	_, err = h.SelectModule(ctx, SelectModuleCommand{ProgramKey: "A1"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = h.Init(ctx, InitSessionCommand{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH
// ══════════════════════════════════════════════════════════════════════════════

func TestPublishProgram(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := NewPublishProgramHandler(syllabus.NewPublisher(e.programs, october), nil)

	_, err := h.Handle(ctx, PublishProgramCommand{ProgramKey: "A1", Action: ActionRegenerate})
	assert.ErrorIs(t, err, shared.ErrNotPublished)

	first, err := h.Handle(ctx, PublishProgramCommand{ProgramKey: "A1", Action: ActionPublish})
	require.NoError(t, err)
	assert.True(t, first.Published)
	assert.True(t, syllabus.ValidTokenFormat(first.Token))

	second, err := h.Handle(ctx, PublishProgramCommand{ProgramKey: "A1", Action: ActionRegenerate})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	revoked, err := e.programs.TokenRevoked(ctx, first.Token)
	require.NoError(t, err)
	assert.True(t, revoked)

	off, err := h.Handle(ctx, PublishProgramCommand{ProgramKey: "A1", Action: ActionUnpublish})
	require.NoError(t, err)
	assert.False(t, off.Published)

	_, err = h.Handle(ctx, PublishProgramCommand{ProgramKey: "A1", Action: "archive"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = h.Handle(ctx, PublishProgramCommand{ProgramKey: "ZZ", Action: ActionPublish})
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT
// ══════════════════════════════════════════════════════════════════════════════

func TestContentHandler(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := NewContentHandler(e.programs, e.prompts, e.prompts, nil)

	err := h.UpsertProgram(ctx, &program.Program{Key: "B2", Label: "Master", Modules: []program.Module{{ID: "x", StartMonth: 13, EndMonth: 1}}})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, h.UpsertProgram(ctx, &program.Program{Key: " B2 ", Label: "Master"}))
	got, err := e.programs.GetByKey(ctx, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Master", got.Label)

	require.NoError(t, h.DeleteProgram(ctx, "B2"))
	assert.ErrorIs(t, h.DeleteProgram(ctx, "B2"), shared.ErrProgramNotFound)

	assert.ErrorIs(t, h.UpsertTemplate(ctx, &prompt.Template{Key: "k"}), shared.ErrInvalidInput)
	require.NoError(t, h.UpsertTemplate(ctx, &prompt.Template{Key: prompt.KeyFreeSystem, Content: "{{ summary }} {{ mood }}"}))
	require.NoError(t, h.DeleteTemplate(ctx, prompt.KeyFreeSystem))

	require.NoError(t, h.SaveMentorConfig(ctx, prompt.MentorConfig{SchoolName: "EPSI"}))
	cfg, err := e.prompts.GetMentorConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EPSI", cfg.SchoolName)
}

func TestUnknownPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"mood"}, unknownPlaceholders("{{ summary }} {{mood}} {{ email }}"))
	assert.Empty(t, unknownPlaceholders("plain text"))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM EDITOR
// ══════════════════════════════════════════════════════════════════════════════

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestEditProgram(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{reply: "```json\n{\"key\":\"A1\",\"label\":\"Bachelor\",\"modules\":[{\"id\":\"charte-graphique\",\"label\":\"Charte graphique\",\"start_month\":9,\"end_month\":10,\"content\":[\"logo\"]}]}\n```"}
	h := NewEditProgramHandler(completer, pingFunc(func(context.Context) error { return errors.New("down") }), nil)

	res, err := h.Handle(ctx, EditProgramCommand{Program: []byte(`{"key":"A1","label":"Bachelor","modules":[]}`), Message: "Ajoute un module charte graphique"})
	require.NoError(t, err)
	assert.False(t, res.BackendOK)
	require.NotNil(t, res.Program)
	assert.Equal(t, "charte-graphique", res.Program.Modules[0].ID)
	assert.Equal(t, ProgramEditorInstructions, completer.instructions[0])
	assert.Contains(t, completer.inputs[0], "Ajoute un module charte graphique")

	completer.reply = "Désolé, je ne peux pas."
	res, err = NewEditProgramHandler(completer, nil, nil).Handle(ctx, EditProgramCommand{Program: []byte(`{}`), Message: "x"})
	require.NoError(t, err)
	assert.True(t, res.BackendOK)
	assert.Nil(t, res.Program)
	assert.Equal(t, "Désolé, je ne peux pas.", res.Output)

	_, err = h.Handle(ctx, EditProgramCommand{Program: []byte(`{`), Message: "x"})
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
	_, err = h.Handle(ctx, EditProgramCommand{Message: "x"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSeed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := NewContentHandler(e.programs, e.prompts, e.prompts, nil)

	f, err := ParseSeed(strings.NewReader(`
mentor:
  school_name: Alem
  tone: bienveillant
  rules: Pas de solution complète.
prompts:
  - key: mentor_system
    label: Mentor
    content: "Tu es le mentor de {{school_name}}."
programs:
  - key: B2
    label: Master Data
    modules:
      - id: ml
        label: Machine learning
        start_month: 1
        end_month: 12
        content: [régression, arbres]
`))
	require.NoError(t, err)

	rep, err := h.Seed(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Programs: 1, Prompts: 1, Mentor: true}, rep)

	p, err := e.programs.GetByKey(ctx, "B2")
	require.NoError(t, err)
	assert.Equal(t, []string{"régression", "arbres"}, p.Modules[0].Content)

	cfg, err := e.prompts.GetMentorConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alem", cfg.SchoolName)

	_, err = ParseSeed(strings.NewReader("programmes: []\n"))
	assert.Error(t, err, "unknown fields are rejected")

	empty, err := ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	rep, err = h.Seed(ctx, empty)
	require.NoError(t, err)
	assert.Zero(t, rep)

	bad, err := ParseSeed(strings.NewReader("programs:\n  - key: C3\n"))
	require.NoError(t, err)
	_, err = h.Seed(ctx, bad)
	assert.True(t, shared.IsValidation(err))
}
