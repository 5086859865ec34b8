package lifecycle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/handler"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/pattern"
	"github.com/sells-group/studio-suggest/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	st     *store.SQLStore
	engine *Engine
	clock  time.Time
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	st := store.New(conn)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	targets := handler.DefaultTargets()
	require.NoError(t, st.Migrate(ctx))
	_, err = st.Exec(ctx, targets.SchemaDDL())
	require.NoError(t, err)
	_, err = st.Exec(ctx, `INSERT INTO projects (id, project_code, fee, status) VALUES
		('p1', 'P-1', 40000, 'active'),
		('p2', 'P-2', 12000, 'active')`)
	require.NoError(t, err)

	reg, err := handler.NewDefaultRegistry(targets)
	require.NoError(t, err)

	env := &testEnv{st: st, clock: t0}
	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = time.Millisecond
	opts = append([]Option{
		WithConfig(cfg),
		WithTargets(targets),
		WithClock(func() time.Time { return env.clock }),
	}, opts...)
	env.engine, err = New(st, reg, opts...)
	require.NoError(t, err)
	return env
}

func feeSignal(sourceID, code string, fee float64) model.Signal {
	return model.Signal{
		SourceType:    "email",
		SourceID:      sourceID,
		SignalType:    model.SignalFeeMention,
		ExtractedAt:   t0,
		Payload:       map[string]any{"project_code": code, "new_fee": fee},
		RawConfidence: 0.6,
	}
}

func domainSignal(sourceID, domain, project string, raw float64) model.Signal {
	payload := map[string]any{"domain": domain}
	if project != "" {
		payload["project"] = project
	}
	return model.Signal{
		SourceType:    "email",
		SourceID:      sourceID,
		SignalType:    model.SignalSenderDomainMatch,
		ExtractedAt:   t0,
		Payload:       payload,
		RawConfidence: raw,
	}
}

func approve(reviewer string) model.Decision {
	return model.Decision{Verdict: model.VerdictApprove, Reviewer: reviewer}
}

// approved generates a suggestion from sig and approves it.
func (env *testEnv) approved(t *testing.T, sig model.Signal) *model.Suggestion {
	t.Helper()
	res, err := env.engine.Generate(context.Background(), sig)
	require.NoError(t, err)
	s, err := env.engine.Decide(context.Background(), res.Suggestion.ID, approve("alex"))
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, s.Status)
	return s
}

func (env *testEnv) projectFee(t *testing.T, id string) any {
	t.Helper()
	var row map[string]any
	require.NoError(t, env.st.View(context.Background(), func(tx store.Tx) error {
		var err error
		row, err = tx.Records().Get(context.Background(), handler.DefaultTargets().Projects.TableRef, id, []string{"fee"})
		return err
	}))
	return row["fee"]
}

func (env *testEnv) seedPattern(t *testing.T, shape model.PatternShape, target string, used, correct int, conf float64, active bool) *model.Pattern {
	t.Helper()
	var p *model.Pattern
	require.NoError(t, env.st.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.AddPatternEvidence(context.Background(), store.PatternDelta{
			Shape: shape, TargetCode: target, TimesUsed: used, TimesCorrect: correct,
		})
		if err != nil {
			return err
		}
		return tx.UpdatePatternScore(context.Background(), p.ID, conf, active)
	}))
	return p
}

func (env *testEnv) pattern(t *testing.T, shape model.PatternShape, target string) *model.Pattern {
	t.Helper()
	var p *model.Pattern
	require.NoError(t, env.st.View(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.GetPattern(context.Background(), shape, target)
		return err
	}))
	return p
}

var xcomShape = model.PatternShape{
	PatternType: pattern.TypeSenderDomain,
	PatternKey:  "x.com",
	TargetType:  pattern.TargetProject,
}

func TestNew_RequiresCompleteRegistry(t *testing.T) {
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "e.db"))
	require.NoError(t, err)
	st := store.New(conn)
	defer st.Close() //nolint:errcheck

	_, err = New(st, handler.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lifecycle: verify handlers")

	_, err = New(nil, handler.NewRegistry())
	require.Error(t, err)
}

func TestApply_FeeChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, feeSignal("msg-1", "P-1", 50000))

	res, err := env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Suggestion.Status)
	require.NotNil(t, res.Suggestion.TargetID)
	assert.Equal(t, "p1", *res.Suggestion.TargetID)
	assert.Equal(t, model.ActionUpdate, res.Action)

	changes, err := env.engine.Changes(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "fee", changes[0].FieldName)
	assert.Equal(t, "projects", changes[0].TableName)
	assert.Equal(t, "p1", changes[0].RecordID)
	assert.Equal(t, float64(40000), changes[0].Old())
	assert.Equal(t, float64(50000), changes[0].New())
	assert.Equal(t, float64(50000), env.projectFee(t, "p1"))
}

func TestPreview_MatchesRecordedChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, feeSignal("msg-1", "P-2", 15000))

	pv, err := env.engine.Preview(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdate, pv.Action)
	assert.Equal(t, "p2", pv.RecordID)
	// Preview never writes.
	assert.Equal(t, float64(12000), env.projectFee(t, "p2"))

	_, err = env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)
	changes, err := env.engine.Changes(ctx, s.ID)
	require.NoError(t, err)

	require.Len(t, changes, len(pv.Changes))
	for i, fc := range pv.Changes {
		assert.Equal(t, fc.Field, changes[i].FieldName)
		assert.Equal(t, fc.OldValue, changes[i].Old())
		assert.Equal(t, fc.NewValue, changes[i].New())
	}

	_, err = env.engine.Preview(ctx, s.ID)
	assert.True(t, apperr.IsConflict(err), "applied suggestions have no preview")
}

func TestApply_MissingTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, feeSignal("msg-1", "P-404", 50000))

	_, err := env.engine.Apply(ctx, s.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "target entity not found")

	got, err := env.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, model.StatusApplied, got.Status)
	assert.Equal(t, model.StatusApplyFailed, got.Status)
	assert.Nil(t, got.TargetID)
	require.NotNil(t, got.LastError)
	assert.Equal(t, err.Error(), *got.LastError)

	changes, err := env.engine.Changes(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)

	// apply_failed goes back to a human.
	_, err = env.engine.Apply(ctx, s.ID)
	assert.True(t, apperr.IsConflict(err))
	again, err := env.engine.Decide(ctx, s.ID, model.Decision{Verdict: model.VerdictReject, Reviewer: "alex", Notes: "no such project"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, again.Status)
	assert.Nil(t, again.LastError)
}

func TestApply_OnlyFromApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.engine.Generate(ctx, feeSignal("msg-1", "P-1", 50000))
	require.NoError(t, err)

	_, err = env.engine.Apply(ctx, res.Suggestion.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	got, err := env.engine.Get(ctx, res.Suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, float64(40000), env.projectFee(t, "p1"))

	_, err = env.engine.Apply(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRollback_RestoresAndRejectsRepeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, feeSignal("msg-1", "P-1", 50000))
	_, err := env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)

	got, err := env.engine.Rollback(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRolledBack, got.Status)
	assert.Equal(t, float64(40000), env.projectFee(t, "p1"))

	changes, err := env.engine.Changes(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.NotNil(t, changes[0].ReversedAt)

	_, err = env.engine.Rollback(ctx, s.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, float64(40000), env.projectFee(t, "p1"))
}

func TestRollback_ModifiedAfterApply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, feeSignal("msg-1", "P-1", 50000))
	_, err := env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)

	_, err = env.st.Exec(ctx, `UPDATE projects SET fee = 65000 WHERE id = 'p1'`)
	require.NoError(t, err)

	_, err = env.engine.Rollback(ctx, s.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, float64(65000), env.projectFee(t, "p1"), "later edit must survive")

	got, err := env.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRollbackFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "modified or removed after apply")

	changes, err := env.engine.Changes(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, changes[0].ReversedAt)
}

func TestRollback_TaskCreationDeletesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, model.Signal{
		SourceType:    "transcript",
		SourceID:      "mtg-7",
		SignalType:    model.SignalActionItem,
		Payload:       map[string]any{"project_code": "P-1", "title": "Send revised drawings"},
		RawConfidence: 0.7,
	})

	res, err := env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionInsert, res.Action)
	require.NotEmpty(t, res.TargetID)

	var n int
	require.NoError(t, env.st.View(ctx, func(tx store.Tx) error {
		ok, err := tx.Records().Exists(ctx, store.TableRef{Name: "tasks"}, map[string]any{"id": res.TargetID})
		if ok {
			n = 1
		}
		return err
	}))
	assert.Equal(t, 1, n)

	_, err = env.engine.Rollback(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, env.st.View(ctx, func(tx store.Tx) error {
		ok, err := tx.Records().Exists(ctx, store.TableRef{Name: "tasks"}, map[string]any{"id": res.TargetID})
		assert.False(t, ok)
		return err
	}))
}

func TestApply_Informational(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, model.Signal{
		SourceType:    "email",
		SourceID:      "msg-9",
		SignalType:    model.SignalFYI,
		Payload:       map[string]any{"title": "Client is travelling next week"},
		RawConfidence: 0.3,
	})

	res, err := env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionNone, res.Action)
	assert.Equal(t, "msg-9", res.TargetID)
	assert.Empty(t, res.Changes)
}

func TestApply_ConcurrentExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	s := env.approved(t, feeSignal("msg-1", "P-1", 50000))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.engine.Apply(ctx, s.ID)
		}()
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	changes, err := env.engine.Changes(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Equal(t, float64(50000), env.projectFee(t, "p1"))
}

func TestGenerate_DedupRaisesConfidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.Generate(ctx, domainSignal("msg-1", "x.com", "P-1", 0.4))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, model.TypeLinkCreation, first.Suggestion.Type)
	assert.InDelta(t, 0.4, first.Suggestion.ConfidenceScore, 1e-9)

	second, err := env.engine.Generate(ctx, model.Signal{
		SourceType:    "email",
		SourceID:      "msg-1",
		SignalType:    model.SignalProjectMention,
		Payload:       map[string]any{"mention": "the Harbor job", "project_code": "P-1"},
		RawConfidence: 0.5,
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Suggestion.ID, second.Suggestion.ID)
	assert.Greater(t, second.Suggestion.ConfidenceScore, first.Suggestion.ConfidenceScore)
	assert.InDelta(t, 0.7, second.Suggestion.ConfidenceScore, 1e-9)
	assert.Equal(t, 2, second.Suggestion.SignalCount)

	list, err := env.engine.List(ctx, store.SuggestionFilter{Type: model.TypeLinkCreation})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerate_RedeliveryIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sig := feeSignal("msg-1", "P-1", 50000)

	first, err := env.engine.Generate(ctx, sig)
	require.NoError(t, err)
	again, err := env.engine.Generate(ctx, sig)
	require.NoError(t, err)

	assert.True(t, again.Duplicate)
	assert.False(t, again.Created)
	assert.Equal(t, first.Suggestion.ID, again.Suggestion.ID)
	assert.Equal(t, first.Suggestion.ConfidenceScore, again.Suggestion.ConfidenceScore)
	assert.Equal(t, 1, again.Suggestion.SignalCount)
}

func taskSignal(sourceID, signalType, title string) model.Signal {
	payload := map[string]any{"title": title, "project_code": "P-1"}
	if signalType != model.SignalActionItem {
		payload["suggestion_type"] = string(model.TypeTaskCreation)
	}
	return model.Signal{
		SourceType:    "transcript",
		SourceID:      sourceID,
		SignalType:    signalType,
		ExtractedAt:   t0,
		Payload:       payload,
		RawConfidence: 0.5,
	}
}

func TestGenerate_DistinctSignalsFromOneSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sigs := []model.Signal{
		taskSignal("mtg-7", model.SignalActionItem, "Send revised drawings"),
		taskSignal("mtg-7", model.SignalActionItem, "Book site visit"),
		taskSignal("mtg-7", model.SignalActionItem, "Confirm survey date"),
		taskSignal("mtg-7", model.SignalFYI, "Email the landlord"),
		{SourceType: "email", SourceID: "msg-5", SignalType: model.SignalProjectMention, ExtractedAt: t0,
			Payload: map[string]any{"mention": "the Harbor job", "project_code": "P-1"}, RawConfidence: 0.5},
		{SourceType: "email", SourceID: "msg-5", SignalType: model.SignalProjectMention, ExtractedAt: t0,
			Payload: map[string]any{"mention": "Elm Street", "project_code": "P-2"}, RawConfidence: 0.5},
	}
	titles := map[string]bool{}
	for _, sig := range sigs {
		res, err := env.engine.Generate(ctx, sig)
		require.NoError(t, err)
		assert.True(t, res.Created, "%s %v", sig.SignalType, sig.Payload)
		assert.False(t, res.Duplicate)
		titles[res.Suggestion.Title] = true
	}
	assert.True(t, titles["Book site visit"])
	assert.True(t, titles["Email the landlord"])

	tasks, err := env.engine.List(ctx, store.SuggestionFilter{Type: model.TypeTaskCreation})
	require.NoError(t, err)
	assert.Len(t, tasks, 4)

	links, err := env.engine.List(ctx, store.SuggestionFilter{Type: model.TypeLinkCreation})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.ElementsMatch(t, []string{"P-1", "P-2"}, []string{links[0].RelatedEntityCode, links[1].RelatedEntityCode})

	// The same task restated in different case merges into the first row.
	again, err := env.engine.Generate(ctx, taskSignal("mtg-7", model.SignalActionItem, "book  SITE visit"))
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.False(t, again.Duplicate)
	assert.Equal(t, "Book site visit", again.Suggestion.Title)
	assert.Equal(t, 2, again.Suggestion.SignalCount)
}

func TestGenerate_ConcurrentRedeliveryMergesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sig := feeSignal("msg-1", "P-1", 50000)

	const n = 6
	results := make([]*GenerateResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.engine.Generate(ctx, sig)
		}()
	}
	wg.Wait()

	var created, dups int
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
		if results[i].Duplicate {
			dups++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dups)

	list, err := env.engine.List(ctx, store.SuggestionFilter{Type: model.TypeFeeChange})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].SignalCount)
	assert.InDelta(t, 0.6, list[0].ConfidenceScore, 1e-9)
}

func TestGenerate_ConcurrentSameDedupKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig := feeSignal("msg-1", "P-1", 50000)
			sig.Payload["excerpt"] = []string{"a", "b", "c", "d"}[i]
			_, errs[i] = env.engine.Generate(ctx, sig)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	list, err := env.engine.List(ctx, store.SuggestionFilter{Type: model.TypeFeeChange})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, n, list[0].SignalCount)
	// Four merges of 0.6 by noisy-OR: 1 - 0.4^4.
	assert.InDelta(t, 1-0.4*0.4*0.4*0.4, list[0].ConfidenceScore, 1e-9)
}

func TestGenerate_InvalidSignals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		sig  model.Signal
	}{
		{"missing source", model.Signal{SignalType: model.SignalFYI, RawConfidence: 0.5}},
		{"confidence out of range", model.Signal{SourceType: "email", SourceID: "m", SignalType: model.SignalFYI, RawConfidence: 1.5}},
		{"unknown signal type", model.Signal{SourceType: "email", SourceID: "m", SignalType: "weather", RawConfidence: 0.5}},
		{"unknown override", model.Signal{SourceType: "email", SourceID: "m", SignalType: model.SignalFYI,
			Payload: map[string]any{"suggestion_type": "invoice_creation"}, RawConfidence: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Generate(ctx, tt.sig)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestGenerate_PatternBoost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPattern(t, xcomShape, "P1", 12, 11, 0.9, true)

	res, err := env.engine.Generate(ctx, domainSignal("msg-1", "x.com", "P1", 0.4))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Suggestion.ConfidenceScore, 0.7)
	assert.InDelta(t, 0.775, res.Suggestion.ConfidenceScore, 1e-9)
	require.NotNil(t, res.Pattern)
	assert.Equal(t, 13, res.Pattern.TimesUsed)
	require.NotNil(t, res.Suggestion.PatternID)
	assert.Equal(t, res.Pattern.ID, *res.Suggestion.PatternID)
}

func TestGenerate_PatternFillsTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPattern(t, xcomShape, "P-1", 12, 11, 0.9, true)

	res, err := env.engine.Generate(ctx, domainSignal("msg-2", "mail.X.com", "", 0.4))
	require.NoError(t, err)
	// mail.x.com is a different key; no pattern applies.
	assert.Empty(t, res.Suggestion.RelatedEntityCode)

	res, err = env.engine.Generate(ctx, domainSignal("msg-3", "WWW.X.COM", "", 0.4))
	require.NoError(t, err)
	assert.Equal(t, "P-1", res.Suggestion.RelatedEntityCode)
	assert.Equal(t, "P-1", res.Suggestion.PayloadMap()["project_code"])
	assert.Greater(t, res.Suggestion.ConfidenceScore, 0.4)
}

func TestGenerate_DisagreeingPatternDamps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPattern(t, xcomShape, "P9", 12, 11, 0.9, true)

	res, err := env.engine.Generate(ctx, domainSignal("msg-1", "x.com", "P1", 0.4))
	require.NoError(t, err)
	assert.Less(t, res.Suggestion.ConfidenceScore, 0.4)
	assert.Equal(t, "P1", res.Suggestion.RelatedEntityCode)
}

func TestDecide_RejectWithCorrection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPattern(t, xcomShape, "P1", 4, 4, 0.8, false)

	res, err := env.engine.Generate(ctx, domainSignal("msg-1", "x.com", "P1", 0.5))
	require.NoError(t, err)

	got, err := env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{
		Verdict:    model.VerdictReject,
		Reviewer:   "alex",
		Correction: &model.Correction{TargetCode: "P2"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "alex", *got.ReviewedBy)

	corrected := env.pattern(t, xcomShape, "P2")
	require.NotNil(t, corrected)
	assert.Equal(t, 1, corrected.TimesUsed)
	assert.Equal(t, 1, corrected.TimesCorrect)
	assert.False(t, corrected.IsActive, "corrections never activate a pattern online")

	original := env.pattern(t, xcomShape, "P1")
	require.NotNil(t, original)
	assert.Equal(t, 1, original.TimesRejected)
	assert.Equal(t, 5, original.TimesUsed)

	// No business record was touched.
	assert.Equal(t, float64(40000), env.projectFee(t, "p1"))
	log, err := env.engine.ChangeLog(ctx, store.ChangeFilter{})
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestDecide_RejectionRetiresActivePattern(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPattern(t, xcomShape, "P1", 3, 2, 0.75, true)

	res, err := env.engine.Generate(ctx, domainSignal("msg-1", "x.com", "P1", 0.5))
	require.NoError(t, err)
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{Verdict: model.VerdictReject, Reviewer: "alex"})
	require.NoError(t, err)

	p := env.pattern(t, xcomShape, "P1")
	require.NotNil(t, p)
	// 1 rejection in 4 uses is under the threshold.
	assert.True(t, p.IsActive)

	res, err = env.engine.Generate(ctx, domainSignal("msg-2", "x.com", "P1", 0.5))
	require.NoError(t, err)
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{Verdict: model.VerdictReject, Reviewer: "alex"})
	require.NoError(t, err)

	p = env.pattern(t, xcomShape, "P1")
	assert.Equal(t, 2, p.TimesRejected)
	assert.False(t, p.IsActive)
}

func TestDecide_ApproveLearnsPattern(t *testing.T) {
	env := newTestEnv(t)

	env.approved(t, domainSignal("msg-1", "x.com", "P-1", 0.5))
	p := env.pattern(t, xcomShape, "P-1")
	require.NotNil(t, p)
	assert.Equal(t, 1, p.TimesUsed)
	assert.Equal(t, 0, p.TimesCorrect)
	assert.False(t, p.IsActive)
}

func TestDecide_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// fee_change without a resolvable fee fails validation and stays pending.
	res, err := env.engine.Generate(ctx, model.Signal{
		SourceType: "email", SourceID: "msg-1", SignalType: model.SignalFeeMention,
		Payload: map[string]any{"project_code": "P-1"}, RawConfidence: 0.5,
	})
	require.NoError(t, err)
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, approve("alex"))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	got, err := env.engine.Get(ctx, res.Suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{Verdict: "maybe", Reviewer: "alex"})
	assert.True(t, apperr.IsValidation(err))
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{Verdict: model.VerdictReject})
	assert.True(t, apperr.IsValidation(err))
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{
		Verdict: model.VerdictApprove, Reviewer: "alex", Correction: &model.Correction{TargetCode: "P-2"},
	})
	assert.True(t, apperr.IsValidation(err))
	_, err = env.engine.Decide(ctx, "missing", approve("alex"))
	assert.True(t, apperr.IsNotFound(err))

	// Decisions are only legal once.
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, model.Decision{Verdict: model.VerdictReject, Reviewer: "alex"})
	require.NoError(t, err)
	_, err = env.engine.Decide(ctx, res.Suggestion.ID, approve("alex"))
	assert.True(t, apperr.IsConflict(err))
}

func TestApply_CreditsPattern(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.approved(t, domainSignal("msg-1", "x.com", "P-1", 0.5))

	res, err := env.engine.Apply(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "email_project_links", res.Changes[0].TableName)

	p := env.pattern(t, xcomShape, "P-1")
	require.NotNil(t, p)
	assert.Equal(t, 1, p.TimesCorrect)
	assert.InDelta(t, env.engine.Scorer().PatternConfidence(p), p.Confidence, 1e-9)
}

func TestGenerateRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPattern(t, xcomShape, "P-1", 6, 6, 0.8, false)
	env.seedPattern(t, xcomShape, "P-2", 2, 2, 0.7, false)
	noisy := env.seedPattern(t, model.PatternShape{PatternType: pattern.TypeSenderDomain, PatternKey: "y.com", TargetType: pattern.TargetProject}, "P-1", 10, 2, 0.6, true)
	require.NoError(t, env.st.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.AddPatternEvidence(ctx, store.PatternDelta{Shape: model.PatternShape{
			PatternType: noisy.PatternType, PatternKey: noisy.PatternKey, TargetType: noisy.TargetType,
		}, TargetCode: "P-1", TimesRejected: 5})
		return err
	}))

	changed, err := env.engine.GenerateRules(ctx, 5)
	require.NoError(t, err)
	require.Len(t, changed, 2)

	byKey := map[string]model.Pattern{}
	for _, p := range changed {
		byKey[p.PatternKey+"/"+p.TargetCode] = p
	}
	assert.True(t, byKey["x.com/P-1"].IsActive)
	assert.False(t, byKey["y.com/P-1"].IsActive)
	assert.False(t, env.pattern(t, xcomShape, "P-2").IsActive, "below min evidence")

	again, err := env.engine.GenerateRules(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestExpireStale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	env := newTestEnv(t, WithConfig(cfg))
	ctx := context.Background()

	old, err := env.engine.Generate(ctx, feeSignal("msg-1", "P-1", 50000))
	require.NoError(t, err)
	require.NotNil(t, old.Suggestion.ExpiresAt)

	env.clock = t0.Add(2 * time.Hour)
	fresh, err := env.engine.Generate(ctx, feeSignal("msg-2", "P-2", 13000))
	require.NoError(t, err)

	tally, err := env.engine.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Total)
	assert.Equal(t, 1, tally.Succeeded)

	got, err := env.engine.Get(ctx, old.Suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "system", *got.ReviewedBy)
	assert.Equal(t, "expired", *got.ReviewNotes)

	got, err = env.engine.Get(ctx, fresh.Suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestBatch_TalliesPerItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tally := env.engine.ProcessSignals(ctx, []model.Signal{
		feeSignal("msg-1", "P-1", 50000),
		feeSignal("msg-2", "P-404", 1),
		{SourceType: "email", SourceID: "msg-3", SignalType: "weather", RawConfidence: 0.5},
	})
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Contains(t, tally.Errors["2:email/msg-3/weather"], "unknown signal_type")

	pending, err := env.engine.List(ctx, store.SuggestionFilter{Status: model.StatusPending})
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, s := range pending {
		ids = append(ids, s.ID)
	}
	decided, err := env.engine.BulkDecide(ctx, append(ids, ids[0], "missing"), approve("alex"))
	require.NoError(t, err)
	assert.Equal(t, 3, decided.Total)
	assert.Equal(t, 2, decided.Succeeded)
	assert.Contains(t, decided.Errors, "missing")

	applied, err := env.engine.ApplyAllApproved(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, applied.Total)
	assert.Equal(t, 1, applied.Succeeded)
	assert.Equal(t, 1, applied.Failed)

	stats, err := env.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[model.StatusApplied])
	assert.Equal(t, 1, stats.ByStatus[model.StatusApplyFailed])
	assert.Equal(t, 2, stats.ByType[model.TypeFeeChange])
}

type recordingObserver struct {
	mu   sync.Mutex
	seen map[string]int
}

func (r *recordingObserver) Observe(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[op+":"+outcome]++
}

func TestObserver_ReceivesOutcomes(t *testing.T) {
	obs := &recordingObserver{seen: map[string]int{}}
	env := newTestEnv(t, WithObserver(obs))
	ctx := context.Background()

	s := env.approved(t, feeSignal("msg-1", "P-404", 50000))
	_, err := env.engine.Apply(ctx, s.ID)
	require.Error(t, err)

	assert.Equal(t, 1, obs.seen["generate:ok"])
	assert.Equal(t, 1, obs.seen["decide:ok"])
	assert.Equal(t, 1, obs.seen["apply:not_found"])
}
