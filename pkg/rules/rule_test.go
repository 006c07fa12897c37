// accolade/pkg/rules/rule_test.go

package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/accolade/pkg/cache"
	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/ledger"
	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/validator"
)

func baseDef() map[string]any {
	return map[string]any{
		"name":        "Builder",
		"image_url":   "builder.png",
		"description": "Built something",
		"creator":     "ralph",
		"discussion":  "https://example.org/badges/1",
		"trigger":     map[string]any{"topic": testTopic},
	}
}

func TestNewReportsFieldProblems(t *testing.T) {
	def := baseDef()
	delete(def, "creator")
	def["colour"] = "blue"

	_, err := New(def)
	var ruleErr *validator.RuleError
	require.True(t, errors.As(err, &ruleErr))
	assert.Equal(t, "Builder", ruleErr.Rule)
	assert.Equal(t, []string{"creator"}, ruleErr.Missing)
	assert.Equal(t, []string{"colour"}, ruleErr.Unknown)
	assert.Contains(t, err.Error(), "Builder")
}

func TestNewInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
	}{
		{"bad trigger", "trigger", map[string]any{"frobnicate": "x"}},
		{"bad condition", "condition", map[string]any{"roughly": 3}},
		{"condition not a mapping", "condition", 3},
		{"bad previous", "previous", map[string]any{"filter": map[string]any{"topics": []any{"message.topic"}}}},
		{"recipient does not compile", "recipient", "message.("},
		{"transform flag not boolean", "recipient_nick2fas", "yes"},
		{"tags not a list", "tags", "a,b"},
		{"description not a string", "description", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := baseDef()
			def[tt.field] = tt.value
			_, err := New(def)
			require.Error(t, err)
			assert.True(t, logging.IsType(err, logging.ErrorTypeConfig), err.Error())
		})
	}
}

func TestNewCollectsTransformsInOrder(t *testing.T) {
	def := baseDef()
	def["recipient_krb2fas"] = true
	def["recipient_github2fas"] = false
	def["recipient_nick2fas"] = true
	def["tags"] = []any{"builds", 2024}

	r, err := New(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"recipient_nick2fas", "recipient_krb2fas"}, r.Transforms)
	assert.Equal(t, []string{"builds", "2024"}, r.Tags)
	assert.Nil(t, r.Condition)
	assert.Nil(t, r.Previous)
}

func TestSetup(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()

	r, err := New(baseDef())
	require.NoError(t, err)
	require.NoError(t, r.Setup(ctx, l, "example-issuer"))
	assert.Equal(t, "builder", r.BadgeID)

	again, err := New(baseDef())
	require.NoError(t, err)
	require.NoError(t, again.Setup(ctx, l, "example-issuer"))
	assert.Equal(t, r.BadgeID, again.BadgeID)
}

func buildEvent(agent string) *event.Event {
	return &event.Event{ID: "msg-1", Topic: testTopic, AgentName: agent}
}

func thresholdRule(t *testing.T) *Rule {
	t.Helper()
	def := baseDef()
	def["condition"] = map[string]any{"greater than or equal to": 500}
	def["previous"] = map[string]any{
		"filter":    map[string]any{"topics": []any{"message.topic"}, "users": []any{"recipient"}},
		"operation": "count",
	}
	r, err := New(def)
	require.NoError(t, err)
	require.NoError(t, r.Setup(context.Background(), ledger.NewMemory(), ""))
	return r
}

func TestMatchesThreshold(t *testing.T) {
	tests := []struct {
		name     string
		archived int
		expected map[string]struct{}
	}{
		{"reaches threshold", 500, map[string]struct{}{"ralph": {}}},
		{"one short", 499, map[string]struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arc := &fakeArchive{count: tt.archived}
			r := thresholdRule(t)
			got, err := r.Matches(context.Background(), buildEvent("ralph"), testEnv(arc))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, 1, arc.calls())
		})
	}
}

func TestMatchesIncrementsCachedCount(t *testing.T) {
	ctx := context.Background()
	arc := &fakeArchive{count: 499}
	env := testEnv(arc)
	r := thresholdRule(t)

	got, err := r.Matches(ctx, buildEvent("ralph"), env)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Matches(ctx, buildEvent("ralph"), env)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"ralph": {}}, got)
	assert.Equal(t, 1, arc.calls(), "the archive is only read to seed the counter")

	n, err := env.Counter.Cache().Get(ctx, cache.MessagesCountKey(r.BadgeID, "ralph"))
	require.NoError(t, err)
	assert.Equal(t, 500, n)
}

func TestMatchesWithoutConditionOrHistory(t *testing.T) {
	r, err := New(baseDef())
	require.NoError(t, err)
	r.BadgeID = "builder"

	arc := &fakeArchive{}
	got, err := r.Matches(context.Background(), buildEvent("decause"), testEnv(arc))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"decause": {}}, got)
	assert.Zero(t, arc.calls())
}

func TestMatchesTriggerMiss(t *testing.T) {
	r, err := New(baseDef())
	require.NoError(t, err)

	ev := buildEvent("ralph")
	ev.Topic = "org.example.prod.git.receive"
	got, err := r.Matches(context.Background(), ev, testEnv(&fakeArchive{}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchesFailsClosed(t *testing.T) {
	boom := errors.New("archive unavailable")
	r := thresholdRule(t)

	got, err := r.Matches(context.Background(), buildEvent("ralph"), testEnv(&fakeArchive{count: 900, err: boom}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, logging.IsType(err, logging.ErrorTypeRuntime))
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestMatchesSurvivesCacheOutage(t *testing.T) {
	r := thresholdRule(t)
	env := testEnv(&fakeArchive{count: 500})
	env = env.WithCounter(NewCounter(brokenCache{}))

	got, err := r.Matches(context.Background(), buildEvent("ralph"), env)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"ralph": {}}, got)
}
