package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiwabot/pkg/chattypes"
)

func TestBuildSystemPrompt_BaseOnly(t *testing.T) {
	prompt := BuildSystemPrompt(&chattypes.ConversationContext{})

	assert.Contains(t, prompt, "建設的な対話")
	assert.NotContains(t, prompt, "現在の話題")
	assert.NotContains(t, prompt, "ユーザーの気分")
	assert.NotContains(t, prompt, "お酒")
}

func TestBuildSystemPrompt_NilContext(t *testing.T) {
	assert.Equal(t, basePrompt, BuildSystemPrompt(nil))
}

func TestBuildSystemPrompt_IncludesSessionState(t *testing.T) {
	prompt := BuildSystemPrompt(&chattypes.ConversationContext{
		Topic:        "仕事",
		Mood:         "少し疲れている",
		AlcoholLevel: 1,
	})

	assert.Contains(t, prompt, "現在の話題: 仕事")
	assert.Contains(t, prompt, "ユーザーの気分: 少し疲れている")
	assert.Contains(t, prompt, "リラックスした雰囲気")
}

func TestBuildSystemPrompt_HigherAlcoholLevels(t *testing.T) {
	for _, level := range []int{2, 3} {
		prompt := BuildSystemPrompt(&chattypes.ConversationContext{AlcoholLevel: level})
		assert.Contains(t, prompt, "ゆっくりと優しく", "level %d", level)
	}
}

func TestConvertMessagesToGemini_RoleMapping(t *testing.T) {
	now := time.Now()
	contents := convertMessagesToGemini([]chattypes.Message{
		{Role: chattypes.RoleUser, Content: "hello", Timestamp: now},
		{Role: chattypes.RoleAssistant, Content: "hi", Timestamp: now},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "hello", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hi", contents[1].Parts[0].Text)
}

func TestConvertMessagesToGemini_EmptyHistoryGetsPlaceholder(t *testing.T) {
	contents := convertMessagesToGemini(nil)

	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
}

func TestConvertMessagesToGemini_SkipsUnknownRoles(t *testing.T) {
	contents := convertMessagesToGemini([]chattypes.Message{
		{Role: "system", Content: "ignored"},
		{Role: chattypes.RoleUser, Content: "kept"},
	})

	require.Len(t, contents, 1)
	assert.Equal(t, "kept", contents[0].Parts[0].Text)
}

func TestFactory_RejectsEmptyProvider(t *testing.T) {
	factory := NewFactory()
	_, err := factory.GetClientForProvider("", "key", "model")
	assert.Error(t, err)
}

func TestFactory_RejectsEmptyAPIKey(t *testing.T) {
	factory := NewFactory()
	_, err := factory.GetClientForProvider("gemini", "", "gemini-2.0-flash")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestFactory_RejectsUnknownProvider(t *testing.T) {
	factory := NewFactory()
	_, err := factory.GetClientForProvider("llama", "key", "model")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported provider"))
}

func TestFactory_CreatesEachProvider(t *testing.T) {
	factory := NewFactory()

	cases := map[string]string{
		"gemini":    "gemini",
		"openai":    "openai",
		"anthropic": "anthropic",
	}
	for provider, wantName := range cases {
		client, err := factory.GetClientForProvider(provider, "test-key", "test-model")
		require.NoError(t, err, provider)
		assert.Equal(t, wantName, client.GetProviderName())
		assert.True(t, client.IsConfigured())
	}
}

func TestFactory_CachesClients(t *testing.T) {
	factory := NewFactory()

	first, err := factory.GetClientForProvider("gemini", "key", "gemini-2.0-flash")
	require.NoError(t, err)
	second, err := factory.GetClientForProvider("gemini", "key", "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := factory.GetClientForProvider("gemini", "key", "gemini-2.5-pro")
	require.NoError(t, err)
	assert.NotSame(t, first, other, "different models get different clients")
}
