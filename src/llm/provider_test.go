package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesbot/pkg"
	"salesbot/src/model"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply *schema.Message
	err   error
	delay time.Duration
}

func (s *stubGenerator) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.reply, s.err
}

func TestNewChatModelUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), model.LLMConfig{Provider: "bard", Timeout: time.Second})
	require.Error(t, err)
	assert.True(t, pkg.IsKind(err, pkg.ErrValidation))
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("passes replies through", func(t *testing.T) {
		gen := WithTimeout(&stubGenerator{reply: schema.AssistantMessage("hi", nil)}, time.Second)
		msg, err := gen.Generate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "hi", msg.Content)
	})

	t.Run("slow model is an upstream timeout", func(t *testing.T) {
		gen := WithTimeout(&stubGenerator{delay: time.Second}, 20*time.Millisecond)
		_, err := gen.Generate(ctx, nil)
		require.Error(t, err)
		assert.Equal(t, pkg.ErrUpstreamTimeout, pkg.KindOf(err))
	})

	t.Run("failure is upstream unavailable", func(t *testing.T) {
		gen := WithTimeout(&stubGenerator{err: errors.New("503")}, time.Second)
		_, err := gen.Generate(ctx, nil)
		assert.Equal(t, pkg.ErrUpstreamUnavailable, pkg.KindOf(err))
	})

	t.Run("zero timeout returns the inner generator", func(t *testing.T) {
		inner := &stubGenerator{}
		assert.Same(t, inner, WithTimeout(inner, 0))
	})
}

func TestTokensUsed(t *testing.T) {
	assert.Nil(t, TokensUsed(schema.AssistantMessage("x", nil)))

	msg := schema.AssistantMessage("x", nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{TotalTokens: 42}}
	require.NotNil(t, TokensUsed(msg))
	assert.Equal(t, 42, *TokensUsed(msg))
}
