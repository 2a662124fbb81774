package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{404, KindNotFound},
		{429, KindRateLimit},
		{500, KindServerError},
		{503, KindServerError},
		{418, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, FromStatus(tt.code, "x").Kind)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, KindNetwork, KindOf(fmt.Errorf("tier: %w", Wrap(KindNetwork, "dial", stderrors.New("refused")))))
}

func TestLoginRequiredSentinel(t *testing.T) {
	err := fmt.Errorf("session backend: %w", ErrLoginRequired)
	assert.True(t, stderrors.Is(err, ErrLoginRequired))
	assert.True(t, IsLoginRequired(err))
	assert.Contains(t, err.Error(), "igevents auth login")

	other := FromStatus(401, "unauthorized")
	assert.False(t, stderrors.Is(other, ErrLoginRequired))
	assert.True(t, IsLoginRequired(other))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindNetwork, "x", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(KindNetwork))
	assert.True(t, IsRetryable(KindServerError))
	assert.False(t, IsRetryable(KindAuth))
	assert.False(t, IsRetryable(KindParsing))
	assert.True(t, IsRetryableStatusCode(502))
	assert.False(t, IsRetryableStatusCode(404))
}
