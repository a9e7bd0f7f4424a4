package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTieringWithoutProviderTruncates(t *testing.T) {
	svc := NewTieringService(nil)
	ctx := context.Background()

	short := "fits in one line"
	assert.Equal(t, short, svc.GenerateAbstract(ctx, short))
	assert.Equal(t, short, svc.GenerateOverview(ctx, short))

	long := strings.Repeat("x", 150)
	abstract := svc.GenerateAbstract(ctx, long)
	assert.Equal(t, strings.Repeat("x", 100)+"…", abstract)

	longer := strings.Repeat("y", 600)
	overview := svc.GenerateOverview(ctx, longer)
	assert.Equal(t, strings.Repeat("y", 500)+"…", overview)
}

func TestTieringTruncationBoundary(t *testing.T) {
	svc := NewTieringService(nil)
	ctx := context.Background()

	// Content exactly at the limit is returned unchanged, no ellipsis.
	exactly100 := strings.Repeat("a", 100)
	assert.Equal(t, exactly100, svc.GenerateAbstract(ctx, exactly100))

	over := strings.Repeat("a", 101)
	assert.Equal(t, exactly100+"…", svc.GenerateAbstract(ctx, over))
}

func TestTieringTruncatesRunesNotBytes(t *testing.T) {
	svc := NewTieringService(nil)

	// 150 multibyte runes must cut at 100 runes without splitting one.
	content := strings.Repeat("é", 150)
	abstract := svc.GenerateAbstract(context.Background(), content)
	assert.Equal(t, strings.Repeat("é", 100)+"…", abstract)
}

func TestTieringProviderFailureFallsBack(t *testing.T) {
	svc := NewTieringService(&fakeProvider{err: errors.New("model offline")})
	ctx := context.Background()

	long := strings.Repeat("z", 200)
	assert.Equal(t, strings.Repeat("z", 100)+"…", svc.GenerateAbstract(ctx, long))
	assert.Equal(t, long, svc.GenerateOverview(ctx, long))
}

func TestTieringUsesProviderOutput(t *testing.T) {
	provider := &fakeProvider{reply: "A concise summary."}
	svc := NewTieringService(provider)

	abstract, overview := svc.GenerateTiers(context.Background(), strings.Repeat("w", 300))
	assert.Equal(t, "A concise summary.", abstract)
	assert.Equal(t, "A concise summary.", overview)
	// Two independent provider calls, one per tier.
	assert.Equal(t, 2, provider.calls)
}
