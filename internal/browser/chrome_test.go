package browser

import (
	"context"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTabHonorsCallerCancellation(t *testing.T) {
	chrome := NewChrome(context.Background())
	defer chrome.Close()

	tabCtx, tabCancel := chromedp.NewContext(chrome.allocCtx)
	tb := &tab{ctx: tabCtx, cancel: tabCancel}
	defer tb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tb.Links(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = tb.Audit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
