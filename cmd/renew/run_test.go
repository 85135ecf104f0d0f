package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/batch"
)

func TestStatusEmoji(t *testing.T) {
	tests := []struct {
		status batch.Status
		want   string
	}{
		{batch.StatusRenewed, "🎉"},
		{batch.StatusDeferred, "⏳"},
		{batch.StatusSkipped, "⏭️"},
		{batch.StatusLoginFailed, "❌"},
		{batch.StatusExhausted, "⚠️"},
		{batch.StatusNotFound, "💥"},
		{batch.StatusError, "💥"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, statusEmoji(tt.status))
		})
	}
}

func TestRunFlagsBindToConfigKeys(t *testing.T) {
	for flag, key := range map[string]string{
		"remote-url":   "browser.remote_url",
		"headless":     "browser.headless",
		"screenshots":  "diagnostics.dir",
		"max-attempts": "renewal.max_attempts",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(flag), flag)
		assert.NotNil(t, v.Get(key), key)
	}
}

func TestFailureLine(t *testing.T) {
	proxyErr := agent.NewProxyError("proxy pre-flight failed", errors.New("connection refused"))
	line := failureLine(fmt.Errorf("start: %w", proxyErr))
	assert.True(t, strings.HasPrefix(line, "🛑 Run aborted (proxy_unreachable)"), line)

	line = failureLine(agent.NewBrowserError("browser unreachable", nil))
	assert.True(t, strings.HasPrefix(line, "🛑 Run aborted (browser_unreachable)"), line)

	line = failureLine(fmt.Errorf("batch interrupted: %w", context.Canceled))
	assert.True(t, strings.HasPrefix(line, "❌ Run failed"), line)
}
