package main

import (
	"testing"
	"time"

	"github.com/casualjim/sysbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		cfg, err := parseConfig([]string{
			"-id", "node-a",
			"-peers", "node-b, node-c,,",
			"-transport", "redis",
			"-events", "tick",
			"-push-timeout", "250ms",
			"-peer-mode", "forked",
		})
		require.NoError(t, err)
		assert.Equal(t, "node-a", cfg.id)
		assert.Equal(t, []string{"node-b", "node-c"}, cfg.peers)
		assert.Equal(t, "redis", cfg.transport)
		assert.Equal(t, []string{"tick"}, cfg.events)
		assert.Equal(t, 250*time.Millisecond, cfg.pushTimeout)
		assert.Equal(t, sysbus.ModeForked, cfg.peerMode)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("SYSBUS_ID", "from-env")
		t.Setenv("SYSBUS_PEERS", "x")
		t.Setenv("SYSBUS_TRANSPORT", "nats")
		t.Setenv("SYSBUS_PEER_MODE", "Forked")
		cfg, err := parseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.id)
		assert.Equal(t, []string{"x"}, cfg.peers)
		assert.Equal(t, 5*time.Second, cfg.pushTimeout)
		assert.Equal(t, sysbus.ModeForked, cfg.peerMode)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("SYSBUS_ID", "")
		t.Setenv("SYSBUS_TRANSPORT", "")
		t.Setenv("SYSBUS_PEERS", "")
		t.Setenv("SYSBUS_PEER_MODE", "")
		cfg, err := parseConfig(nil)
		require.NoError(t, err)
		assert.Contains(t, cfg.id, "sysbusd-")
		assert.Equal(t, "nats", cfg.transport)
		assert.Empty(t, cfg.peers)
		assert.Equal(t, sysbus.ModeRemote, cfg.peerMode)
	})

	t.Run("rejects peer modes outside the broadcast set", func(t *testing.T) {
		_, err := parseConfig([]string{"-transport", "nats", "-peer-mode", "local"})
		assert.Error(t, err)

		_, err = parseConfig([]string{"-transport", "nats", "-peer-mode", "cluster"})
		assert.Error(t, err)

		t.Setenv("SYSBUS_PEER_MODE", "cluster")
		_, err = parseConfig([]string{"-transport", "nats"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		_, err := parseConfig([]string{"-transport", "carrier-pigeon"})
		assert.Error(t, err)
	})

	t.Run("rejects invalid timeout", func(t *testing.T) {
		_, err := parseConfig([]string{"-transport", "nats", "-push-timeout", "soon"})
		assert.Error(t, err)
	})
}
