package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoMAV/PiStreamer/internal/config"
	"github.com/EchoMAV/PiStreamer/internal/transport"
)

func TestNewTransportSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Command.SocketListen = "127.0.0.1:0"

	tr, err := newTransport(context.Background(), cfg)
	require.NoError(t, err)
	defer tr.Close()
	assert.IsType(t, &transport.Socket{}, tr)
}

func TestNewTransportPipe(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Command.Protocol = config.CommandPipe
	cfg.Command.PipeInput = filepath.Join(dir, "cmd")
	cfg.Command.PipeOutput = filepath.Join(dir, "telemetry")

	tr, err := newTransport(context.Background(), cfg)
	require.NoError(t, err)
	defer tr.Close()
	assert.IsType(t, &transport.Pipe{}, tr)
}

func TestNewTransportUnknown(t *testing.T) {
	cfg := config.Default()
	cfg.Command.Protocol = "carrier-pigeon"

	_, err := newTransport(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported command protocol")
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("verbose"))
	assert.Equal(t, "pistreamer", cmd.Use)
}
