package main

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialEchoes(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"dial", "--port", strconv.Itoa(l.Addr().(*net.TCPAddr).Port), "--message", "marco"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "marco", strings.TrimSpace(out.String()))
}

func TestServeRejectsMissingConfig(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--config", "/nonexistent/router.yaml"})
	assert.Error(t, cmd.Execute())
}
