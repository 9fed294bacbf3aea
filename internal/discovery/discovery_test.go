package discovery

import (
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePID(t *testing.T) {
	pid, err := ParsePID(strconv.Itoa(os.Getpid()))
	require.NoError(t, err)
	require.Equal(t, int32(os.Getpid()), pid)

	_, err = ParsePID("-1")
	require.Error(t, err)

	_, err = ParsePID("not-a-number")
	require.Error(t, err)
}

func TestParsePort(t *testing.T) {
	port, err := ParsePort("8080")
	require.NoError(t, err)
	require.Equal(t, 8080, port)

	_, err = ParsePort("0")
	require.Error(t, err)

	_, err = ParsePort("70000")
	require.Error(t, err)

	_, err = ParsePort("abc")
	require.Error(t, err)
}

func TestListByPortFindsOwnListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	matches, err := ListByPort(port)
	require.NoError(t, err)

	found := false
	for _, m := range matches {
		if m.PID == int32(os.Getpid()) {
			found = true
		}
	}
	require.True(t, found, "expected own pid %d bound to port %d among %+v", os.Getpid(), port, matches)
}

func TestSearchByNameNoMatchReturnsEmpty(t *testing.T) {
	// A substring no process carries in its command line yields an empty,
	// error-free result; this exercises the gopsutil enumeration path
	// without depending on the sandbox's process listing.
	matches, err := SearchByName("nonexistent-xyz-process-name-zzz")
	require.NoError(t, err)
	require.Empty(t, matches)
}
