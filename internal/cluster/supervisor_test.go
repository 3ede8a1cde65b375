package cluster

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugFlagRegexMatchesDocumentedFlags(t *testing.T) {
	matches := []string{
		"--inspect",
		"--inspect-brk",
		"--inspect-brk=9229",
		"--inspect-port=9230",
		"--debug-port=1234",
	}
	for _, m := range matches {
		assert.True(t, debugFlagRe.MatchString(m), "expected %q to match", m)
	}

	nonMatches := []string{"--port=8080", "--workers=4", "inspect-brk=9229"}
	for _, m := range nonMatches {
		assert.False(t, debugFlagRe.MatchString(m), "expected %q not to match", m)
	}
}

func TestDeriveArgsRewritesDebugPort(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"clusterd", "--port=8080", "--inspect-brk=9229"}

	s := &Supervisor{debugPort: 9229}

	args1 := s.deriveArgs()
	require.Contains(t, args1, "--port=8080")
	require.NotContains(t, args1, "--inspect-brk=9229")
	require.Contains(t, args1, "--inspect-brk=9230")

	args2 := s.deriveArgs()
	require.Contains(t, args2, "--inspect-brk=9231")
}

func TestDeriveArgsLeavesNonDebugArgsUntouchedWhenNoDebugFlag(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"clusterd", "--port=8080", "--workers=4"}

	s := &Supervisor{}
	args := s.deriveArgs()
	assert.Equal(t, []string{"--port=8080", "--workers=4"}, args)
}

func TestNextDebugPortWrapsAt65535(t *testing.T) {
	s := &Supervisor{debugPort: 65534}
	assert.Equal(t, 65535, s.nextDebugPort())
	assert.Equal(t, 65535, s.nextDebugPort()) // 65534+2=65536 -> wraps to 65535
}

func TestDeriveEnvSetsMasterPIDAndUniqueID(t *testing.T) {
	s := &Supervisor{cfg: Config{Env: map[string]string{"FOO": "bar"}}}
	env := s.deriveEnv(3)

	assertHasKV(t, env, "NODE_UNIQUE_ID", "3")
	assertHasKV(t, env, "FOO", "bar")

	found := false
	for _, kv := range env {
		if len(kv) > len(masterPIDEnv) && kv[:len(masterPIDEnv)] == masterPIDEnv {
			found = true
		}
	}
	assert.True(t, found, "expected %s to be set in derived env", masterPIDEnv)
}

func TestNewSupervisorSizesEventsChannelToWorkerPool(t *testing.T) {
	s := NewSupervisor(Config{Workers: 64}, nil, "", 0)
	for i := 0; i < 64; i++ {
		select {
		case s.events <- supervisorEvent{kind: eventSpawned}:
		default:
			t.Fatalf("events channel filled after %d of 64 sends; a pool this size would deadlock the initial spawn loop", i)
		}
	}
}

func TestUniqueIDsAreMonotonicAcrossSpawnCalls(t *testing.T) {
	s := &Supervisor{}
	var ids []int
	for i := 0; i < 5; i++ {
		ids = append(ids, s.allocateID())
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func assertHasKV(t *testing.T, env []string, key, value string) {
	t.Helper()
	want := key + "=" + value
	for _, kv := range env {
		if kv == want {
			return
		}
	}
	t.Fatalf("expected env to contain %q, got %v", want, env)
}
