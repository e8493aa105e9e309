package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsSetAndGet(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("settings", "set", "vocabulary_hint", "Kubernetes, etcd"))

	f.stdout.Reset()
	require.NoError(t, f.run("settings", "get", "vocabulary_hint"))
	require.Contains(t, f.stdout.String(), "Kubernetes, etcd")
}

func TestSettingsGetMasksCredential(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("settings", "set", "api_key", "sk-abcdef0123456789"))

	f.stdout.Reset()
	require.NoError(t, f.run("settings", "get", "api_key"))
	out := f.stdout.String()
	require.NotContains(t, out, "sk-abcdef0123456789")
	require.Contains(t, out, "sk-a")
	require.Contains(t, out, "6789")
}

func TestSettingsGetAllListsEveryKey(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("settings", "get"))
	out := f.stdout.String()
	for _, key := range []string{"api_key", "auto_capture", "target_app", "vocabulary_hint"} {
		require.Contains(t, out, key)
	}
}

func TestSettingsSetUnknownKey(t *testing.T) {
	f := newFixture(t)
	err := f.run("settings", "set", "color_scheme", "dark")
	require.Error(t, err)
}

func TestSettingsTestSuccess(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("settings", "test"))
	require.Contains(t, f.stdout.String(), "Credential works.")
}

func TestSettingsTestFailure(t *testing.T) {
	f := newFixture(t)
	f.tester.err = errors.New("invalid api key")

	err := f.run("settings", "test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "credential test failed")
}

func TestVersionCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("version"))
	require.Contains(t, f.stdout.String(), "voicebox v")
}
