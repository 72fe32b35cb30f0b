package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls []string
	steps int
	force int
	err   error
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.err }
func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}
func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.force = v
	return f.err
}
func (f *fakeMigrator) Version() (uint, bool, error) { return 2, false, nil }

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		steps   int
		version int
		calls   []string
		changed bool
	}{
		{"up all", "up", 0, -1, []string{"up"}, true},
		{"up steps", "up", 1, -1, []string{"steps"}, true},
		{"down all", "down", 0, -1, []string{"down"}, true},
		{"down steps", "down", 2, -1, []string{"steps"}, true},
		{"status", "status", 0, -1, nil, false},
		{"force", "force", 0, 1, []string{"force"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{}
			changed, err := run(m, tt.command, tt.steps, tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.calls, m.calls)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestRun_DownStepsAreNegative(t *testing.T) {
	m := &fakeMigrator{}
	_, err := run(m, "down", 2, -1)
	require.NoError(t, err)
	assert.Equal(t, -2, m.steps)
}

func TestRun_NoChangeIsNotAnError(t *testing.T) {
	m := &fakeMigrator{err: migrate.ErrNoChange}
	changed, err := run(m, "up", 0, -1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRun_Errors(t *testing.T) {
	boom := errors.New("boom")
	_, err := run(&fakeMigrator{err: boom}, "up", 0, -1)
	assert.ErrorIs(t, err, boom)

	_, err = run(&fakeMigrator{}, "force", 0, -1)
	assert.Error(t, err)

	_, err = run(&fakeMigrator{}, "sideways", 0, -1)
	assert.Error(t, err)
}
