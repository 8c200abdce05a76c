package rotation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pacert/pkg/rotation"
)

func TestMachine_HappyPath(t *testing.T) {
	t.Parallel()

	m := rotation.NewMachine(nil)
	var seen []rotation.State
	m.OnChange(func(tr rotation.Transition) { seen = append(seen, tr.To) })

	path := []rotation.State{
		rotation.StateConnected, rotation.StateBackedUp, rotation.StateSelected,
		rotation.StateDiscovered, rotation.StateUploaded, rotation.StateVerified,
		rotation.StateUpdated, rotation.StateDone,
	}
	for _, s := range path {
		require.NoError(t, m.To(s), "to %s", s)
	}

	assert.Equal(t, path, seen)
	assert.Equal(t, rotation.StateDone, m.State())
	assert.Len(t, m.Transitions(), len(path))
	assert.True(t, m.State().Terminal())
}

func TestMachine_Guards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []rotation.State
		next  rotation.State
		ok    bool
	}{
		{"cannot upload before discovery", []rotation.State{rotation.StateConnected}, rotation.StateUploaded, false},
		{"cannot skip verification", []rotation.State{
			rotation.StateConnected, rotation.StateBackedUp, rotation.StateSelected,
			rotation.StateDiscovered, rotation.StateUploaded,
		}, rotation.StateUpdated, false},
		{"dry run ends after discovery", []rotation.State{
			rotation.StateConnected, rotation.StateBackedUp, rotation.StateSelected, rotation.StateDiscovered,
		}, rotation.StateDone, true},
		{"abort after backup", []rotation.State{rotation.StateConnected, rotation.StateBackedUp}, rotation.StateAborted, true},
		{"abort not allowed after selection", []rotation.State{
			rotation.StateConnected, rotation.StateBackedUp, rotation.StateSelected,
		}, rotation.StateAborted, false},
		{"fail from init", nil, rotation.StateFailed, true},
		{"cancel mid-run", []rotation.State{rotation.StateConnected, rotation.StateBackedUp}, rotation.StateCancelled, true},
		{"nothing leaves failed", []rotation.State{rotation.StateFailed}, rotation.StateCancelled, false},
		{"nothing leaves done", []rotation.State{
			rotation.StateConnected, rotation.StateBackedUp, rotation.StateSelected,
			rotation.StateDiscovered, rotation.StateDone,
		}, rotation.StateFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := rotation.NewMachine(nil)
			for _, s := range tt.setup {
				require.NoError(t, m.To(s))
			}
			before := m.State()

			assert.Equal(t, tt.ok, m.Can(tt.next))
			err := m.To(tt.next)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.next, m.State())
			} else {
				assert.ErrorIs(t, err, rotation.ErrInvalidTransition)
				assert.Equal(t, before, m.State())
			}
		})
	}
}

func TestMachine_TransitionsUseClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := rotation.NewMachine(func() time.Time { return at })
	require.NoError(t, m.To(rotation.StateConnected))

	trs := m.Transitions()
	require.Len(t, trs, 1)
	assert.Equal(t, rotation.Transition{From: rotation.StateInit, To: rotation.StateConnected, At: at}, trs[0])

	trs[0].To = rotation.StateDone
	assert.Equal(t, rotation.StateConnected, m.Transitions()[0].To)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "backed-up", rotation.StateBackedUp.String())
	assert.Equal(t, "cancelled", rotation.StateCancelled.String())
	assert.Equal(t, "state(99)", rotation.State(99).String())
}
