package upload

import (
	"testing"

	"github.com/danmuck/clowdctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker()
	h := tr.Create(" shot.png ")
	tr.Update(h, 42, 1024)

	p, ok := tr.Get(h)
	require.True(t, ok)
	assert.Equal(t, "shot.png", p.DisplayName)
	assert.Equal(t, 42.0, p.Percent)
	assert.EqualValues(t, 1024, p.BytesWritten)

	tr.Provisional(h, "renamed.png", "https://clowd.test/u/1")
	tr.Complete(h, "https://clowd.test/u/1")
	p, _ = tr.Get(h)
	assert.Equal(t, "renamed.png", p.DisplayName)
	assert.True(t, p.Done)
	assert.False(t, p.Failed)
	assert.Equal(t, 100.0, p.Percent)

	failed := tr.Create("b")
	tr.Fail(failed, "connection reset")
	p, _ = tr.Get(failed)
	assert.True(t, p.Failed)
	assert.Equal(t, "connection reset", p.Message)

	assert.Len(t, tr.List(), 2)
	tr.Remove(h)
	_, ok = tr.Get(h)
	assert.False(t, ok)

	tr.Update("unknown", 1, 1)
	assert.Len(t, tr.List(), 1)
}

func TestMultiSinkFansOut(t *testing.T) {
	testlog.Start(t)
	a, b := NewTracker(), NewTracker()
	m := NewMultiSink(a, b, NopSink{})

	h := m.Create("x")
	m.Update(h, 50, 10)
	m.Provisional(h, "y", "link")
	m.Complete(h, "link")

	for _, tr := range []*Tracker{a, b} {
		list := tr.List()
		require.Len(t, list, 1)
		assert.Equal(t, "y", list[0].DisplayName)
		assert.Equal(t, "link", list[0].ActionLink)
		assert.True(t, list[0].Done)
	}

	// Handles are forgotten once finished.
	m.Fail(h, "late")
	assert.False(t, a.List()[0].Failed)
}
