package server

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTUIModelShowsLiveStreams(t *testing.T) {
	m := tuiModel{startTime: time.Now(), quitChan: make(chan struct{}, 1)}

	updated, _ := m.Update(statusMsg(ServerStatus{
		Name:      "studio",
		Port:      3000,
		Format:    "16000Hz/1ch/16bit",
		Observers: 2,
		Finished:  5,
		Sessions: []SessionInfo{
			{ID: "a", Mode: "observer"},
			{ID: "b", Mode: "producer", File: "/srv/streams/livestream_x.wav", Bytes: 2048, Level: 0.5, Remote: "10.0.0.2:5000"},
			{ID: "c", Mode: "idle"},
		},
	}))
	view := updated.View()

	assert.Contains(t, view, "studio")
	assert.Contains(t, view, "16000Hz/1ch/16bit")
	assert.Contains(t, view, "Live Streams (1)")
	assert.Contains(t, view, "livestream_x.wav")
	assert.Contains(t, view, "2.0 KiB")
	assert.Contains(t, view, "10.0.0.2:5000")
}

func TestTUIModelEmpty(t *testing.T) {
	m := tuiModel{startTime: time.Now(), quitChan: make(chan struct{}, 1)}
	assert.Contains(t, m.View(), "No producers connected")
}

func TestTUIQuitSignalsServer(t *testing.T) {
	quit := make(chan struct{}, 1)
	m := tuiModel{startTime: time.Now(), quitChan: quit}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, "Shutting down server...\n", updated.View())

	select {
	case <-quit:
	default:
		t.Fatal("quit was not signalled")
	}
}

func TestLevelBar(t *testing.T) {
	assert.Equal(t, "[    ]", levelBar(0, 4))
	assert.Equal(t, "[##  ]", levelBar(0.5, 4))
	assert.Equal(t, "[####]", levelBar(3, 4))
	assert.Equal(t, "[    ]", levelBar(-1, 4))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}

func TestLevelMeter(t *testing.T) {
	var l levelMeter
	assert.Zero(t, l.Get())
	l.Set(0.25)
	assert.Equal(t, 0.25, l.Get())
}
