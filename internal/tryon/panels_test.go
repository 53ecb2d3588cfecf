package tryon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryon/internal/domain"
)

func newTestPanels(client *fakeClient) *Panels {
	return NewPanels(func(panelID string) *Tracker {
		return NewTracker(client, Options{PanelID: panelID, Poller: fastPoller(client)})
	})
}

func TestPanelsLifecycle(t *testing.T) {
	panels := newTestPanels(newFakeClient())

	panel := panels.Create(" https://x/garment.png ", "Tops")
	require.NotEmpty(t, panel.ID)
	assert.Equal(t, "https://x/garment.png", panel.Garment)
	assert.Equal(t, "tops", panel.Category)

	got, err := panels.Get(panel.ID)
	require.NoError(t, err)
	assert.Same(t, panel, got)
	assert.Len(t, panels.List(), 1)

	require.NoError(t, panels.Remove(panel.ID))
	_, err = panels.Get(panel.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, panels.Remove(panel.ID), domain.ErrNotFound)
	assert.ErrorIs(t, panel.Tracker.Start(context.Background(), sampleRequest), domain.ErrClosed)
}

func TestPanelsRunIndependently(t *testing.T) {
	client := newFakeClient().
		script("left", statusStep("left", domain.JobPhaseCompleted, "https://x/left.png")).
		script("right", statusStep("right", domain.JobPhaseFailed))
	panels := newTestPanels(client)
	left := panels.Create("https://x/shirt.png", "")
	right := panels.Create("https://x/dress.png", "")

	require.NoError(t, left.Tracker.Start(context.Background(), left.Resolve(domain.JobRequest{ModelImage: "https://x/me.png"})))
	require.NoError(t, right.Tracker.Start(context.Background(), right.Resolve(domain.JobRequest{ModelImage: "https://x/me.png"})))

	leftSnap := waitSettled(t, left.Tracker)
	rightSnap := waitSettled(t, right.Tracker)
	assert.Equal(t, PhaseSucceeded, leftSnap.Phase)
	assert.Equal(t, PhaseFailed, rightSnap.Phase)
	assert.Equal(t, left.ID, leftSnap.PanelID)

	starts := client.startedRequests()
	require.Len(t, starts, 2)
	assert.Equal(t, "https://x/shirt.png", starts[0].GarmentImage)
	assert.Equal(t, "https://x/dress.png", starts[1].GarmentImage)
}

func TestPanelResolveKeepsExplicitFields(t *testing.T) {
	panel := &Panel{Garment: "https://x/preset.png", Category: "bottoms"}
	req := panel.Resolve(domain.JobRequest{ModelImage: "m", GarmentImage: "https://x/own.png", Category: "tops"})
	assert.Equal(t, "https://x/own.png", req.GarmentImage)
	assert.Equal(t, "tops", req.Category)

	req = panel.Resolve(domain.JobRequest{ModelImage: "m"})
	assert.Equal(t, "https://x/preset.png", req.GarmentImage)
	assert.Equal(t, "bottoms", req.Category)
}

func TestPanelsCloseAll(t *testing.T) {
	panels := newTestPanels(newFakeClient())
	panel := panels.Create("", "")
	panels.CloseAll()
	assert.Empty(t, panels.List())
	assert.ErrorIs(t, panel.Tracker.Start(context.Background(), sampleRequest), domain.ErrClosed)
}

func TestPanelsCloseAllWaitsForRecords(t *testing.T) {
	client := newFakeClient().script("a").script("b")
	recorder := &slowRecorder{delay: 10 * time.Millisecond}
	panels := NewPanels(func(panelID string) *Tracker {
		return NewTracker(client, Options{PanelID: panelID, Poller: fastPoller(client), Recorder: recorder})
	})
	for i := 0; i < 2; i++ {
		panel := panels.Create("https://x/g.png", "")
		require.NoError(t, panel.Tracker.Start(context.Background(), sampleRequest))
	}

	panels.CloseAll()

	assert.ElementsMatch(t, []string{"processing", "processing", "cancelled", "cancelled"}, recorder.phases())
}
