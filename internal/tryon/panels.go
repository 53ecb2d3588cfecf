package tryon

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tryon/internal/domain"
)

// Panel is one try-on slot: a garment preset and the tracker running it.
type Panel struct {
	ID        string
	Garment   string
	Category  string
	CreatedAt time.Time
	Tracker   *Tracker
}

// PanelInfo is the serialisable view of a panel.
type PanelInfo struct {
	ID        string    `json:"id"`
	Garment   string    `json:"garment,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	State     Snapshot  `json:"state"`
}

// Info returns the panel with a fresh tracker snapshot.
func (p *Panel) Info() PanelInfo {
	return PanelInfo{
		ID:        p.ID,
		Garment:   domain.DescribeImageRef(p.Garment),
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
		State:     p.Tracker.Snapshot(),
	}
}

// TrackerFactory builds the tracker for a new panel.
type TrackerFactory func(panelID string) *Tracker

// Panels is a registry of independent panels. Each panel has its own tracker;
// trackers share the remote client.
type Panels struct {
	factory TrackerFactory

	mu     sync.RWMutex
	panels map[string]*Panel
}

func NewPanels(factory TrackerFactory) *Panels {
	return &Panels{factory: factory, panels: make(map[string]*Panel)}
}

// Create registers a panel with an optional garment preset and category.
func (p *Panels) Create(garment, category string) *Panel {
	id := uuid.NewString()
	panel := &Panel{
		ID:        id,
		Garment:   strings.TrimSpace(garment),
		Category:  domain.NormalizeCategory(category),
		CreatedAt: time.Now().UTC(),
		Tracker:   p.factory(id),
	}
	p.mu.Lock()
	p.panels[id] = panel
	p.mu.Unlock()
	return panel
}

func (p *Panels) Get(id string) (*Panel, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	panel, ok := p.panels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return panel, nil
}

// Len returns the number of open panels.
func (p *Panels) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.panels)
}

// List returns panels oldest first.
func (p *Panels) List() []*Panel {
	p.mu.RLock()
	out := make([]*Panel, 0, len(p.panels))
	for _, panel := range p.panels {
		out = append(out, panel)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Remove closes the panel's tracker and forgets it.
func (p *Panels) Remove(id string) error {
	p.mu.Lock()
	panel, ok := p.panels[id]
	delete(p.panels, id)
	p.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	panel.Tracker.Close()
	return nil
}

// CloseAll closes every tracker and returns once their attempt updates have
// been recorded. Used on shutdown, before the recorders' stores go away.
func (p *Panels) CloseAll() {
	p.mu.Lock()
	panels := p.panels
	p.panels = make(map[string]*Panel)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, panel := range panels {
		wg.Add(1)
		go func(tracker *Tracker) {
			defer wg.Done()
			tracker.Close()
		}(panel.Tracker)
	}
	wg.Wait()
}

// Resolve fills a request's garment and category from the panel preset where
// the request leaves them empty.
func (p *Panel) Resolve(req domain.JobRequest) domain.JobRequest {
	if strings.TrimSpace(req.GarmentImage) == "" {
		req.GarmentImage = p.Garment
	}
	if strings.TrimSpace(req.Category) == "" {
		req.Category = p.Category
	}
	return req
}
