package chess

import (
	"fmt"
	"sort"
	"sync"
)

// AnalysisPreset bundles engine options with search limits.
type AnalysisPreset struct {
	Name           string
	Threads        int
	HashMB         int
	MultiPV        int
	MoveTimeMillis int
	DepthCap       int
	NodeCap        int
}

var presetMu sync.RWMutex

var DefaultPresets = map[string]AnalysisPreset{
	"quick": {
		Name:           "quick",
		Threads:        2,
		HashMB:         128,
		MultiPV:        3,
		MoveTimeMillis: 100,
	},
	"deep": {
		Name:     "deep",
		Threads:  2,
		HashMB:   128,
		MultiPV:  3,
		DepthCap: 18,
	},
}

const DefaultPresetName = "quick"

func GetPreset(name string) (AnalysisPreset, error) {
	if name == "" {
		name = DefaultPresetName
	}
	presetMu.RLock()
	p, ok := DefaultPresets[name]
	presetMu.RUnlock()
	if !ok {
		return AnalysisPreset{}, fmt.Errorf("unknown analysis preset: %s", name)
	}
	return p, nil
}

// RegisterPreset adds or replaces a preset after validating it.
func RegisterPreset(p AnalysisPreset) error {
	if p.Name == "" {
		return fmt.Errorf("preset name required")
	}
	if err := ValidatePreset(p); err != nil {
		return err
	}
	presetMu.Lock()
	DefaultPresets[p.Name] = p
	presetMu.Unlock()
	return nil
}

func PresetNames() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()
	names := make([]string, 0, len(DefaultPresets))
	for name := range DefaultPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ValidatePreset(p AnalysisPreset) error {
	switch {
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case p.MoveTimeMillis < 0:
		return fmt.Errorf("move time must be >= 0: %d", p.MoveTimeMillis)
	case p.NodeCap < 0:
		return fmt.Errorf("node cap must be >= 0: %d", p.NodeCap)
	case p.DepthCap < 0:
		return fmt.Errorf("depth cap must be >= 0: %d", p.DepthCap)
	case p.MoveTimeMillis == 0 && p.DepthCap == 0 && p.NodeCap == 0:
		return fmt.Errorf("preset %s does not define search limits", p.Name)
	}
	return nil
}

// Request builds an evaluation request for fen using the preset's limits.
func (p AnalysisPreset) Request(fen string) EvaluateRequest {
	return EvaluateRequest{
		FEN:     fen,
		MultiPV: p.MultiPV,
		Limits: Limits{
			Depth:          p.DepthCap,
			MoveTimeMillis: p.MoveTimeMillis,
			NodeCap:        p.NodeCap,
		},
	}
}
