package gates

import (
	"sort"

	"lectern/internal/config"
)

// FromConfig assembles the enabled gates in tier order. Disabled gates are
// simply absent from the list; the promotion engine runs whatever it gets.
func FromConfig(cfg *config.Config, source TextSource) []Gate {
	var list []Gate
	if cfg.Gates.LevelCheck {
		list = append(list, NewLevelGate())
	}
	if cfg.Gates.Orthography {
		list = append(list, NewOrthographyGate())
	}
	if cfg.Gates.Safety {
		list = append(list, NewSafetyGate())
	}
	if cfg.Gates.Duplicate && source != nil {
		list = append(list, NewDuplicateGate(source, cfg.Gates.DuplicateThreshold))
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Tier() < list[j].Tier() })
	return list
}
