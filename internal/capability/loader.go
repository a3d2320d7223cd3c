package capability

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// Load parses a manifest file, validates every entry, and normalizes
// aliases to lowercase. Malformed JSON or a structural violation (missing
// model_name, missing deployment for Azure, duplicate alias within the
// manifest) is a fatal-at-startup condition, reported as an error naming
// the offending file/entry.
func Load(path string) ([]Capabilities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capability: read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("capability: parse manifest %s: %w", path, err)
	}

	seenAliases := map[string]string{} // alias -> owning model_name, for duplicate detection
	for i := range m.Models {
		c := &m.Models[i]
		if c.ModelName == "" {
			return nil, fmt.Errorf("capability: manifest %s entry %d: missing model_name", path, i)
		}
		if c.Provider == Azure && c.Deployment == "" {
			return nil, fmt.Errorf("capability: manifest %s entry %q: azure models require deployment", path, c.ModelName)
		}
		if c.IntelligenceScore == 0 {
			c.IntelligenceScore = 10
		}
		if c.IntelligenceScore < 1 || c.IntelligenceScore > 20 {
			return nil, fmt.Errorf("capability: manifest %s entry %q: intelligence_score %d out of [1,20]", path, c.ModelName, c.IntelligenceScore)
		}
		if c.MaxOutputTokens > c.ContextWindow && c.ContextWindow > 0 {
			return nil, fmt.Errorf("capability: manifest %s entry %q: max_output_tokens > context_window", path, c.ModelName)
		}

		c.NormalizeAliases()
		for _, a := range c.Aliases {
			if owner, dup := seenAliases[a]; dup && owner != c.ModelName {
				return nil, fmt.Errorf("capability: manifest %s: alias %q used by both %q and %q", path, a, owner, c.ModelName)
			}
			seenAliases[a] = c.ModelName
		}
	}

	return m.Models, nil
}

// EffectiveRank computes the auto-mode sort score:
// clamp(intelligence_score*5, 0, 100) + log10(context_window/1k)*bonus +
// feature bonuses - custom penalty, clamped to [0,100].
func EffectiveRank(c *Capabilities) float64 {
	const (
		contextBonus  = 4.0
		featureBonus  = 2.0
		customPenalty = 5.0
	)

	score := clamp(float64(c.IntelligenceScore)*5, 0, 100)

	if c.ContextWindow > 0 {
		score += math.Log10(float64(c.ContextWindow)/1000) * contextBonus
	}

	if c.SupportsExtendedThinking {
		score += featureBonus
	}
	if c.SupportsFunctionCalling {
		score += featureBonus
	}
	if c.SupportsImages {
		score += featureBonus
	}
	if c.SupportsJSONMode {
		score += featureBonus
	}

	if c.Provider == Custom {
		score -= customPenalty
	}

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Map is the canonical-name -> Capabilities lookup a provider instance owns.
type Map map[string]*Capabilities

// Build indexes a manifest's models by canonical name, lowercased for
// case-insensitive alias lookups elsewhere.
func Build(models []Capabilities) Map {
	m := make(Map, len(models))
	for i := range models {
		m[strings.ToLower(models[i].ModelName)] = &models[i]
	}
	return m
}

// Resolve finds the capability owning alias_or_canonical, case-insensitive.
func (m Map) Resolve(nameOrAlias string) (*Capabilities, bool) {
	lname := strings.ToLower(nameOrAlias)
	if c, ok := m[lname]; ok {
		return c, true
	}
	for _, c := range m {
		if c.HasAlias(lname) {
			return c, true
		}
	}
	return nil, false
}

// ListForTool returns up to topN capabilities sorted by EffectiveRank
// descending, with an alphabetic canonical-name tie-break.
func ListForTool(caps []*Capabilities, topN int) []*Capabilities {
	sorted := make([]*Capabilities, len(caps))
	copy(sorted, caps)

	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := EffectiveRank(sorted[i]), EffectiveRank(sorted[j])
		if ri != rj {
			return ri > rj
		}
		return strings.ToLower(sorted[i].ModelName) < strings.ToLower(sorted[j].ModelName)
	})

	if topN > 0 && topN < len(sorted) {
		sorted = sorted[:topN]
	}
	return sorted
}
