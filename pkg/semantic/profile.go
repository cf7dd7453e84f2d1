// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package semantic

import (
	"math"
	"time"

	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Profile controls how similarity, confidence, and recency combine into
// one ranking score.
type Profile struct {
	Name string
	// HalfLifeHours is the recency decay half-life.
	HalfLifeHours float64
	// WSim, WConf, and WDec weight similarity, confidence, and decay.
	WSim  float64
	WConf float64
	WDec  float64
}

// The built-in profiles. "balanced" is the default.
var profiles = map[string]Profile{
	"recent": {
		Name:          "recent",
		HalfLifeHours: 24,
		WSim:          0.3,
		WConf:         0.1,
		WDec:          0.6,
	},
	"quality": {
		Name:          "quality",
		HalfLifeHours: 720,
		WSim:          0.4,
		WConf:         0.5,
		WDec:          0.1,
	},
	"balanced": {
		Name:          "balanced",
		HalfLifeHours: 168,
		WSim:          1.0 / 3,
		WConf:         1.0 / 3,
		WDec:          1.0 / 3,
	},
	"similarity": {
		Name:          "similarity",
		HalfLifeHours: 168,
		WSim:          1,
		WConf:         0,
		WDec:          0,
	},
}

// DefaultProfile is used when a search names no profile.
const DefaultProfile = "balanced"

// ProfileByName resolves a profile name. The empty name selects the
// default.
func ProfileByName(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, wefterr.New(wefterr.KindInvalidInput,
			"unknown ranking profile %q", name)
	}
	return p, nil
}

// ProfileNames lists the built-in profile names.
func ProfileNames() []string {
	return []string{"balanced", "quality", "recent", "similarity"}
}

// RecencyScore maps a message age onto (0, 1] with exponential decay:
// one half-life halves the score. Clock skew can put messages in the
// future; those clamp to 1. Ages beyond 100 half-lives clamp to 0 so
// the exponent cannot underflow.
func RecencyScore(age time.Duration, halfLifeHours float64) float64 {
	if age <= 0 {
		return 1
	}
	if halfLifeHours <= 0 {
		return 1
	}
	ratio := age.Hours() / halfLifeHours
	if ratio >= 100 {
		return 0
	}
	return math.Exp(-math.Ln2 * ratio)
}

// Score combines the three signals under the profile's weights,
// normalized so every profile scores on the same [0, 1] scale.
func (p Profile) Score(similarity, confidence, recency float64) float64 {
	total := p.WSim + p.WConf + p.WDec
	if total == 0 {
		return similarity
	}
	return (p.WSim*similarity + p.WConf*confidence + p.WDec*recency) / total
}
