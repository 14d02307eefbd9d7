package vapoursynth

import (
	"fmt"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// Version is a negotiated API version.
type Version struct {
	Major int
	Minor int
}

// ParseVersion decodes the engine's packed major<<16|minor form.
func ParseVersion(packed int) Version {
	major, minor := abi.SplitVersion(packed)
	return Version{Major: major, Minor: minor}
}

// Packed returns the engine's packed form.
func (v Version) Packed() int { return abi.MakeVersion(v.Major, v.Minor) }

// AtLeast reports whether v is the same as or newer than o.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	return v.Minor >= o.Minor
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Feature identifies an optional part of the engine API.
type Feature uint8

const (
	FeatureVideo             Feature = iota // Video nodes, frames and filters
	FeatureAudio                            // Audio nodes, frames and filters
	FeatureNodeIntrospection                // Node name, filter mode and dependency listing
	FeatureNodeTiming                       // Per-node processing time accounting
	FeatureCacheClearing                    // Explicit node and core cache clearing
	FeatureScript                           // Script evaluation environment
	featureCount
)

// Features is a bitmask of available features.
type Features uint32

// Has returns true if every feature in fs is present.
func (f Features) Has(fs ...Feature) bool {
	for _, x := range fs {
		if f&(1<<x) == 0 {
			return false
		}
	}
	return true
}

func (f Features) with(x Feature) Features { return f | 1<<x }

// featureMeta contains static metadata about a feature.
type featureMeta struct {
	Name string
	Min  Version
}

// Static metadata table indexed by Feature.
var featureInfo = [featureCount]featureMeta{
	FeatureVideo:             {"video", Version{4, 0}},
	FeatureAudio:             {"audio", Version{4, 0}},
	FeatureNodeIntrospection: {"node introspection", Version{4, 1}},
	FeatureNodeTiming:        {"node timing", Version{4, 1}},
	FeatureCacheClearing:     {"cache clearing", Version{4, 1}},
	FeatureScript:            {"script environment", Version{4, 0}},
}

func (f Feature) String() string {
	if f >= featureCount {
		return "unknown"
	}
	return featureInfo[f].Name
}

// MinVersion returns the first API version that carries f.
func (f Feature) MinVersion() Version {
	if f >= featureCount {
		return Version{}
	}
	return featureInfo[f].Min
}

// featuresFor derives the capability set of a negotiated version. The script
// feature also depends on whether a script library was found.
func featuresFor(v Version, script bool) Features {
	var fs Features
	for f := Feature(0); f < featureCount; f++ {
		if f == FeatureScript && !script {
			continue
		}
		if v.AtLeast(featureInfo[f].Min) {
			fs = fs.with(f)
		}
	}
	return fs
}
