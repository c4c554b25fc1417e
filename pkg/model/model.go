// Package model defines the miner's durable domain records: crates and
// their versions, the dependencies a version declares, tasks and their
// states, and the results tasks produce. Every type here is an owned
// value (no borrowed/lifetime-parameterized views) so it can cross
// goroutine and storage boundaries without ceremony.
package model

import (
	"sort"
	"time"
)

// Crate is the top-level record for a published package name: every
// version ever seen, kept sorted ascending and duplicate-free.
type Crate struct {
	Versions []string `json:"versions"`
}

// MergeVersion inserts v if absent, replaces it in place if already
// present, and re-sorts. This is the crate table's merge policy.
func (c *Crate) MergeVersion(v string) {
	for i, existing := range c.Versions {
		if existing == v {
			c.Versions[i] = v
			sort.Strings(c.Versions)
			return
		}
	}
	c.Versions = append(c.Versions, v)
	sort.Strings(c.Versions)
}

// ChangeKind distinguishes a crate-version publish from a yank.
type ChangeKind uint8

const (
	Added ChangeKind = iota
	Yanked
)

func (k ChangeKind) String() string {
	if k == Yanked {
		return "yanked"
	}
	return "added"
}

// Dependency is a single dependency declared by a CrateVersion.
type Dependency struct {
	Name            string   `json:"name"`
	RequiredVersion string   `json:"required_version"`
	Features        []string `json:"features,omitempty"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target,omitempty"`
	Kind            *string  `json:"kind,omitempty"`
	Package         *string  `json:"package,omitempty"`
}

// CrateVersion is immutable once written for a given (name, version).
type CrateVersion struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Kind         ChangeKind          `json:"kind"`
	Checksum     string              `json:"checksum"`
	Features     map[string][]string `json:"features,omitempty"`
	Dependencies []Dependency        `json:"dependencies,omitempty"`
}

// Counts tracks element counts of various kinds, summed additively.
type Counts struct {
	Crates        uint32 `json:"crates"`
	CrateVersions uint64 `json:"crate_versions"`
}

// Durations tracks wall-clock time spent on various kinds of work,
// summed additively.
type Durations struct {
	FetchCrateVersions time.Duration `json:"fetch_crate_versions"`
}

// Context is the per-day accumulator stored in the meta table.
type Context struct {
	Counts    Counts    `json:"counts"`
	Durations Durations `json:"durations"`
}

// Add returns the field-wise sum of c and other.
func (c Context) Add(other Context) Context {
	return Context{
		Counts: Counts{
			Crates:        c.Counts.Crates + other.Counts.Crates,
			CrateVersions: c.Counts.CrateVersions + other.Counts.CrateVersions,
		},
		Durations: Durations{
			FetchCrateVersions: c.Durations.FetchCrateVersions + other.Durations.FetchCrateVersions,
		},
	}
}

// TarHeader is the subset of a tar entry's header the miner keeps.
type TarHeader struct {
	// Path is not necessarily UTF-8, so it's kept as raw bytes.
	Path      []byte `json:"path"`
	Size      uint64 `json:"size"`
	EntryType uint8  `json:"entry_type"`
}
