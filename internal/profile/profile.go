// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package profile holds the locally persisted installation state reported to and updated by the update service.
package profile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mj "github.com/modhost/modhost/internal/json"
	"github.com/modhost/modhost/internal/update"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/mod/semver"
)

const FileName = "profile.json"

const metadataSchemaUrl = "metadata.schema.json"

//go:embed metadata.schema.json
var metadataSchema string

var ErrInvalidMetadata = errors.New("invalid update metadata")

type Mod struct {
	Version       string `json:"version"`
	LatestVersion string `json:"latestVersion,omitempty"`
	// Changed marks mods installed, updated or removed since the last report.
	Changed bool `json:"changed,omitempty"`
	Removed bool `json:"removed,omitempty"`
}

type data struct {
	InstallID        string         `json:"installId"`
	AppVersion       string         `json:"appVersion"`
	AppLatestVersion string         `json:"appLatestVersion,omitempty"`
	AppChanged       bool           `json:"appChanged,omitempty"`
	LastCheck        *time.Time     `json:"lastCheck,omitempty"`
	Mods             map[string]Mod `json:"mods,omitempty"`
}

type usageReport struct {
	InstallID  string                 `json:"installId"`
	AppVersion string                 `json:"appVersion"`
	Mods       map[string]modActivity `json:"mods,omitempty"`
}

type modActivity struct {
	Version string `json:"version,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

type metadata struct {
	App struct {
		Version string `json:"version"`
	} `json:"app"`
	Mods map[string]struct {
		Version string `json:"version"`
	} `json:"mods"`
}

// Profile is safe for concurrent use; it is persisted on every change.
//
// Every local change gets a generation number. A usage snapshot covers all changes up to the current
// generation; Merge only clears the changes covered by the last snapshot, later ones are reported next time.
type Profile struct {
	path   string
	schema *jsonschema.Schema
	now    func() time.Time

	mu   sync.Mutex
	data data

	generation     uint64
	appGeneration  uint64
	modGenerations map[string]uint64
	// reported is the generation covered by the last snapshot, nil before the first one
	reported *uint64
}

// Load reads the profile at the given path. A missing file yields a fresh profile with a new install id.
func Load(path string) (*Profile, error) {
	schema, err := jsonschema.CompileString(metadataSchemaUrl, metadataSchema)
	if err != nil {
		return nil, fmt.Errorf("could not compile metadata schema: %w", err)
	}

	profile := &Profile{path: path, schema: schema, now: time.Now, modGenerations: map[string]uint64{}}

	stored, err := mj.FromFile[data](path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("Profile not existing, creating it", "path", path)
		profile.data.InstallID = uuid.NewString()
		return profile, profile.save()
	case err != nil:
		return nil, fmt.Errorf("could not parse profile: %w", err)
	}
	profile.data = *stored

	if _, err := uuid.Parse(profile.data.InstallID); err != nil {
		slog.Warn("Invalid install id in profile, generating a new one", "path", path, "error", err)
		profile.data.InstallID = uuid.NewString()
		return profile, profile.save()
	}
	return profile, nil
}

func (p *Profile) InstallID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.data.InstallID
}

func (p *Profile) AppVersion() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.data.AppVersion
}

func (p *Profile) LatestAppVersion() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.data.AppLatestVersion
}

// Mods returns a copy of the installed mods, removed mods awaiting report excluded.
func (p *Profile) Mods() map[string]Mod {
	p.mu.Lock()
	defer p.mu.Unlock()

	mods := make(map[string]Mod, len(p.data.Mods))
	for id, mod := range p.data.Mods {
		if !mod.Removed {
			mods[id] = mod
		}
	}
	return mods
}

func (p *Profile) SetAppVersion(version string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data.AppVersion == version {
		return nil
	}
	p.data.AppVersion = version
	p.data.AppChanged = true
	p.appGeneration = p.nextGeneration()
	return p.save()
}

func (p *Profile) SetMod(id string, version string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("mod id must not be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data.Mods == nil {
		p.data.Mods = map[string]Mod{}
	}
	mod := p.data.Mods[id]
	if mod.Version == version && !mod.Removed {
		return nil
	}
	mod.Version = version
	mod.Removed = false
	mod.Changed = true
	p.data.Mods[id] = mod
	p.modGenerations[id] = p.nextGeneration()
	return p.save()
}

func (p *Profile) RemoveMod(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mod, ok := p.data.Mods[id]
	if !ok || mod.Removed {
		return nil
	}
	mod.Removed = true
	mod.Changed = true
	p.data.Mods[id] = mod
	p.modGenerations[id] = p.nextGeneration()
	return p.save()
}

func (p *Profile) nextGeneration() uint64 {
	p.generation++
	return p.generation
}

// isReported returns whether the change of the given generation was part of the last usage snapshot.
func (p *Profile) isReported(generation uint64) bool {
	return p.reported != nil && generation <= *p.reported
}

// UsageSnapshot returns the locally changed content as JSON, or nothing if there is no change to report.
func (p *Profile) UsageSnapshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reported := p.generation
	p.reported = &reported

	report := usageReport{
		InstallID:  p.data.InstallID,
		AppVersion: p.data.AppVersion,
		Mods:       map[string]modActivity{},
	}
	for id, mod := range p.data.Mods {
		if !mod.Changed {
			continue
		}
		if mod.Removed {
			report.Mods[id] = modActivity{Removed: true}
		} else {
			report.Mods[id] = modActivity{Version: mod.Version}
		}
	}

	if !p.data.AppChanged && len(report.Mods) == 0 {
		return nil, nil
	}
	return json.Marshal(report)
}

// Merge validates the update metadata, records the latest versions and reports whether any update is available.
// The changes contained in the last usage snapshot count as reported afterwards.
func (p *Profile) Merge(body []byte) (update.Status, error) {
	var content any
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&content); err != nil {
		return update.StatusUnknown, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	if err := p.schema.Validate(content); err != nil {
		return update.StatusUnknown, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	var online metadata
	if err := json.Unmarshal(body, &online); err != nil {
		return update.StatusUnknown, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	status := update.StatusNoUpdates

	p.data.AppLatestVersion = online.App.Version
	if p.isReported(p.appGeneration) {
		p.data.AppChanged = false
	}
	if isNewer(online.App.Version, p.data.AppVersion) {
		status = update.StatusUpdatesAvailable
	}

	for id, mod := range p.data.Mods {
		reported := p.isReported(p.modGenerations[id])
		if mod.Removed {
			if reported {
				delete(p.data.Mods, id)
				delete(p.modGenerations, id)
			}
			continue
		}
		if reported {
			mod.Changed = false
		}
		if latest, ok := online.Mods[id]; ok {
			mod.LatestVersion = latest.Version
			if isNewer(latest.Version, mod.Version) {
				status = update.StatusUpdatesAvailable
			}
		}
		p.data.Mods[id] = mod
	}

	now := p.now().UTC()
	p.data.LastCheck = &now

	if err := p.save(); err != nil {
		return update.StatusUnknown, err
	}

	slog.Debug("Update metadata merged", "app-latest", online.App.Version, "status", status)

	return status, nil
}

func (p *Profile) save() error {
	if err := mj.ToFile(p.path, p.data); err != nil {
		return fmt.Errorf("could not write profile: %w", err)
	}
	return nil
}

// isNewer compares dotted versions, tolerating a missing 'v' prefix. Unparsable versions are never newer.
func isNewer(candidate, current string) bool {
	c, cur := canonical(candidate), canonical(current)
	if c == "" || cur == "" {
		return false
	}
	return semver.Compare(c, cur) > 0
}

func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return semver.Canonical(version)
}
