package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sensorstd/pkg/contracts/domain"
)

// WorkUnit is one independent conversion task: all raw files found for
// one participant and one modality. Units never share state.
type WorkUnit struct {
	ID            string
	ParticipantID string
	Modality      domain.Modality
	Files         []domain.RawFileRef
}

// rawExtensions maps each modality to the file extensions its device
// family exports. Anything else in the folder (plots, notes, vendor
// sidecar files) is ignored during discovery.
var rawExtensions = map[domain.Modality]map[string]bool{
	domain.ModalityEnvSensor:      {".csv": true},
	domain.ModalityECG:            {".xml": true},
	domain.ModalityFitnessTracker: {".json": true},
}

// DiscoverUnits walks the data root and builds one work unit per
// (participant, modality) directory pair containing at least one raw
// file. The tree is expected as <root>/<participant>/<modality>/files.
// Traversal and file order are lexicographic so discovery order, and
// with it merge tie-breaking, is reproducible across runs.
func DiscoverUnits(root string, modalities []domain.Modality) ([]WorkUnit, error) {
	participants, err := sortedSubdirs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read data root %s: %w", root, err)
	}

	wanted := make(map[domain.Modality]bool, len(modalities))
	for _, m := range modalities {
		wanted[m] = true
	}

	now := time.Now().UTC()
	var units []WorkUnit
	for _, participant := range participants {
		modalityDirs, err := sortedSubdirs(filepath.Join(root, participant))
		if err != nil {
			continue
		}
		for _, modDir := range modalityDirs {
			modality := domain.Modality(modDir)
			if !wanted[modality] {
				continue
			}
			files, err := discoverFiles(filepath.Join(root, participant, modDir), modality, now)
			if err != nil || len(files) == 0 {
				continue
			}
			units = append(units, WorkUnit{
				ID:            uuid.New().String(),
				ParticipantID: participant,
				Modality:      modality,
				Files:         files,
			})
		}
	}
	return units, nil
}

func discoverFiles(dir string, modality domain.Modality, discoveredAt time.Time) ([]domain.RawFileRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	exts := rawExtensions[modality]
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if exts != nil && !exts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make([]domain.RawFileRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, domain.RawFileRef{
			Path:         filepath.Join(dir, name),
			Modality:     modality,
			DiscoveredAt: discoveredAt,
		})
	}
	return refs, nil
}

func sortedSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
