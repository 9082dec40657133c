package crawler

import (
	"context"
	"fmt"
	"strings"
)

// ValidateUnit rejects units that cannot be used as a checkpoint key.
func ValidateUnit(unit SearchUnit) error {
	s := string(unit)
	switch {
	case strings.TrimSpace(s) == "":
		return fmt.Errorf("%w: blank", ErrInvalidUnit)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidUnit, s)
	case s == "." || s == "..":
		return fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	return nil
}

// GenerateUnits expands base names into the ordered unit list: every base name
// first, then one folded variant for each name that folding changes. Names are
// trimmed and duplicates keep their first position.
func GenerateUnits(names []string, foldVariants bool) ([]SearchUnit, error) {
	seen := make(map[SearchUnit]struct{}, len(names)*2)
	base := make([]SearchUnit, 0, len(names))
	for _, name := range names {
		unit := SearchUnit(strings.TrimSpace(name))
		if unit == "" {
			continue
		}
		if err := ValidateUnit(unit); err != nil {
			return nil, err
		}
		if _, dup := seen[unit]; dup {
			continue
		}
		seen[unit] = struct{}{}
		base = append(base, unit)
	}

	units := append([]SearchUnit(nil), base...)
	if !foldVariants {
		return units, nil
	}
	for _, unit := range base {
		folded := FoldUnit(unit)
		if folded == unit {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		units = append(units, folded)
	}
	return units, nil
}

// PartitionUnits asks the store about every unit once and splits them into
// done, pending, and corrupt.
func PartitionUnits(ctx context.Context, store CheckpointStore, units []SearchUnit) (Partition, error) {
	var p Partition
	for _, unit := range units {
		ok, err := store.Exists(ctx, unit)
		switch {
		case err == nil && ok:
			p.Done = append(p.Done, unit)
		case err == nil:
			p.Pending = append(p.Pending, unit)
		case IsCorrupt(err):
			p.Corrupt = append(p.Corrupt, unit)
		default:
			return Partition{}, fmt.Errorf("check checkpoint for %q: %w", unit, err)
		}
	}
	return p, nil
}

// DefaultNames is the built-in list of base names.
var DefaultNames = []string{
	"Ahmet", "Mehmet", "Mustafa", "Ali", "Huseyin",
	"Hasan", "Ibrahim", "Yusuf", "Emre", "Burak",
	"Onur", "Kerem", "Can", "Efe", "Omer",
	"Serkan", "Kaan", "Mert", "Enes", "Arda",
	"Cem", "Taha", "Hakan", "Sinan", "Baris",
	"Ayse", "Fatma", "Zeynep", "Elif", "Hatice",
	"Emine", "Aylin", "Ceren", "Busra", "Irem",
	"Ebru", "Hande", "Duygu", "Selin", "Deniz",
	"Esra", "Gamze", "Yasemin", "Sibel", "Gozde",
	"Melike", "Tugba", "Dilara", "Sevgi", "Seyma",
}
