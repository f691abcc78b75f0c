package fs

import "fmt"

// Checker verifies the on-disk invariants of a filesystem: every sector
// reachable from a file header tree is marked allocated, no sector is
// reachable twice, directory names are unique, and each header's structure
// matches its size.
type Checker struct {
	fsys *FileSystem
}

// NewChecker returns a checker over fsys.
func NewChecker(fsys *FileSystem) *Checker {
	return &Checker{fsys: fsys}
}

// Check walks the whole filesystem and returns every violation found. A
// nil result means the disk is consistent.
func (c *Checker) Check() ([]error, error) {
	freeMap, err := c.fsys.fetchBitmap()
	if err != nil {
		return nil, err
	}

	var violations []error
	owner := make(map[int]string) // sector -> path of the tree that claims it

	claim := func(sector int, path string) {
		if prev, ok := owner[sector]; ok {
			violations = append(violations,
				fmt.Errorf("sector %d reachable from both %s and %s", sector, prev, path))
			return
		}
		owner[sector] = path
		if !freeMap.Test(sector) {
			violations = append(violations,
				fmt.Errorf("sector %d reachable from %s but clear in the bitmap", sector, path))
		}
	}

	claim(FreeMapSector, "free map")
	claim(DirectorySector, "/")

	checkTree := func(sector int, path string) {
		hdr := &FileHeader{}
		if err := hdr.FetchFrom(c.fsys.dev, sector); err != nil {
			violations = append(violations, fmt.Errorf("%s: %v", path, err))
			return
		}
		if errs := checkHeaderShape(hdr, path); len(errs) > 0 {
			violations = append(violations, errs...)
		}
		sectors, err := hdr.Sectors(c.fsys.dev)
		if err != nil {
			violations = append(violations, fmt.Errorf("%s: %v", path, err))
			return
		}
		for _, s := range sectors {
			claim(s, path)
		}
	}

	checkTree(FreeMapSector, "free map")
	checkTree(DirectorySector, "/")

	var walk func(sector int, prefix string)
	walk = func(sector int, prefix string) {
		dir, err := fetchDirectory(c.fsys.dev, sector)
		if err != nil {
			violations = append(violations, fmt.Errorf("%s: %v", prefix, err))
			return
		}
		seen := make(map[string]bool)
		for _, e := range dir.Entries() {
			name := e.NameString()
			path := prefix + name
			if seen[name] {
				violations = append(violations,
					fmt.Errorf("%s: duplicate name %q", prefix, name))
			}
			seen[name] = true

			claim(int(e.Sector), path)
			checkTree(int(e.Sector), path)
			if e.IsDir {
				walk(int(e.Sector), path+"/")
			}
		}
	}
	walk(DirectorySector, "/")

	// Anything allocated but unreachable is leaked space.
	for i := 0; i < freeMap.NumBits(); i++ {
		if freeMap.Test(i) {
			if _, ok := owner[i]; !ok {
				violations = append(violations,
					fmt.Errorf("sector %d allocated but unreachable", i))
			}
		}
	}

	return violations, nil
}

// checkHeaderShape verifies that a header's slot count and child spans are
// the ones its size dictates.
func checkHeaderShape(hdr *FileHeader, path string) []error {
	var violations []error

	size := int(hdr.numBytes)
	if size < 0 {
		return []error{fmt.Errorf("%s: negative size %d", path, size)}
	}
	if size > MaxFileSize {
		return []error{fmt.Errorf("%s: size %d exceeds maximum", path, size)}
	}

	wantSlots := divRoundUp(size, childSpan(size))
	if int(hdr.numSectors) != wantSlots {
		violations = append(violations,
			fmt.Errorf("%s: %d slots for %d bytes, want %d", path, hdr.numSectors, size, wantSlots))
	}
	return violations
}
