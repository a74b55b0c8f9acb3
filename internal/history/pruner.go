package history

import (
	"log"
	"os"
	"path/filepath"
	"sort"
)

// PruneStats reports what a pruning pass touched.
type PruneStats struct {
	DirsTouched int
	Removed     int
}

// Prune keeps the keepLast newest entries under root and deletes the rest,
// files and whole directories alike. Individual deletion failures are
// logged and swallowed; a missing root is a no-op.
func Prune(root string, keepLast int) (PruneStats, error) {
	if keepLast < 0 {
		keepLast = 0
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return PruneStats{}, nil
		}
		return PruneStats{}, err
	}
	type aged struct {
		name    string
		modTime int64
	}
	list := make([]aged, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		list = append(list, aged{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].modTime > list[j].modTime })

	stats := PruneStats{DirsTouched: 1}
	for _, e := range list[min(keepLast, len(list)):] {
		path := filepath.Join(root, e.name)
		if err := os.RemoveAll(path); err != nil {
			log.Printf("history: cannot remove %s: %v", path, err)
			continue
		}
		stats.Removed++
	}
	return stats, nil
}

// PruneAll prunes each root in turn, accumulating stats.
func PruneAll(roots []string, keepLast int) (PruneStats, error) {
	var total PruneStats
	for _, root := range roots {
		stats, err := Prune(root, keepLast)
		if err != nil {
			return total, err
		}
		total.DirsTouched += stats.DirsTouched
		total.Removed += stats.Removed
	}
	return total, nil
}
