package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"docuchat/api"
)

// ScanDocuments concurrently scans a root directory for uploadable documents
// and returns their paths sorted. A worker pool lists each directory and keeps
// files with an accepted extension.
func ScanDocuments(rootPath string) ([]string, error) {
	const workerCount = 8
	jobs := make(chan string, workerCount*4)
	results := make(chan string, workerCount*4)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dir := range jobs {
				for _, doc := range documentsIn(dir) {
					results <- doc
				}
			}
		}()
	}

	// Collect concurrently so workers never block on a full results channel
	var docs []string
	collected := make(chan struct{})
	go func() {
		seen := make(map[string]struct{})
		for p := range results {
			if _, exists := seen[p]; exists {
				continue
			}
			seen[p] = struct{}{}
			docs = append(docs, p)
		}
		close(collected)
	}()

	ignore := map[string]struct{}{
		"node_modules": {},
		"vendor":       {},
		"__pycache__":  {},
	}

	walkErr := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != rootPath && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if _, skip := ignore[name]; skip {
			return filepath.SkipDir
		}
		jobs <- path
		return nil
	})

	close(jobs)
	wg.Wait()
	close(results)
	<-collected

	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(docs)
	return docs, nil
}

// documentsIn lists the accepted documents directly inside dir
func documentsIn(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && api.AllowedExtension(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}
