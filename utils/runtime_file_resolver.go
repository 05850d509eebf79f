package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileResolver finds runtime files such as templates in a list of
// directories: the entries of a colon separated search path, then the
// working directory, then the directory of the executable.
type FileResolver struct {
	SearchDirs []string

	mu       sync.Mutex
	resolved map[string]string
}

func NewFileResolver(searchPath string) *FileResolver {
	resolver := &FileResolver{
		resolved: make(map[string]string),
	}

	for _, dir := range strings.Split(searchPath, ":") {
		dir = strings.TrimSpace(dir)
		if len(dir) == 0 {
			continue
		}
		resolver.SearchDirs = append(resolver.SearchDirs, dir)
	}

	cwd, err := os.Getwd()
	if err == nil {
		resolver.SearchDirs = append(resolver.SearchDirs, cwd)
	} else {
		log.Printf("Failed to get CWD: %v", err)
	}

	resolver.SearchDirs = append(resolver.SearchDirs, filepath.Dir(os.Args[0]))
	return resolver
}

// Resolve returns the first existing path for name. Absolute names are
// only checked for existence. Successful lookups are remembered.
func (r *FileResolver) Resolve(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, found := r.resolved[name]; found {
		return p, nil
	}

	if filepath.IsAbs(name) {
		if err := checkFile(name); err != nil {
			return "", err
		}
		r.resolved[name] = name
		return name, nil
	}

	for _, dir := range r.SearchDirs {
		p := filepath.Clean(filepath.Join(dir, name))
		if checkFile(p) == nil {
			r.resolved[name] = p
			return p, nil
		}
	}
	return "", fmt.Errorf("Failed to resolve %v in %v", name, r.SearchDirs)
}

// TemplateDir locates the directory holding the describe template.
func (r *FileResolver) TemplateDir() (string, error) {
	p, err := r.Resolve(filepath.Join("templates", describeTemplate))
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

func checkFile(filePath string) error {
	_, err := os.Stat(filePath)
	return err
}
