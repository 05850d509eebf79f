// Package crawl finds and loads input tiles stored as JSON documents.
package crawl

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	goeval "github.com/edisonguo/govaluate"
	"github.com/nci/evalpix/processor"
)

const DefaultMaxErrors = 1000

// ParsePatternExpression compiles a file filter such as
// `path =~ "T55HFA" && type == ".json"`. Only the variables path and
// type (the file extension) may be used. An empty pattern gives nil,
// which matches every JSON file.
func ParsePatternExpression(pattern string) (*goeval.EvaluableExpression, error) {
	if len(strings.TrimSpace(pattern)) == 0 {
		return nil, nil
	}

	expr, err := goeval.NewEvaluableExpression(pattern)
	if err != nil {
		return nil, err
	}

	validVariables := map[string]struct{}{"path": struct{}{}, "type": struct{}{}}
	for _, token := range expr.Tokens() {
		if token.Kind == goeval.VARIABLE {
			varName, ok := token.Value.(string)
			if !ok {
				return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
			}
			if _, found := validVariables[varName]; !found {
				return nil, fmt.Errorf("variable %v is not supported. Valid variables are %v", varName, validVariables)
			}
		}
	}
	return expr, nil
}

func matches(expr *goeval.EvaluableExpression, path string) (bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if expr == nil {
		return ext == ".json", nil
	}

	res, err := expr.Evaluate(map[string]interface{}{"path": path, "type": ext})
	if err != nil {
		return false, err
	}
	ok, isBool := res.(bool)
	if !isBool {
		return false, fmt.Errorf("pattern must evaluate to a boolean, got %v", res)
	}
	return ok, nil
}

// FindTiles lists the tile files under root accepted by pattern, in
// lexical order. A root naming a file returns just that file.
func FindTiles(root string, pattern string) ([]string, error) {
	expr, err := ParsePatternExpression(pattern)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		ok, err := matches(expr, path)
		if err != nil {
			return fmt.Errorf("%s: %v", path, err)
		}
		if ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// ReadTiles decodes one file, which holds either a single tile or an
// array of tiles.
func ReadTiles(path string) ([]*processor.BandTile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var tiles []*processor.BandTile
		if err := json.Unmarshal(data, &tiles); err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		return tiles, nil
	}

	tile := &processor.BandTile{}
	if err := json.Unmarshal(data, tile); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return []*processor.BandTile{tile}, nil
}

// LoadTiles reads every path with at most conc files open at once and
// returns the tiles in path order. Errors are collected rather than
// stopping the load.
func LoadTiles(paths []string, conc int) ([]*processor.BandTile, error) {
	results := make([][]*processor.BandTile, len(paths))
	errChan := make(chan error, len(paths))

	var wg sync.WaitGroup
	cLimiter := processor.NewConcLimiter(conc)
	for i, p := range paths {
		wg.Add(1)
		cLimiter.Increase()
		go func(i int, p string) {
			defer wg.Done()
			defer cLimiter.Decrease()
			tiles, err := ReadTiles(p)
			if err != nil {
				errChan <- err
				return
			}
			results[i] = tiles
		}(i, p)
	}
	wg.Wait()
	close(errChan)

	var errors []string
	for err := range errChan {
		errors = append(errors, err.Error())
		if len(errors) >= DefaultMaxErrors {
			errors = append(errors, " ... too many errors")
			break
		}
	}
	if len(errors) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(errors, "\n"))
	}

	var tiles []*processor.BandTile
	for _, r := range results {
		tiles = append(tiles, r...)
	}
	return tiles, nil
}
