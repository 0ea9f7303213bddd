package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/missing-finder/internal/constants"
	"github.com/kozaktomas/missing-finder/internal/finder"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"
)

var searchCmd = &cobra.Command{
	Use:   "search [photo]",
	Short: "Match a photo (or a directory of photos) against open cases",
	Long: `Match photos of found people against every open case.

A single photo prints its ranked matches. With --dir every image in the
directory is matched concurrently and a summary of files with matches is
printed.

Examples:
  missing-finder search found.jpg
  missing-finder search found.jpg --threshold 0.5 --limit 5
  missing-finder search --dir ./shelter-intake --concurrency 8 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("dir", "", "Directory of photos to match")
	searchCmd.Flags().Float64("threshold", -1, "Minimum similarity (default MATCH_DEFAULT_THRESHOLD)")
	searchCmd.Flags().Int("limit", constants.DefaultMatchLimit, "Maximum matches per photo (0 = all)")
	searchCmd.Flags().Int("nearest", 0, "Return the k nearest cases regardless of threshold")
	searchCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel workers for --dir")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

// PhotoSearchResult is the outcome of matching one photo.
type PhotoSearchResult struct {
	File    string         `json:"file"`
	Matches []finder.Match `json:"matches"`
	Error   string         `json:"error,omitempty"`
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif"}

// listImages returns the image files directly inside dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

type photoMatcher func(ctx context.Context, imageData []byte) ([]finder.Match, error)

func newPhotoMatcher(svc *finder.Service, threshold float64, limit, nearest int) photoMatcher {
	return func(ctx context.Context, imageData []byte) ([]finder.Match, error) {
		if nearest > 0 {
			return svc.NearestByPhoto(ctx, imageData, nearest)
		}
		matches, err := svc.SearchByPhoto(ctx, imageData, threshold)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(matches) > limit {
			matches = matches[:limit]
		}
		return matches, nil
	}
}

func matchFile(ctx context.Context, match photoMatcher, path string) PhotoSearchResult {
	res := PhotoSearchResult{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Matches, err = match(ctx, data)
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// matchFiles matches files with at most concurrency photos in flight.
// Results keep the order of files.
func matchFiles(ctx context.Context, match photoMatcher, files []string, concurrency int, bar *progressbar.ProgressBar) []PhotoSearchResult {
	results := make([]PhotoSearchResult, len(files))
	sem := semaphore.NewWeighted(int64(max(concurrency, 1)))
	var wg sync.WaitGroup

	for i, path := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = PhotoSearchResult{File: path, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = matchFile(ctx, match, path)
			if bar != nil {
				bar.Add(1) //nolint:errcheck // progress output only
			}
		}()
	}
	wg.Wait()
	return results
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")

	if (dir == "") == (len(args) == 0) {
		return fmt.Errorf("pass either a photo or --dir")
	}

	var files []string
	if dir != "" {
		var err error
		if files, err = listImages(dir); err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No images found")
			return nil
		}
	} else {
		files = args
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold < 0 {
		threshold = a.cfg.Match.DefaultThreshold
	}
	match := newPhotoMatcher(a.service, threshold, mustGetInt(cmd, "limit"), mustGetInt(cmd, "nearest"))

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(files) > 1 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Matching photos"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}
	results := matchFiles(ctx, match, files, mustGetInt(cmd, "concurrency"), bar)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if bar != nil {
		fmt.Println()
	}
	printSearchResults(results, threshold)
	return nil
}

func printSearchResults(results []PhotoSearchResult, threshold float64) {
	var withMatches, failed int
	for _, r := range results {
		switch {
		case r.Error != "":
			failed++
			fmt.Printf("%s: error: %s\n", r.File, r.Error)
		case len(r.Matches) == 0:
			if len(results) == 1 {
				fmt.Printf("No open case above similarity %.2f\n", threshold)
			}
		default:
			withMatches++
			fmt.Printf("%s:\n", r.File)
			for _, m := range r.Matches {
				fmt.Printf("  %.3f  %s  %s (age %d, %s)  contact %s %s\n",
					m.Score, m.Case.ID, m.Case.Name, m.Case.Age, m.Case.Location,
					m.Case.Contact.Name, m.Case.Contact.Number)
			}
		}
	}
	if len(results) > 1 {
		fmt.Printf("\nPhotos: %d, with matches: %d, errors: %d\n", len(results), withMatches, failed)
	}
}
