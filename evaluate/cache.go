package evaluate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// CachedGenerator stores generated question sets on disk keyed by the job
// and resume text, so repeated runs for the same pair skip the model call.
type CachedGenerator struct {
	dir  string
	next Generator
	log  *slog.Logger
}

// NewCachedGenerator wraps next with a cache rooted at dir.
func NewCachedGenerator(dir string, next Generator, log *slog.Logger) *CachedGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &CachedGenerator{dir: dir, next: next, log: log}
}

// ContentHash is the cache key for a job and resume pair.
func ContentHash(job, resume string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(job) + "|||" + strings.TrimSpace(resume)))
	return hex.EncodeToString(sum[:])
}

// Path returns the cache file used for a job and resume pair.
func (g *CachedGenerator) Path(job, resume string) string {
	return filepath.Join(g.dir, "questions_"+ContentHash(job, resume)+".json")
}

func (g *CachedGenerator) GenerateQuestions(ctx context.Context, job, resume string) (QuestionSet, error) {
	path := g.Path(job, resume)

	if qs, err := g.load(path); err == nil {
		g.log.Info("Using cached questions", "path", path)
		return qs, nil
	} else if !os.IsNotExist(err) {
		g.log.Warn("Failed to load cached questions", "path", path, "error", err)
	}

	qs, err := g.next.GenerateQuestions(ctx, job, resume)
	if err != nil {
		return QuestionSet{}, err
	}

	if err := g.save(path, qs); err != nil {
		g.log.Warn("Failed to cache questions", "path", path, "error", err)
	} else {
		g.log.Info("Questions cached", "path", path)
	}
	return qs, nil
}

func (g *CachedGenerator) load(path string) (QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QuestionSet{}, err
	}
	var qs QuestionSet
	if err := json.Unmarshal(data, &qs); err != nil {
		return QuestionSet{}, fmt.Errorf("failed to decode cache file: %w", err)
	}
	if err := qs.Validate(); err != nil {
		return QuestionSet{}, err
	}
	return qs, nil
}

func (g *CachedGenerator) save(path string, qs QuestionSet) error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.MarshalIndent(qs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp, path)
}

// QuestionsOrFallback calls g and substitutes FallbackQuestions on any
// failure. fromModel is false when the fallback was used.
func QuestionsOrFallback(ctx context.Context, g Generator, job, resume string, log *slog.Logger) (qs QuestionSet, fromModel bool) {
	if log == nil {
		log = slog.Default()
	}
	if g == nil {
		return FallbackQuestions(), false
	}
	qs, err := g.GenerateQuestions(ctx, job, resume)
	if err != nil {
		log.Warn("Failed to generate questions, using fallback set", "error", err)
		return FallbackQuestions(), false
	}
	return qs, true
}
