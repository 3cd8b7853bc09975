// Package seeder installs userscripts found in a local directory at startup.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
)

// DefaultPattern selects userscripts anywhere below the directory
const DefaultPattern = "**/*.user.js"

// Report counts what a seeding pass did
type Report struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Seeder loads script files through the installer
type Seeder struct {
	installer *installer.Installer
	dir       string
	pattern   string
	log       *logging.Logger
}

// New creates a seeder for dir
func New(inst *installer.Installer, dir string, log *logging.Logger) *Seeder {
	return &Seeder{
		installer: inst,
		dir:       dir,
		pattern:   DefaultPattern,
		log:       logging.OrNop(log).Component("seeder"),
	}
}

// Seed installs every matching file in lexical path order. Files that fail
// are logged and counted; they never abort the pass.
func (s *Seeder) Seed(ctx context.Context) (Report, error) {
	var report Report

	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		s.log.Warn("Scripts directory not found", zap.String("dir", s.dir))
		return report, nil
	}

	paths, err := s.scan(ctx)
	if err != nil {
		return report, err
	}
	s.log.Info("Seeding userscripts", zap.String("dir", s.dir), zap.Int("files", len(paths)))

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.installFile(ctx, p)
		if err != nil {
			s.log.Warn("Failed to load script file", zap.String("path", p), zap.Error(err))
			report.Failed++
			continue
		}
		switch res.Outcome {
		case installer.Inserted:
			report.Inserted++
		case installer.UpdateApplied:
			report.Updated++
		case installer.DuplicateNoOp, installer.StaleVersion:
			report.Unchanged++
		default:
			s.log.Warn("Failed to load script file", zap.String("path", p), zap.Stringer("outcome", res.Outcome), zap.Error(res.Err))
			report.Failed++
		}
	}

	s.log.Info("Seeding complete",
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *Seeder) scan(ctx context.Context) ([]string, error) {
	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(s.pattern, filepath.ToSlash(rel)); ok {
			mu.Lock()
			paths = append(paths, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Seeder) installFile(ctx context.Context, path string) (installer.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return installer.Result{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return installer.Result{}, err
	}
	src := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return s.installer.Install(ctx, installer.Request{URL: src.String(), Source: data}), nil
}
