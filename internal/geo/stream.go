package geo

import (
	"context"
	"fmt"
	"iter"
	"log"
	"path/filepath"
	"sort"
)

// Stream yields the GeoJSON features of every shapefile archive matching a
// glob pattern, one archive at a time.
type Stream struct {
	Projection string
	Converter  *Converter
	Workspaces *Workspaces
	Logger     *log.Logger

	// ContinueOnError reports a failing archive to OnFileError and moves on
	// to the next match instead of ending the sequence.
	ContinueOnError bool
	OnFileError     func(path string, err error)

	// OnArchive, if set, is called with each matched path before it is
	// processed. Features yielded afterwards come from that path.
	OnArchive func(path string)
}

// Features returns a lazy sequence over all features of all archives
// matching pattern, in lexical path order and document order.
//
// Nothing is cached: every call globs again and re-extracts and re-converts
// each archive. Iteration stops at the first error, which is yielded once,
// unless ContinueOnError is set. Each archive's workspace is removed before
// the next archive is opened, including when the caller breaks early.
func (s *Stream) Features(ctx context.Context, pattern string) iter.Seq2[Feature, error] {
	return func(yield func(Feature, error) bool) {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			yield(nil, fmt.Errorf("glob %q: %w", pattern, err))
			return
		}
		sort.Strings(paths)

		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			cont, err := s.archive(ctx, path, yield)
			if !cont {
				return
			}
			if err == nil {
				continue
			}
			if !s.ContinueOnError {
				yield(nil, err)
				return
			}
			s.logger().Printf("shapefile: skipping %s: %v", path, err)
			if s.OnFileError != nil {
				s.OnFileError(path, err)
			}
		}
	}
}

// archive processes one matched file. cont is false once the consumer has
// stopped; err is the failure for this file, not yet reported.
func (s *Stream) archive(ctx context.Context, path string, yield func(Feature, error) bool) (cont bool, err error) {
	s.logger().Printf("parsing %s", path)
	if s.OnArchive != nil {
		s.OnArchive(path)
	}

	conv := s.converter()
	if _, err := conv.CheckTool(); err != nil {
		return true, err
	}

	ws, err := s.workspaces().Acquire(ctx, path)
	if err != nil {
		return true, err
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			s.logger().Printf("shapefile: remove workspace %s: %v", ws.Dir, rerr)
		}
	}()

	doc, err := conv.Convert(ctx, ws.Dir, s.Projection)
	if err != nil {
		return true, err
	}
	fc, err := ReadFeatureCollection(doc)
	if err != nil {
		return true, err
	}

	for _, f := range fc.Features {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if !yield(f, nil) {
			return false, nil
		}
	}
	return true, nil
}

// defaultConverter is shared by streams without their own, so the
// conversion bound still holds across them.
var defaultConverter = &Converter{}

func (s *Stream) converter() *Converter {
	if s.Converter != nil {
		return s.Converter
	}
	return defaultConverter
}

func (s *Stream) workspaces() *Workspaces {
	if s.Workspaces != nil {
		return s.Workspaces
	}
	return &Workspaces{}
}

func (s *Stream) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}
