package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/slabkit/slab/alloc"
	"github.com/joshuapare/slabkit/slab/probe"
	"github.com/joshuapare/slabkit/slab/source"
)

var (
	// ErrBadSize indicates a byte count that could not be parsed.
	ErrBadSize = errors.New("config: bad size")

	// ErrBadSource indicates an unknown or incomplete source section.
	ErrBadSource = errors.New("config: bad source")
)

// Source kinds.
const (
	SourceHeap = "heap"
	SourceMmap = "mmap"
	SourceFile = "file"
)

// File is the YAML configuration file:
//
//	allocator:
//	  page_size: 4KiB
//	  alignment: 8
//	  magazine_capacity: 0
//	  max_pages: 0
//	  checked: false
//	source:
//	  kind: mmap          # heap | mmap | file
//	  path: /tmp/pages    # file only
//	  segment_size: 256KiB
//	  full_sync: false
//	probe:
//	  pages: 101
//	  sample_size: 7
//	  group_size: 128
//	  probe_sizes: [97, 265, 347]
//	  max_probe_trials: 1031
type File struct {
	Allocator Allocator `yaml:"allocator"`
	Source    Source    `yaml:"source"`
	Probe     Probe     `yaml:"probe"`
}

// Allocator mirrors alloc.Config.
type Allocator struct {
	PageSize         Size `yaml:"page_size"`
	Alignment        int  `yaml:"alignment"`
	MagazineCapacity int  `yaml:"magazine_capacity"`
	MaxPages         int  `yaml:"max_pages"`
	Checked          bool `yaml:"checked"`
}

// Source selects the backing memory of the allocator.
type Source struct {
	Kind        string `yaml:"kind"`
	Path        string `yaml:"path,omitempty"`
	SegmentSize Size   `yaml:"segment_size"`
	FullSync    bool   `yaml:"full_sync,omitempty"`
}

// Probe mirrors probe.Params.
type Probe struct {
	Pages          int   `yaml:"pages"`
	SampleSize     int   `yaml:"sample_size"`
	GroupSize      Size  `yaml:"group_size"`
	ProbeSizes     []int `yaml:"probe_sizes"`
	MaxProbeTrials int   `yaml:"max_probe_trials"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	cfg := alloc.DefaultConfig
	p := probe.DefaultParams
	return &File{
		Allocator: Allocator{
			PageSize:         Size(cfg.PageSize),
			Alignment:        cfg.Alignment,
			MagazineCapacity: cfg.MagazineCapacity,
			MaxPages:         cfg.MaxPages,
			Checked:          cfg.Checked,
		},
		Source: Source{
			Kind:        SourceMmap,
			SegmentSize: source.DefaultSegmentSize,
		},
		Probe: Probe{
			Pages:          p.Pages,
			SampleSize:     p.SampleSize,
			GroupSize:      Size(p.GroupSize),
			ProbeSizes:     append([]int(nil), p.ProbeSizes...),
			MaxProbeTrials: p.MaxProbeTrials,
		},
	}
}

// Load reads the configuration file at path. Keys missing from the file keep
// their Default values.
func Load(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	f, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a configuration from r on top of Default. Unknown keys are errors.
func Parse(r io.Reader) (*File, error) {
	f := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Write encodes f as YAML.
func (f *File) Write(w io.Writer) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	if err := e.Encode(f); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return e.Close()
}

// Validate checks every section.
func (f *File) Validate() error {
	var errs []error
	cfg := f.AllocConfig()
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := f.ProbeParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch f.Source.Kind {
	case SourceHeap, SourceMmap:
	case SourceFile:
		if f.Source.Path == "" {
			errs = append(errs, fmt.Errorf("%w: file source needs a path", ErrBadSource))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown kind %q", ErrBadSource, f.Source.Kind))
	}
	if f.Source.SegmentSize < 0 {
		errs = append(errs, fmt.Errorf("%w: negative segment size", ErrBadSource))
	}
	return errors.Join(errs...)
}

// AllocConfig returns the allocator section as an alloc.Config.
func (f *File) AllocConfig() alloc.Config {
	return alloc.Config{
		PageSize:         f.Allocator.PageSize.Int(),
		Alignment:        f.Allocator.Alignment,
		MagazineCapacity: f.Allocator.MagazineCapacity,
		MaxPages:         f.Allocator.MaxPages,
		Checked:          f.Allocator.Checked,
	}
}

// ProbeParams returns the probe section as probe.Params.
func (f *File) ProbeParams() probe.Params {
	return probe.Params{
		Pages:          f.Probe.Pages,
		SampleSize:     f.Probe.SampleSize,
		GroupSize:      f.Probe.GroupSize.Int(),
		ProbeSizes:     append([]int(nil), f.Probe.ProbeSizes...),
		MaxProbeTrials: f.Probe.MaxProbeTrials,
	}
}

// OpenSource creates the source described by the source section.
func (f *File) OpenSource() (source.Source, error) {
	seg := f.Source.SegmentSize.Int()
	switch f.Source.Kind {
	case SourceHeap:
		return source.NewHeap(seg), nil
	case SourceMmap:
		return source.NewMmap(seg), nil
	case SourceFile:
		if f.Source.Path == "" {
			return nil, fmt.Errorf("%w: file source needs a path", ErrBadSource)
		}
		fs, err := source.OpenFile(f.Source.Path, source.FileOptions{
			SegmentSize: seg,
			FullSync:    f.Source.FullSync,
		})
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadSource, f.Source.Kind)
	}
}

// NewAllocator opens the source and builds an allocator over it.
func (f *File) NewAllocator() (*alloc.Allocator, error) {
	src, err := f.OpenSource()
	if err != nil {
		return nil, err
	}
	cfg := f.AllocConfig()
	a, err := alloc.New(src, &cfg)
	if err != nil {
		return nil, errors.Join(err, src.Close())
	}
	return a, nil
}
