package permitloader

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/xerrors"
)

// MemoryProbe reports the resident set size of the process in bytes.
type MemoryProbe interface {
	RSS() (uint64, error)
}

type processProbe struct{}

func (processProbe) RSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, xerrors.Errorf("failed to inspect process: %w", err)
	}

	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, xerrors.Errorf("failed to read memory info: %w", err)
	}

	return mi.RSS, nil
}

// memoryScope measures the RSS growth between its creation and end.
type memoryScope struct {
	probe  MemoryProbe
	before uint64
	ok     bool
}

func startMemoryScope(p MemoryProbe) *memoryScope {
	s := &memoryScope{probe: p}
	if v, err := p.RSS(); err == nil {
		s.before, s.ok = v, true
	}
	return s
}

// end returns after minus before. It is 0 when either sample failed.
func (s *memoryScope) end() int64 {
	if !s.ok {
		return 0
	}
	after, err := s.probe.RSS()
	if err != nil {
		return 0
	}
	return int64(after) - int64(s.before)
}
