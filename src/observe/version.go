package observe

import (
	"fmt"
	"sort"
)

// ProtocolVersion describes one protocol revision and the processor that
// handles its records. A version covers every block from StartTime until
// the next version's StartTime.
type ProtocolVersion struct {
	Name      string
	StartTime uint64
	Processor TransactionProcessor
}

type versionManager struct {
	// Sorted ascending by StartTime
	versions   []ProtocolVersion
	processors map[string]TransactionProcessor
}

func NewVersionManager(versions []ProtocolVersion) VersionManager {
	sorted := make([]ProtocolVersion, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	processors := make(map[string]TransactionProcessor)
	for _, version := range sorted {
		if version.Processor != nil {
			processors[version.Name] = version.Processor
		}
	}

	return &versionManager{
		versions:   sorted,
		processors: processors,
	}
}

func (self *versionManager) VersionName(transactionTime uint64) string {
	name := ""
	for _, version := range self.versions {
		if version.StartTime > transactionTime {
			break
		}
		name = version.Name
	}
	return name
}

func (self *versionManager) ProcessorFor(transactionTime uint64) (processor TransactionProcessor, err error) {
	name := self.VersionName(transactionTime)
	processor, ok := self.processors[name]
	if !ok {
		err = fmt.Errorf("no processor registered for block %d (version %q)", transactionTime, name)
	}
	return
}
