// Package bootcfg decodes the boot manifest a real boot loader would
// otherwise derive from a device tree blob plus kernel command line:
// hart count, heap size, and the device-tree node list devmgr.Probe
// consumes. Kept as a plain TOML file here since concrete device
// probing and FDT parsing are both out of scope (spec.md §1) -- this is
// the config surface that stands in for them in tests and the reference
// `cmd/kernel` binary.
package bootcfg

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/joeycumines/go-rvkernel/internal/devmgr"
)

// DeviceNode is bootcfg's TOML-decodable mirror of devmgr.Node.
type DeviceNode struct {
	Name       string            `toml:"name"`
	Compatible string            `toml:"compatible"`
	Props      map[string]string `toml:"props"`
	Children   []DeviceNode      `toml:"children"`
}

// toDevmgr converts the decoded tree into devmgr's own Node shape.
func (n DeviceNode) toDevmgr() *devmgr.Node {
	out := &devmgr.Node{Name: n.Name, Compatible: n.Compatible, Props: n.Props}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.toDevmgr())
	}
	return out
}

// Manifest is the decoded boot configuration.
type Manifest struct {
	Harts      int          `toml:"harts"`
	HeapFrames int          `toml:"heap_frames"`
	Devices    []DeviceNode `toml:"devices"`
}

// Validate checks the handful of fields a boot sequence cannot proceed
// without sane values for.
func (m Manifest) Validate() error {
	if m.Harts < 1 {
		return fmt.Errorf("bootcfg: harts must be >= 1, got %d", m.Harts)
	}
	if m.HeapFrames < 1 {
		return fmt.Errorf("bootcfg: heap_frames must be >= 1, got %d", m.HeapFrames)
	}
	return nil
}

// DeviceTree converts the manifest's decoded device list into the
// devmgr.Node forest Probe expects.
func (m Manifest) DeviceTree() []*devmgr.Node {
	out := make([]*devmgr.Node, len(m.Devices))
	for i, d := range m.Devices {
		out[i] = d.toDevmgr()
	}
	return out
}

// Load decodes a Manifest from the TOML file at path.
func Load(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("bootcfg: decode %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
