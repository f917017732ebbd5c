package machine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"k8s.io/utils/cpuset"
)

// Topology maps each NUMA node to its CPUs. Memory-only nodes (CXL
// expanders) have an empty CPU set.
type Topology struct {
	Nodes map[int]cpuset.CPUSet
}

// ReadTopology reads node cpulists below sysfsRoot (normally "/sys").
func ReadTopology(sysfsRoot string) (*Topology, error) {
	dir := filepath.Join(sysfsRoot, "devices", "system", "node")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read NUMA nodes: %w", err)
	}
	t := &Topology{Nodes: make(map[int]cpuset.CPUSet)}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "cpulist"))
		if err != nil {
			return nil, fmt.Errorf("read cpulist of node %d: %w", id, err)
		}
		cpus, err := cpuset.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parse cpulist of node %d: %w", id, err)
		}
		t.Nodes[id] = cpus
	}
	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("no NUMA nodes under %s", dir)
	}
	return t, nil
}

// NodeIDs lists the nodes in ascending order.
func (t *Topology) NodeIDs() []int {
	ids := make([]int, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// CheckPlacement verifies that both threads run on CPUs of their nodes and
// that the structure's node exists.
func (t *Topology) CheckPlacement(p Placement) error {
	var result *multierror.Error
	check := func(role string, core, node int) {
		cpus, ok := t.Nodes[node]
		switch {
		case !ok:
			result = multierror.Append(result, fmt.Errorf("%s: %s node %d does not exist", p.Name, role, node))
		case !cpus.Contains(core):
			result = multierror.Append(result, fmt.Errorf("%s: %s core %d is not on node %d (cpus %s)", p.Name, role, core, node, cpus))
		}
	}
	check("setter", p.SetterCore, p.SetterNode)
	check("getter", p.GetterCore, p.GetterNode)
	if _, ok := t.Nodes[p.StructureNode]; !ok {
		result = multierror.Append(result, fmt.Errorf("%s: structure node %d does not exist", p.Name, p.StructureNode))
	}
	return result.ErrorOrNil()
}

// Check verifies every placement of a profile.
func (t *Topology) Check(p Profile) error {
	var result *multierror.Error
	for _, pl := range p.Placements {
		if err := t.CheckPlacement(pl); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
