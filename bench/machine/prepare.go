package machine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/heimdall-bench/heimdall/bench/runner"
)

const (
	numaBalancingPath = "proc/sys/kernel/numa_balancing"
	aslrPath          = "proc/sys/kernel/randomize_va_space"
	governorGlob      = "sys/devices/system/cpu/cpu*/cpufreq/scaling_governor"
)

// HostPreparer applies a Preparation to the local host through privileged
// shell commands and remembers what it changed so Revert can undo it.
type HostPreparer struct {
	runner runner.Runner
	root   string
	detect func(context.Context) (CPUIdentity, error)

	saved       map[string]string // file → previous content
	cpu         *CPUIdentity
	prefetchOff bool
}

// NewHostPreparer returns a preparer acting on the real host.
func NewHostPreparer(r runner.Runner) *HostPreparer {
	return &HostPreparer{runner: r, root: "/", detect: DetectCPU}
}

// WithRoot makes the preparer read and write kernel files below root
// instead of "/".
func (h *HostPreparer) WithRoot(root string) *HostPreparer {
	h.root = root
	return h
}

// WithCPU fixes the processor identity instead of detecting it.
func (h *HostPreparer) WithCPU(id CPUIdentity) *HostPreparer {
	h.detect = func(context.Context) (CPUIdentity, error) { return id, nil }
	return h
}

// Apply tunes the host. It stops at the first failure; whatever was changed
// before it is still undone by Revert.
func (h *HostPreparer) Apply(ctx context.Context, p Preparation) error {
	if h.saved == nil {
		h.saved = make(map[string]string)
	}
	if p.DisableNUMABalancing {
		if err := h.writeKernelFiles(ctx, "0", filepath.Join(h.root, numaBalancingPath)); err != nil {
			return fmt.Errorf("disable NUMA balancing: %w", err)
		}
	}
	if p.DisableASLR {
		if err := h.writeKernelFiles(ctx, "0", filepath.Join(h.root, aslrPath)); err != nil {
			return fmt.Errorf("disable ASLR: %w", err)
		}
	}
	if p.Governor != "" {
		files, err := filepath.Glob(filepath.Join(h.root, governorGlob))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			logrus.Warn("no cpufreq scaling governors found, leaving frequency scaling untouched")
		} else if err := h.writeKernelFiles(ctx, p.Governor, files...); err != nil {
			return fmt.Errorf("set %s governor: %w", p.Governor, err)
		}
	}
	if p.Prefetcher != "" {
		on := p.Prefetcher == "on"
		err := h.setPrefetcher(ctx, on)
		switch {
		case errors.Is(err, ErrNoPrefetcherControl):
			logrus.Warnf("leaving prefetcher untouched: %v", err)
		case err != nil:
			return fmt.Errorf("turn prefetcher %s: %w", p.Prefetcher, err)
		default:
			h.prefetchOff = !on
		}
	}
	return nil
}

// Revert restores every value Apply changed, continuing past failures.
func (h *HostPreparer) Revert(ctx context.Context) error {
	var result *multierror.Error

	// group files by previous value so each value is one command
	byValue := make(map[string][]string)
	for file, prev := range h.saved {
		byValue[prev] = append(byValue[prev], file)
	}
	values := make([]string, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	sort.Strings(values)
	for _, v := range values {
		files := byValue[v]
		sort.Strings(files)
		if err := h.tee(ctx, v, files...); err != nil {
			result = multierror.Append(result, fmt.Errorf("restore %s: %w", strings.Join(files, ", "), err))
			continue
		}
		for _, f := range files {
			delete(h.saved, f)
		}
	}

	if h.prefetchOff {
		if err := h.setPrefetcher(ctx, true); err != nil {
			result = multierror.Append(result, fmt.Errorf("turn prefetcher back on: %w", err))
		} else {
			h.prefetchOff = false
		}
	}
	return result.ErrorOrNil()
}

// writeKernelFiles records the current content of files and writes value
// to all of them.
func (h *HostPreparer) writeKernelFiles(ctx context.Context, value string, files ...string) error {
	for _, f := range files {
		if _, done := h.saved[f]; done {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		h.saved[f] = strings.TrimSpace(string(data))
	}
	return h.tee(ctx, value, files...)
}

func (h *HostPreparer) tee(ctx context.Context, value string, files ...string) error {
	script := fmt.Sprintf("echo %s | tee %s > /dev/null", value, strings.Join(files, " "))
	cmd := runner.Shell(script)
	cmd.Sudo = true
	_, err := h.runner.Run(ctx, cmd)
	return err
}

func (h *HostPreparer) setPrefetcher(ctx context.Context, on bool) error {
	if h.cpu == nil {
		id, err := h.detect(ctx)
		if err != nil {
			return err
		}
		h.cpu = &id
		logrus.Infof("detected %s cpu (family %d, model %d)", id.Generation(), id.Family, id.Model)
	}
	writes, err := PrefetcherWrites(*h.cpu, on)
	if err != nil {
		return err
	}
	for _, w := range writes {
		cmd := runner.Command{Name: "wrmsr", Args: []string{"-a", w.Register, w.Value}, Sudo: true}
		if _, err := h.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
