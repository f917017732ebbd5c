package lockfree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/heimdall-bench/heimdall/bench/runner"
)

const follyVersion = "v2025.02.10.00"

// Step is one install or build command.
type Step struct {
	Description string
	Command     runner.Command
	// Creates is a path, relative to the suite directory, whose existence
	// means the step already ran.
	Creates string
}

func (s Suite) shell(dir, script string) runner.Command {
	c := runner.Shell(script)
	c.Dir = filepath.Join(s.Dir, dir)
	return c
}

func (s Suite) command(dir, name string, args ...string) runner.Command {
	return runner.Command{Name: name, Args: args, Dir: filepath.Join(s.Dir, dir)}
}

// InstallSteps fetches and builds the third-party libraries the bench
// binary links against.
func (s Suite) InstallSteps() []Step {
	apt := s.command("", "apt", "install", "-y", "libboost-all-dev", "libcds-dev")
	apt.Sudo = true
	follyDeps := s.command("downloads/folly", "./build/fbcode_builder/getdeps.py", "install-system-deps", "--recursive")
	follyDeps.Sudo = true

	return []Step{
		{Description: "create directories", Command: s.command("", "mkdir", "-p", "downloads", "libs", "results")},
		{Description: "install boost and libcds", Command: apt},
		{
			Description: "fetch cxxopts",
			Command:     s.command("", "git", "clone", "https://github.com/jarro2783/cxxopts.git", "libs/cxxopt"),
			Creates:     "libs/cxxopt",
		},
		{
			Description: "fetch folly",
			Command:     s.command("", "git", "clone", "https://github.com/facebook/folly.git", "downloads/folly"),
			Creates:     "downloads/folly",
		},
		{Description: "pin folly " + follyVersion, Command: s.command("downloads/folly", "git", "checkout", follyVersion)},
		{Description: "install folly system dependencies", Command: follyDeps},
		{
			Description: "build folly",
			Command: s.shell("downloads/folly",
				`mkdir -p ../../libs/folly && `+
					`CPLUS_INCLUDE_PATH="${CPLUS_INCLUDE_PATH}$(python3-config --includes | sed -e 's/ *-I/:/g')" `+
					`./build/fbcode_builder/getdeps.py --num-jobs=$(nproc) --install-prefix=$(realpath ../../libs/folly) build`),
		},
		{
			Description: "fetch junction",
			Command:     s.command("", "git", "clone", "https://github.com/preshing/junction.git", "downloads/junction"),
			Creates:     "downloads/junction",
		},
		{
			Description: "fetch turf",
			Command:     s.command("", "git", "clone", "https://github.com/preshing/turf.git", "downloads/turf"),
			Creates:     "downloads/turf",
		},
		{
			Description: "configure junction",
			Command: s.shell("downloads/junction",
				`mkdir -p build ../../libs/junction && cd build && `+
					`cmake -DCMAKE_INSTALL_PREFIX=$(realpath ../../../libs/junction) -DJUNCTION_WITH_SAMPLES=OFF ..`),
		},
		{
			Description: "install junction",
			Command:     s.command("downloads/junction/build", "cmake", "--build", ".", "--target", "install", "--config", "RelWithDebInfo"),
		},
	}
}

// BuildSteps compile the bench binary.
func (s Suite) BuildSteps() []Step {
	return []Step{
		{Description: "build bench", Command: s.shell("", "make clean && make")},
	}
}

// RunSteps runs steps in order through r, skipping those whose Creates
// path exists, and stops at the first failure.
func RunSteps(ctx context.Context, r runner.Runner, dir string, steps []Step) error {
	for i, st := range steps {
		if st.Creates != "" {
			if _, err := os.Stat(filepath.Join(dir, st.Creates)); err == nil {
				logrus.Infof("[%d/%d] %s: %s exists, skipping", i+1, len(steps), st.Description, st.Creates)
				continue
			}
		}
		logrus.Infof("[%d/%d] %s", i+1, len(steps), st.Description)
		if _, err := r.Run(ctx, st.Command); err != nil {
			return fmt.Errorf("%s: %w", st.Description, err)
		}
	}
	return nil
}
