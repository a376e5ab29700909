package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const buildImage = "gophertribe/gobuild:1.25-bookworm"

// buildTargets maps a target name to its main package.
var buildTargets = map[string]string{
	"hpa": "./cmd/hpa",
	"dev": "./cmd/dev",
}

type buildSpec struct {
	target  string
	version string
	os      string
	arch    string
}

func (s buildSpec) native() bool {
	return s.os == runtime.GOOS && s.arch == runtime.GOARCH
}

func (s buildSpec) goBuild() error {
	pkg, ok := buildTargets[s.target]
	if !ok {
		return fmt.Errorf("unknown build target %q", s.target)
	}
	return build.GoBuild("dist/"+s.target, pkg, build.GoBuildOpts{
		Version:       s.version,
		InjectVersion: true,
		ConfigPackage: "github.com/mklimuk/hpa/config",
		// karalabe/hid links libusb/hidapi
		EnableCgo: true,
		Arch:      s.arch,
		OS:        s.os,
	})
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the hpa station cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			spec := buildSpec{
				target:  flags.Lookup("target").Value.String(),
				version: flags.Lookup("version").Value.String(),
				os:      flags.Lookup("os").Value.String(),
				arch:    flags.Lookup("arch").Value.String(),
			}
			crossOs := flags.Lookup("cross-os").Value.String()
			crossArch := flags.Lookup("cross-arch").Value.String()

			if spec.native() {
				// inside the build container the cross target is passed explicitly
				if crossOs != "" && crossArch != "" {
					spec.os = crossOs
					spec.arch = crossArch
				}
				return spec.goBuild()
			}

			noCache, err := flags.GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", spec.os, spec.arch),
				[]string{"build", "--target", spec.target, "--version", spec.version, "--cross-os", crossOs, "--cross-arch", crossArch},
				build.DockerBuildOpts{
					NoCache: noCache,
					Image:   buildImage,
				})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("target", "hpa", "binary to build: hpa or dev")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")

	return cmd
}
