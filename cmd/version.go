package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version can be set at link time: -ldflags "-X github.com/lockplane/schemasync/cmd.version=v1.2.3"
var version string

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print build information as JSON")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schemasync version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return printJSON(os.Stdout, readBuild())
		}
		fmt.Println("schemasync " + getVersion())
		return nil
	},
}

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

func readBuild() buildInfo {
	b := buildInfo{Version: version}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if b.Version == "" {
			b.Version = "dev"
		}
		return b
	}

	b.GoVersion = info.GoVersion
	if b.Version == "" {
		b.Version = info.Main.Version
	}
	if b.Version == "" || b.Version == "(devel)" {
		b.Version = "dev"
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Commit = setting.Value
			if len(b.Commit) > 7 {
				b.Commit = b.Commit[:7]
			}
		case "vcs.modified":
			b.Modified = setting.Value == "true"
		case "vcs.time":
			b.BuildTime = setting.Value
		}
	}
	return b
}

func getVersion() string {
	b := readBuild()
	s := b.Version
	if b.Commit != "" {
		s += " (" + b.Commit
		if b.Modified {
			s += " modified"
		}
		s += ")"
	}
	if b.BuildTime != "" {
		s += " built " + b.BuildTime
	}
	return s
}
