package version

// Values are stamped at build time with -ldflags.
var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

// Info is the build identity reported on the status surface.
type Info struct {
	Version   string `json:"version"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Built:     Built,
		GitCommit: GitCommit,
	}
}
