package builder

import (
	"fmt"

	"codegraph/util"
)

// GraphFile is the name of the projected tree inside a build directory.
const GraphFile = "graph.json"

// ArtifactDir names the directory of one build from its entry function.
func ArtifactDir(name, uri, id string) string {
	return fmt.Sprintf("%s_%s_%s", util.SanitizeName(name), util.PathFragment(uri), util.ShortID(id))
}

// ImageName names the snapshot of one node.
func ImageName(name, uri, id string) string {
	return ArtifactDir(name, uri, id) + ".png"
}
