package tree

import (
	"strings"

	"github.com/sokinpui/xmlpatch/model"
)

// RenderFileMap draws nodes as an indented text tree under a root label.
func RenderFileMap(rootName string, nodes []*model.WorkspaceNode) string {
	var sb strings.Builder
	sb.WriteString(rootName)
	sb.WriteString("/\n")
	renderLevel(&sb, nodes, "")
	return sb.String()
}

func renderLevel(sb *strings.Builder, nodes []*model.WorkspaceNode, prefix string) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		marker, childPrefix := "├── ", "│   "
		if last {
			marker, childPrefix = "└── ", "    "
		}
		sb.WriteString(prefix)
		sb.WriteString(marker)
		sb.WriteString(n.Name)
		if n.IsDirectory {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
		if n.IsDirectory {
			renderLevel(sb, n.Children, prefix+childPrefix)
		}
	}
}
