// Package doctree holds the outline and section shapes produced by outline
// assembly and consumed by ranking and reporting.
package doctree

// Outline is the document title plus its flat heading list.
type Outline struct {
	Title   string        `json:"title"`
	Outline []OutlineNode `json:"outline"`
}

// OutlineNode is one heading in document order.
type OutlineNode struct {
	Level string `json:"level"`
	Text  string `json:"text"`
	Page  int    `json:"page"`
}

// Section is a heading and the body text that follows it. Text is the
// heading followed by the pipe-joined body.
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
	Page    int    `json:"page"`
}

// DocNode is a heading with the headings nested beneath it.
type DocNode struct {
	Level    string     `json:"level"`
	Title    string     `json:"title"`
	Page     int        `json:"page"`
	Children []*DocNode `json:"children,omitempty"`
}

// Nest arranges a flat outline into a tree. levels lists labels from the
// outermost inward; a label not in levels nests below every listed one.
func Nest(nodes []OutlineNode, levels []string) []*DocNode {
	depth := make(map[string]int, len(levels))
	for i, l := range levels {
		depth[l] = i
	}
	depthOf := func(level string) int {
		if d, ok := depth[level]; ok {
			return d
		}
		return len(levels)
	}

	var roots []*DocNode
	type frame struct {
		node  *DocNode
		depth int
	}
	var stack []frame
	for _, n := range nodes {
		node := &DocNode{Level: n.Level, Title: n.Text, Page: n.Page}
		d := depthOf(n.Level)
		for len(stack) > 0 && stack[len(stack)-1].depth >= d {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, frame{node: node, depth: d})
	}
	return roots
}
