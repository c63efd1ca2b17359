package runconfig

import "encoding/xml"

// node is a generic XML element. Run configuration files carry far more
// settings than runcfg reads, so the tree is kept untyped and queried.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
}

func (n *node) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// findDescendant returns the first element below n, in document order,
// with the given tag and attribute value. n itself is not considered.
func (n *node) findDescendant(tag, attrName, attrValue string) *node {
	for i := range n.Nodes {
		child := &n.Nodes[i]
		if child.XMLName.Local == tag && child.attr(attrName) == attrValue {
			return child
		}
		if found := child.findDescendant(tag, attrName, attrValue); found != nil {
			return found
		}
	}
	return nil
}

func (n *node) child(tag string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == tag {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (n *node) children(tag string) []*node {
	var out []*node
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == tag {
			out = append(out, &n.Nodes[i])
		}
	}
	return out
}
