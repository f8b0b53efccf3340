package main

import "strings"

// In-memory implementation of the VDOM mutation target. The headless bot
// and the test suite render into this; a browser build would satisfy the
// same interfaces with syscall/js wrappers instead.

type MemoryDocument struct {
	active *MemoryNode
}

func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{}
}

func (d *MemoryDocument) CreateElement(tag string) Node {
	return &MemoryNode{
		doc:   d,
		tag:   strings.ToLower(tag),
		attrs: make(map[string]string),
		props: make(map[string]any),
	}
}

func (d *MemoryDocument) CreateText(text string) Node {
	return &MemoryNode{doc: d, isText: true, text: text}
}

func (d *MemoryDocument) ActiveElement() Node {
	if d.active == nil {
		return nil
	}
	return d.active
}

type MemoryNode struct {
	doc    *MemoryDocument
	tag    string
	isText bool
	text   string

	attrs    map[string]string
	props    map[string]any
	children []*MemoryNode
	parent   *MemoryNode

	selection int
}

func (n *MemoryNode) IsText() bool { return n.isText }
func (n *MemoryNode) Tag() string  { return n.tag }

func (n *MemoryNode) AppendChild(child Node) {
	c := child.(*MemoryNode)
	c.detach()
	c.parent = n
	n.children = append(n.children, c)
}

func (n *MemoryNode) RemoveChild(child Node) {
	c := child.(*MemoryNode)
	for i, existing := range n.children {
		if existing == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			if n.doc.active == c {
				n.doc.active = nil
			}
			return
		}
	}
}

func (n *MemoryNode) ReplaceChild(newChild, oldChild Node) {
	nc := newChild.(*MemoryNode)
	oc := oldChild.(*MemoryNode)
	for i, existing := range n.children {
		if existing == oc {
			nc.detach()
			nc.parent = n
			n.children[i] = nc
			oc.parent = nil
			if n.doc.active == oc {
				n.doc.active = nil
			}
			return
		}
	}
}

func (n *MemoryNode) InsertBefore(child, ref Node) {
	c := child.(*MemoryNode)
	c.detach()
	c.parent = n

	if ref == nil {
		n.children = append(n.children, c)
		return
	}
	r := ref.(*MemoryNode)
	for i, existing := range n.children {
		if existing == r {
			n.children = append(n.children[:i], append([]*MemoryNode{c}, n.children[i:]...)...)
			return
		}
	}
	n.children = append(n.children, c)
}

func (n *MemoryNode) ChildCount() int { return len(n.children) }

func (n *MemoryNode) ChildAt(i int) Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

func (n *MemoryNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *MemoryNode) SetAttribute(key, value string) {
	if n.isText {
		return
	}
	n.attrs[key] = value
}

func (n *MemoryNode) RemoveAttribute(key string) {
	delete(n.attrs, key)
}

func (n *MemoryNode) Attribute(key string) (string, bool) {
	v, ok := n.attrs[key]
	return v, ok
}

func (n *MemoryNode) SetProperty(key string, value any) {
	if n.isText {
		return
	}
	if value == nil {
		delete(n.props, key)
		return
	}
	n.props[key] = value
}

func (n *MemoryNode) Property(key string) any { return n.props[key] }

func (n *MemoryNode) SetText(text string) { n.text = text }

// Text returns the node's own text, or the concatenated text of the subtree
// for element nodes.
func (n *MemoryNode) Text() string {
	if n.isText {
		return n.text
	}
	var b strings.Builder
	for _, c := range n.children {
		b.WriteString(c.Text())
	}
	return b.String()
}

func (n *MemoryNode) Focus() {
	if !n.isText {
		n.doc.active = n
	}
}

func (n *MemoryNode) SetSelection(offset int) { n.selection = offset }
func (n *MemoryNode) Selection() int          { return n.selection }

// Call invokes an attached event handler property, simulating a DOM event.
func (n *MemoryNode) Call(handler string) {
	if fn, ok := n.props[handler].(func()); ok {
		fn()
	}
}

func (n *MemoryNode) detach() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}
