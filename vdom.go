package main

import (
	"errors"
	"fmt"
)

// Minimal virtual DOM. The diff/patch algorithm only talks to the Document
// and Node interfaces, so the same engine drives a real browser DOM (via a
// wasm shim), the in-memory tree used by the headless bot, and the test
// suite.

// VNode is one node of a virtual tree. Children are *VNode or string; nil
// children are tolerated and render as empty text nodes.
type VNode struct {
	Tag      string
	Attrs    map[string]any
	Children []any
}

func NewVNode(tag string, attrs map[string]any, children ...any) *VNode {
	return &VNode{Tag: tag, Attrs: attrs, Children: children}
}

// Key returns the explicit reconciliation key, if any.
func (v *VNode) Key() (string, bool) {
	if v == nil || v.Attrs == nil {
		return "", false
	}
	k, ok := v.Attrs["key"]
	if !ok {
		return "", false
	}
	return fmt.Sprint(k), true
}

func (v *VNode) refKey() string {
	if v == nil || v.Attrs == nil {
		return ""
	}
	if ref, ok := v.Attrs["ref"]; ok {
		return fmt.Sprint(ref)
	}
	if id, ok := v.Attrs["id"]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

// Document is the factory side of the mutation target.
type Document interface {
	CreateElement(tag string) Node
	CreateText(text string) Node
	// ActiveElement is the currently focused node, or nil.
	ActiveElement() Node
}

// Node is one mutable node of the target tree.
type Node interface {
	IsText() bool
	Tag() string

	AppendChild(child Node)
	RemoveChild(child Node)
	ReplaceChild(newChild, oldChild Node)
	// InsertBefore inserts before ref; a nil ref appends.
	InsertBefore(child, ref Node)
	ChildCount() int
	ChildAt(i int) Node
	Parent() Node

	SetAttribute(key, value string)
	RemoveAttribute(key string)
	Attribute(key string) (string, bool)
	// SetProperty mutates a live property (value, checked, disabled, event
	// handlers) as opposed to a serialized attribute.
	SetProperty(key string, value any)
	Property(key string) any

	SetText(text string)
	Text() string

	Focus()
	SetSelection(offset int)
	Selection() int
}

// RenderFunc builds a new virtual tree from state. setState merges a patch
// and triggers a re-render.
type RenderFunc func(state map[string]any, setState func(map[string]any)) *VNode

// VDOMManager owns one mounted tree inside a container node, the ref
// registry and focus preservation.
type VDOMManager struct {
	doc       Document
	container Node
	renderFn  RenderFunc
	state     map[string]any
	oldVNode  *VNode
	mounted   bool
	refs      map[string]Node

	// focus preservation scratch, valid during one patch
	focusedKey string
	cursor     int
}

func NewVDOMManager(doc Document, container Node, renderFn RenderFunc, initialState map[string]any) *VDOMManager {
	if initialState == nil {
		initialState = make(map[string]any)
	}
	return &VDOMManager{
		doc:       doc,
		container: container,
		renderFn:  renderFn,
		state:     initialState,
		refs:      make(map[string]Node),
	}
}

// Mount renders the initial tree. Mounting an already-mounted manager is an
// error; callers must Unmount first.
func (m *VDOMManager) Mount() error {
	if m.mounted {
		return errors.New("vdom: already mounted")
	}
	if m.renderFn == nil {
		return errors.New("vdom: mount needs a render function")
	}

	clearNode(m.container)
	m.oldVNode = m.renderFn(m.state, m.SetState)
	m.container.AppendChild(m.createNode(m.oldVNode))
	m.mounted = true
	return nil
}

func (m *VDOMManager) Unmount() {
	clearNode(m.container)
	m.mounted = false
	m.oldVNode = nil
	m.refs = make(map[string]Node)
}

// SetState merges a patch into the state and re-renders.
func (m *VDOMManager) SetState(patch map[string]any) {
	for k, v := range patch {
		m.state[k] = v
	}
	if m.renderFn == nil || !m.mounted {
		return
	}

	newVNode := m.renderFn(m.state, m.SetState)
	m.updateElement(m.container, newVNode, m.oldVNode, 0)
	m.oldVNode = newVNode
	m.restoreFocus()
}

func (m *VDOMManager) State(key string) any { return m.state[key] }

// Ref returns the live node registered under a ref/id key.
func (m *VDOMManager) Ref(key string) Node { return m.refs[key] }

func (m *VDOMManager) registerRef(key string, n Node) {
	if key != "" {
		m.refs[key] = n
	}
}

func (m *VDOMManager) unregisterRef(key string) {
	if key != "" {
		delete(m.refs, key)
	}
}

// preserveFocus records the focused element's key and cursor offset before a
// patch touches it. Restoration goes through the ref registry, never through
// tree queries, so it survives the element being replaced.
func (m *VDOMManager) preserveFocus(key string) bool {
	el := m.refs[key]
	if el == nil || m.doc.ActiveElement() != el {
		return false
	}
	m.focusedKey = key
	m.cursor = el.Selection()
	return true
}

func (m *VDOMManager) restoreFocus() {
	if m.focusedKey == "" {
		return
	}
	if el := m.refs[m.focusedKey]; el != nil {
		el.Focus()
		el.SetSelection(m.cursor)
	}
	m.focusedKey = ""
	m.cursor = 0
}

// updateElement diffs one child slot of parent.
func (m *VDOMManager) updateElement(parent Node, newChild, oldChild any, index int) {
	var existing Node
	if index < parent.ChildCount() {
		existing = parent.ChildAt(index)
	}

	newNil := isNilChild(newChild)
	oldNil := isNilChild(oldChild)

	switch {
	case newNil && oldNil:
		return

	case newNil:
		if existing != nil {
			if v, ok := oldChild.(*VNode); ok {
				m.unregisterRef(v.refKey())
			}
			parent.RemoveChild(existing)
		}
		return

	case oldNil:
		parent.AppendChild(m.createNode(newChild))
		return
	}

	if changed(newChild, oldChild) {
		if existing == nil {
			parent.AppendChild(m.createNode(newChild))
			return
		}
		if v, ok := newChild.(*VNode); ok {
			if key := v.refKey(); key != "" {
				m.preserveFocus(key)
			}
		}
		if v, ok := oldChild.(*VNode); ok {
			m.unregisterRef(v.refKey())
		}
		parent.ReplaceChild(m.createNode(newChild), existing)
		return
	}

	if text, ok := newChild.(string); ok {
		if existing != nil && existing.Text() != text {
			existing.SetText(text)
		}
		return
	}

	if existing == nil {
		return
	}
	newV := newChild.(*VNode)
	oldV := oldChild.(*VNode)
	m.updateAttributes(existing, newV.Attrs, oldV.Attrs)
	m.reconcileChildren(existing, newV.Children, oldV.Children)
}

// reconcileChildren picks positional or keyed diffing. Keyed reconciliation
// reuses matched elements across reorders so input focus and animation state
// survive list rebuilds.
func (m *VDOMManager) reconcileChildren(parent Node, newChildren, oldChildren []any) {
	hasKeys := anyKeyed(newChildren) || anyKeyed(oldChildren)

	if !hasKeys {
		minLen := len(newChildren)
		if len(oldChildren) < minLen {
			minLen = len(oldChildren)
		}
		for i := 0; i < minLen; i++ {
			m.updateElement(parent, newChildren[i], oldChildren[i], i)
		}
		for i := minLen; i < len(newChildren); i++ {
			m.updateElement(parent, newChildren[i], nil, i)
		}
		for i := len(oldChildren) - 1; i >= len(newChildren); i-- {
			if i >= parent.ChildCount() {
				continue
			}
			if v, ok := oldChildren[i].(*VNode); ok {
				m.unregisterRef(v.refKey())
			}
			parent.RemoveChild(parent.ChildAt(i))
		}
		return
	}

	// Keyed reconciliation: match by key, patch matches in place, create
	// the rest, then drop unmatched old keys and fix up ordering.
	oldKeyToNode := make(map[string]Node)
	oldKeyToVNode := make(map[string]*VNode)
	for i, oc := range oldChildren {
		v, ok := oc.(*VNode)
		if !ok {
			continue
		}
		if key, keyed := v.Key(); keyed && i < parent.ChildCount() {
			oldKeyToNode[key] = parent.ChildAt(i)
			oldKeyToVNode[key] = v
		}
	}

	newNodes := make([]Node, len(newChildren))
	usedKeys := make(map[string]bool)

	for i, nc := range newChildren {
		v, ok := nc.(*VNode)
		var key string
		var keyed bool
		if ok {
			key, keyed = v.Key()
		}

		if keyed && oldKeyToNode[key] != nil {
			el := oldKeyToNode[key]
			oldV := oldKeyToVNode[key]
			m.updateAttributes(el, v.Attrs, oldV.Attrs)
			m.reconcileChildren(el, v.Children, oldV.Children)
			newNodes[i] = el
			usedKeys[key] = true
		} else {
			newNodes[i] = m.createNode(nc)
		}
	}

	for _, oc := range oldChildren {
		v, ok := oc.(*VNode)
		if !ok {
			continue
		}
		key, keyed := v.Key()
		if !keyed || usedKeys[key] {
			continue
		}
		m.unregisterRef(v.refKey())
		if el := oldKeyToNode[key]; el != nil && el.Parent() == parent {
			parent.RemoveChild(el)
		}
	}

	for i, el := range newNodes {
		var current Node
		if i < parent.ChildCount() {
			current = parent.ChildAt(i)
		}
		if current != el {
			parent.InsertBefore(el, current)
		}
	}

	for parent.ChildCount() > len(newChildren) {
		parent.RemoveChild(parent.ChildAt(parent.ChildCount() - 1))
	}
}

// changed reports whether the node must be replaced wholesale rather than
// patched: different kind, different text, or different tag/key.
func changed(a, b any) bool {
	av, aIsNode := a.(*VNode)
	bv, bIsNode := b.(*VNode)
	if aIsNode != bIsNode {
		return true
	}
	if !aIsNode {
		as, _ := a.(string)
		bs, _ := b.(string)
		return as != bs
	}
	if av.Tag != bv.Tag {
		return true
	}
	ak, _ := av.Key()
	bk, _ := bv.Key()
	return ak != bk
}

func (m *VDOMManager) updateAttributes(el Node, newAttrs, oldAttrs map[string]any) {
	if el == nil || el.IsText() {
		return
	}

	// Focus preservation around in-place attribute churn on the focused
	// element, e.g. a controlled input being re-rendered mid-keystroke.
	if key := refKeyOf(newAttrs); key != "" && m.doc.ActiveElement() == el {
		m.preserveFocus(key)
	}

	for key, old := range oldAttrs {
		if _, still := newAttrs[key]; still {
			continue
		}
		switch {
		case key == "ref" || key == "id":
			m.unregisterRef(fmt.Sprint(old))
			if key == "id" {
				el.RemoveAttribute("id")
			}
		case isHandlerKey(key):
			el.SetProperty(key, nil)
		default:
			el.RemoveAttribute(key)
			el.SetProperty(key, nil)
		}
	}

	for key, value := range newAttrs {
		switch {
		case key == "ref" || key == "id":
			m.registerRef(fmt.Sprint(value), el)
			if key == "id" {
				el.SetAttribute("id", fmt.Sprint(value))
			}
		case isHandlerKey(key):
			// Handlers attach as live callables, never as string attributes.
			el.SetProperty(key, value)
		case key == "disabled" || key == "checked":
			// Boolean attributes disappear entirely when false; "false" as a
			// string value would still read as truthy in a DOM.
			truthy := isTruthy(value)
			el.SetProperty(key, truthy)
			if truthy {
				el.SetAttribute(key, "")
			} else {
				el.RemoveAttribute(key)
			}
		case key == "value":
			// The live property must be mutated or typed text desyncs from
			// state on the next render.
			s := fmt.Sprint(value)
			if el.Property("value") != any(s) {
				el.SetProperty("value", s)
				el.SetAttribute("value", s)
			}
		case key == "key" || key == "preserveFocus":
			// reconciliation metadata, never written to the target
		default:
			if oldAttrs[key] != value {
				el.SetAttribute(key, fmt.Sprint(value))
			}
		}
	}
}

// createNode materializes a virtual node (and its subtree) in the target.
func (m *VDOMManager) createNode(child any) Node {
	if isNilChild(child) {
		return m.doc.CreateText("")
	}
	if text, ok := child.(string); ok {
		return m.doc.CreateText(text)
	}

	v := child.(*VNode)
	el := m.doc.CreateElement(v.Tag)
	m.updateAttributes(el, v.Attrs, nil)
	for _, c := range v.Children {
		if isNilChild(c) {
			continue
		}
		el.AppendChild(m.createNode(c))
	}
	return el
}

func clearNode(n Node) {
	for n.ChildCount() > 0 {
		n.RemoveChild(n.ChildAt(n.ChildCount() - 1))
	}
}

func isNilChild(c any) bool {
	if c == nil {
		return true
	}
	v, ok := c.(*VNode)
	return ok && v == nil
}

func anyKeyed(children []any) bool {
	for _, c := range children {
		if v, ok := c.(*VNode); ok {
			if _, keyed := v.Key(); keyed {
				return true
			}
		}
	}
	return false
}

func refKeyOf(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	if _, hasPreserve := attrs["preserveFocus"]; !hasPreserve {
		return ""
	}
	if ref, ok := attrs["ref"]; ok {
		return fmt.Sprint(ref)
	}
	if id, ok := attrs["id"]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

func isHandlerKey(key string) bool {
	return len(key) > 2 && key[0] == 'o' && key[1] == 'n'
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != "" && t != "false"
	case int:
		return t != 0
	default:
		return true
	}
}
