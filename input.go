package main

import "strings"

// Key names follow the lowercased DOM convention ("w", "arrowup", " ").
const (
	keySpace = " "
	keyEnter = "enter"
)

// InputHandler tracks currently-held keys and turns them into continuous
// movement polling. The event source (browser key events, the bot's
// synthetic driver, tests) feeds Press/Release.
type InputHandler struct {
	keysPressed map[string]bool
	enabled     bool

	// textInputFocused reports whether a text field elsewhere in the UI
	// owns the keyboard, in which case game input must not steal
	// keystrokes. The hidden capture input that keeps game keys alive is
	// exempt and reports false. Nil means no text field exists.
	textInputFocused func() bool
}

func NewInputHandler() *InputHandler {
	return &InputHandler{
		keysPressed: make(map[string]bool),
		enabled:     true,
	}
}

// SetTextInputGuard installs the chat-focus probe.
func (h *InputHandler) SetTextInputGuard(fn func() bool) {
	h.textInputFocused = fn
}

func (h *InputHandler) Press(key string) {
	if !h.enabled || h.guarded() {
		return
	}
	h.keysPressed[strings.ToLower(key)] = true
}

func (h *InputHandler) Release(key string) {
	if h.guarded() {
		return
	}
	h.keysPressed[strings.ToLower(key)] = false
}

func (h *InputHandler) guarded() bool {
	return h.textInputFocused != nil && h.textInputFocused()
}

// MovementInput returns the normalized movement direction. Opposing keys
// cancel each other out.
func (h *InputHandler) MovementInput() Movement {
	if !h.enabled {
		return Movement{}
	}

	var m Movement
	if h.keysPressed["w"] || h.keysPressed["arrowup"] {
		m.DY--
	}
	if h.keysPressed["s"] || h.keysPressed["arrowdown"] {
		m.DY++
	}
	if h.keysPressed["a"] || h.keysPressed["arrowleft"] {
		m.DX--
	}
	if h.keysPressed["d"] || h.keysPressed["arrowright"] {
		m.DX++
	}
	return m
}

// ActionKeyPressed reports whether the bomb key is held.
func (h *InputHandler) ActionKeyPressed() bool {
	return h.enabled && h.keysPressed[keySpace]
}

// ConsumeActionKey clears the bomb key so one press places one bomb.
func (h *InputHandler) ConsumeActionKey() {
	h.keysPressed[keySpace] = false
}

func (h *InputHandler) Enable() {
	h.enabled = true
}

// Disable turns input off and flushes all held-key state, so a key that was
// physically held through respawn or an overlay cannot stick.
func (h *InputHandler) Disable() {
	h.enabled = false
	h.keysPressed = make(map[string]bool)
}
