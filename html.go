/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

// arenaPage builds the game shell: nickname prompt, lobby status, the
// playfield container the client renders into, and the chat box.
func arenaPage(cfg *Config) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	b.WriteString(`<meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(`<meta name="theme-color" content="#1a1a2e">`)
	b.WriteString(`<title>bomberdom</title>`)
	b.WriteString(`<style>`)
	b.WriteString(`body{margin:0;background:#1a1a2e;color:#eee;font-family:monospace;}`)
	b.WriteString(`#lobby,#hud{max-width:900px;margin:1rem auto;padding:0 1rem;}`)
	b.WriteString(`#playfield{position:relative;width:900px;height:660px;margin:0 auto;background:#0f0f1a;}`)
	b.WriteString(`#chat-log{height:8rem;overflow-y:auto;border:1px solid #444;}`)
	b.WriteString(`</style></head><body>`)
	b.WriteString(`<div id="lobby">`)
	b.WriteString(`<h1>bomberdom</h1>`)
	b.WriteString(`<form id="join-form">`)
	b.WriteString(`<input id="nickname" maxlength="16" placeholder="nickname" autocomplete="off">`)
	b.WriteString(`<button type="submit">Join</button>`)
	b.WriteString(`</form>`)
	b.WriteString(`<p id="lobby-status"></p>`)
	b.WriteString(`<a href="` + cfg.prefix + `/arena/qr">Share</a>`)
	b.WriteString(`</div>`)
	b.WriteString(`<div id="playfield"></div>`)
	b.WriteString(`<div id="hud"></div>`)
	b.WriteString(`<div id="chat"><div id="chat-log"></div>`)
	b.WriteString(`<input id="chat-input" placeholder="chat" autocomplete="off"></div>`)
	b.WriteString(`</body></html>`)

	return b.String()
}

func getArenaPageHandler(cfg *Config) httprouter.Handle {
	page := arenaPage(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(page))
	}
}

// serveHomePage redirects the bare root to the arena.
func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		http.Redirect(w, r, cfg.prefix+"/arena", http.StatusTemporaryRedirect)
	}
}
