package web

import "embed"

// staticFiles is the dashboard served at / and /static/.
//
//go:embed static/*
var staticFiles embed.FS
