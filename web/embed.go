package web

import "embed"

// Templates embeds the console layouts, pages and fragments.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds the console stylesheet and script.
//
//go:embed static/**/*
var Static embed.FS
