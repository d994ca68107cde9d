package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

var markupTag = regexp.MustCompile(`<[^>]*>`)

// consoleText turns one console record back into terminal text.
func consoleText(data string) string {
	return html.UnescapeString(markupTag.ReplaceAllString(data, ""))
}

// apiURL returns the daemon base URL, defaulting to the local daemon.
func apiURL(u string) string {
	if u == "" {
		return "http://127.0.0.1:5000"
	}
	return strings.TrimRight(u, "/")
}
