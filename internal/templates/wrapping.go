// Package templates implements the two-tier template model: a single base
// wrapper template and leaf content templates stored in wrapped form.
package templates

import "strings"

// BaseTemplateSlug is the reserved slug of the base wrapper template.
const BaseTemplateSlug = "base-template"

// ContentBlockPlaceholder is the region of the base template that leaf
// content is rendered into. Base template content must contain it verbatim.
const ContentBlockPlaceholder = `{{block "content" .}}{{end}}`

const extendsLine = `{{/* extends "` + BaseTemplateSlug + `" */}}`

// wrappedPrefix is what IsWrapped compares against; long enough that no
// plausible leaf body starts with it by accident.
const wrappedPrefix = `{{/* extends `

// ContentBlock delimits content inside the named region the rendering engine
// substitutes into the base template.
func ContentBlock(content string) string {
	return `{{define "content"}}` + "\n" + content + `{{end}}`
}

// Wrap produces the stored form of leaf content: the extends directive
// followed by the content block. The framing is exactly two header lines and
// one trailer line; Unwrap depends on it.
func Wrap(content string) string {
	return extendsLine + "\n" + ContentBlock(content+"\n")
}

// Unwrap strips the extends directive, the block-open line and the trailing
// block-close line, restoring the leaf content. Only valid on output of Wrap:
// anything else will corrupt here.
func Unwrap(wrapped string) string {
	lines := strings.Split(wrapped, "\n")
	if len(lines) <= 3 {
		return ""
	}
	return strings.Join(lines[2:len(lines)-1], "\n")
}

// IsWrapped reports whether content is in the stored wrapped form.
func IsWrapped(content string) bool {
	return strings.HasPrefix(content, wrappedPrefix)
}
