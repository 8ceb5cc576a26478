// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

// Package docflow composes human-readable documents from a small tree of
// renderable nodes. It is a generic markdown-composition utility; easyaccess
// uses it to render server and algorithm documentation.
package docflow

import (
	"fmt"
	"strings"
)

// Node is one renderable piece of a document.
type Node interface {
	Markdown() string
}

// Document is an ordered sequence of nodes, itself renderable.
type Document struct {
	nodes []Node
}

// NewDocument builds a document from nodes in order.
func NewDocument(nodes ...Node) *Document {
	return &Document{nodes: nodes}
}

// Add appends a node.
func (d *Document) Add(n Node) *Document {
	d.nodes = append(d.nodes, n)
	return d
}

// Markdown renders the whole document.
func (d *Document) Markdown() string {
	var b strings.Builder
	for _, n := range d.nodes {
		b.WriteString(n.Markdown())
	}
	return b.String()
}

// Title is a markdown heading. Levels outside 1..5 are clamped.
type Title struct {
	Text  string
	Level int
}

// NewTitle creates a heading node.
func NewTitle(text string, level int) Title {
	return Title{Text: text, Level: level}
}

func (t Title) Markdown() string {
	level := t.Level
	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}
	return fmt.Sprintf("%s %s  \n", strings.Repeat("#", level), t.Text)
}

// Text is a plain paragraph node.
type Text string

func (t Text) Markdown() string {
	return string(t) + "  \n"
}

// Item is one entry of a Sequence. A non-empty Key renders as a bolded label.
type Item struct {
	Key  string
	Text string
}

// Sequence is a bullet (or numbered) list of items, keeping insertion order.
type Sequence struct {
	items    []Item
	numbered bool
}

// NewSequence builds a list node from items in order.
func NewSequence(items ...Item) *Sequence {
	return &Sequence{items: items}
}

// NewList builds a list node from plain strings.
func NewList(items ...string) *Sequence {
	s := &Sequence{}
	for _, text := range items {
		s.items = append(s.items, Item{Text: text})
	}
	return s
}

// Numbered switches the list to numeric indexes.
func (s *Sequence) Numbered() *Sequence {
	s.numbered = true
	return s
}

// Add appends one item.
func (s *Sequence) Add(key, text string) *Sequence {
	s.items = append(s.items, Item{Key: key, Text: text})
	return s
}

func (s *Sequence) Markdown() string {
	var b strings.Builder
	for i, item := range s.items {
		if s.numbered {
			fmt.Fprintf(&b, "%d. ", i+1)
		} else {
			b.WriteString("- ")
		}
		if item.Key != "" {
			fmt.Fprintf(&b, "**%s**: ", item.Key)
		}
		b.WriteString(item.Text)
		b.WriteString("  \n")
	}
	return b.String()
}

// Code is an inline code span.
func Code(v any) string {
	return fmt.Sprintf("`%v`", v)
}
