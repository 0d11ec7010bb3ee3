package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
)

var curriculumKeys = []string{"title", "overview", "objectives", "keyConcepts", "lessons", "assessment", "resources"}

type generatedLesson struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Goals       []string `json:"goals"`
	Activities  []string `json:"activities"`
}

type generatedCurriculum struct {
	Title       string            `json:"title"`
	Overview    string            `json:"overview"`
	Objectives  []string          `json:"objectives"`
	KeyConcepts []string          `json:"keyConcepts"`
	Lessons     []generatedLesson `json:"lessons"`
	Assessment  string            `json:"assessment"`
	Resources   string            `json:"resources"`
}

// stripCodeFence removes one surrounding ``` or ```json fence.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseCurriculum accepts exactly the seven generated keys; anything else is malformed.
// The prompt asks for this many lessons. Drafts outside the range are kept.
const (
	minLessons = 4
	maxLessons = 8
)

func lessonCountInRange(n int) bool { return n >= minLessons && n <= maxLessons }

func parseCurriculum(raw string) (*types.CurriculumContent, error) {
	body := []byte(stripCodeFence(raw))

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	var missing, extra []string
	for _, k := range curriculumKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range keys {
		if !isCurriculumKey(k) {
			extra = append(extra, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("unexpected keys: %s", strings.Join(extra, ", "))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var g generatedCurriculum
	if err := dec.Decode(&g); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	if strings.TrimSpace(g.Title) == "" {
		return nil, errors.New("empty title")
	}
	if len(g.Lessons) == 0 {
		return nil, errors.New("no lessons")
	}

	lessons := make([]types.Lesson, 0, len(g.Lessons))
	for _, l := range g.Lessons {
		lessons = append(lessons, types.Lesson{
			Title:       l.Title,
			Description: l.Description,
			Goals:       nonNil(l.Goals),
			Activities:  nonNil(l.Activities),
		})
	}
	return &types.CurriculumContent{
		Title:       g.Title,
		Overview:    g.Overview,
		Objectives:  nonNil(g.Objectives),
		KeyConcepts: nonNil(g.KeyConcepts),
		Lessons:     lessons,
		Assessment:  g.Assessment,
		Resources:   g.Resources,
	}, nil
}

func isCurriculumKey(k string) bool {
	for _, want := range curriculumKeys {
		if k == want {
			return true
		}
	}
	return false
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// RenderCurriculum turns stored content into the plain text handed to the revision prompt.
func RenderCurriculum(c *types.CurriculumContent) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", c.Title)
	if c.Overview != "" {
		fmt.Fprintf(&b, "Overview: %s\n", c.Overview)
	}
	writeList(&b, "Objectives", c.Objectives)
	writeList(&b, "Key concepts", c.KeyConcepts)
	b.WriteString("Lessons:\n")
	for i, l := range c.Lessons {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, l.Title)
		if l.Description != "" {
			fmt.Fprintf(&b, "     %s\n", l.Description)
		}
		for _, g := range l.Goals {
			fmt.Fprintf(&b, "     Goal: %s\n", g)
		}
		for _, a := range l.Activities {
			fmt.Fprintf(&b, "     Activity: %s\n", a)
		}
	}
	if c.Assessment != "" {
		fmt.Fprintf(&b, "Assessment: %s\n", c.Assessment)
	}
	if c.Resources != "" {
		fmt.Fprintf(&b, "Resources: %s\n", c.Resources)
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}
