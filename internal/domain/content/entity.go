// Package content models the static Course → Lesson → Step hierarchy.
// The tree is authored externally and is read-only to this service: nothing
// here mutates content, it only navigates and counts it.
package content

import (
	"sort"
	"time"
)

// Course is the root of the content hierarchy.
type Course struct {
	ID          string
	Slug        string
	Title       string
	Description string
	Lessons     []Lesson
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Lesson belongs to exactly one course and holds an ordered position within it.
type Lesson struct {
	ID       string
	CourseID string
	Title    string
	Position int
	Steps    []Step
}

// Step is the leaf of the hierarchy. Completion facts reference steps.
type Step struct {
	ID       string
	LessonID string
	Title    string
	Position int
}

// TotalSteps returns the number of steps across all lessons.
func (c *Course) TotalSteps() int {
	total := 0
	for i := range c.Lessons {
		total += len(c.Lessons[i].Steps)
	}
	return total
}

// TotalLessons returns the number of lessons in the course.
func (c *Course) TotalLessons() int {
	return len(c.Lessons)
}

// LessonByID returns the lesson with the given ID, if present.
func (c *Course) LessonByID(lessonID string) (*Lesson, bool) {
	for i := range c.Lessons {
		if c.Lessons[i].ID == lessonID {
			return &c.Lessons[i], true
		}
	}
	return nil, false
}

// PrecedingLesson returns the lesson immediately before the given lesson in
// course order. The second return is false for the first lesson or an unknown
// lesson ID. The submission gating rule is computed from this at read time.
func (c *Course) PrecedingLesson(lessonID string) (*Lesson, bool) {
	ordered := c.OrderedLessons()
	for i := range ordered {
		if ordered[i].ID == lessonID {
			if i == 0 {
				return nil, false
			}
			return &ordered[i-1], true
		}
	}
	return nil, false
}

// OrderedLessons returns the lessons sorted by position.
func (c *Course) OrderedLessons() []Lesson {
	ordered := make([]Lesson, len(c.Lessons))
	copy(ordered, c.Lessons)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

// StepIDs returns the IDs of all steps in the lesson, in position order.
func (l *Lesson) StepIDs() []string {
	ordered := make([]Step, len(l.Steps))
	copy(ordered, l.Steps)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	ids := make([]string, len(ordered))
	for i, s := range ordered {
		ids[i] = s.ID
	}
	return ids
}

// StepRef locates a step within the hierarchy. Resolved once per write so the
// ledger and the cache invalidation target the same lesson and course.
type StepRef struct {
	StepID   string
	LessonID string
	CourseID string
}
