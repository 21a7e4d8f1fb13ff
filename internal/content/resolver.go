package content

// PreviewLessonsPerSection is how many lessons a section lists to callers
// without access.
const PreviewLessonsPerSection = 2

// LessonView is the access-shaped lesson record. For locked lessons the
// content reference is omitted entirely, not merely hidden by the UI.
type LessonView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Kind            Kind   `json:"kind"`
	ContentRef      string `json:"content_ref,omitempty"`
	RequiredSeconds int    `json:"required_seconds,omitempty"`
	Completed       bool   `json:"completed"`
	Locked          bool   `json:"locked"`
}

type SectionView struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Lessons      []LessonView `json:"lessons"`
	TotalLessons int          `json:"total_lessons"`
}

// CourseView is what a caller receives for a course.
type CourseView struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Price    int64         `json:"price"`
	Access   bool          `json:"access"`
	Sections []SectionView `json:"sections"`
}

// Resolve shapes the lesson tree for one caller. completed reports the
// caller's completion flag per lesson and may be nil for anonymous callers.
// Resolve performs no mutation.
func Resolve(course Course, hasAccess bool, completed func(lessonID string) bool) CourseView {
	view := CourseView{
		ID:       course.ID,
		Title:    course.Title,
		Price:    course.Price,
		Access:   hasAccess,
		Sections: make([]SectionView, 0, len(course.Sections)),
	}
	for _, s := range course.Sections {
		sv := SectionView{ID: s.ID, Title: s.Title, TotalLessons: len(s.Lessons)}
		for i, l := range s.Lessons {
			if hasAccess {
				done := completed != nil && completed(l.ID)
				sv.Lessons = append(sv.Lessons, LessonView{
					ID:              l.ID,
					Title:           l.Title,
					Kind:            l.Kind,
					ContentRef:      l.ContentRef,
					RequiredSeconds: l.RequiredSeconds,
					Completed:       done,
				})
				continue
			}
			if i >= PreviewLessonsPerSection {
				break
			}
			// Redacted preview: title only, never the content reference.
			sv.Lessons = append(sv.Lessons, LessonView{
				ID:     l.ID,
				Title:  l.Title,
				Kind:   l.Kind,
				Locked: true,
			})
		}
		view.Sections = append(view.Sections, sv)
	}
	return view
}
