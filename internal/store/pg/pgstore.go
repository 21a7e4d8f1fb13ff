// Package pg persists the platform state in PostgreSQL. One Store serves
// every domain interface (users, catalog, entitlements, completions, forum)
// so the API can run on a single pool.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/content"
	"learnhub.org/internal/entitlement"
	"learnhub.org/internal/forum"
	"learnhub.org/internal/ids"
	"learnhub.org/internal/progress"
	"learnhub.org/internal/session"
)

const pgErrUniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var (
	_ auth.UserStore     = (*Store)(nil)
	_ entitlement.Ledger = (*Store)(nil)
	_ progress.Store     = (*Store)(nil)
	_ forum.Store        = (*Store)(nil)
	_ content.Catalog    = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool (tests use sqlmock through this).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

// --- auth.UserStore ---

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, name, email, password_hash, role, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Status, u.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, name, email, password_hash, role, status, created_at
		from users where id=$1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, name, email, password_hash, role, status, created_at
		from users where email=$1
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Status, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = session.ParseRole(role)
	return &u, nil
}

// --- entitlement.Ledger ---

func (s *Store) HasAccess(ctx context.Context, identity session.Identity, courseID string) (bool, error) {
	if identity.IsZero() {
		return false, nil
	}
	if courseID == "" {
		return false, entitlement.ErrInvalidInput
	}
	if identity.Role == session.RoleAdmin {
		return true, nil
	}

	var dummy int
	err := s.db.QueryRowContext(ctx, `
		select 1 where exists (
			select 1 from entitlements
			where identity_id=$1 and course_id=$2 and status='active'
		) or exists (
			select 1 from assignments
			where teacher_id=$1 and course_id=$2
		)
	`, identity.ID, courseID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Purchase(ctx context.Context, identity session.Identity, courseID string, price int64) (entitlement.Entitlement, bool, error) {
	if identity.IsZero() {
		return entitlement.Entitlement{}, false, entitlement.ErrNotAuthenticated
	}
	if courseID == "" {
		return entitlement.Entitlement{}, false, entitlement.ErrInvalidInput
	}
	if price < 0 {
		return entitlement.Entitlement{}, false, entitlement.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return entitlement.Entitlement{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotency: an active record wins over a new insert.
	var existing entitlement.Entitlement
	var status string
	err = tx.QueryRowContext(ctx, `
		select id, identity_id, course_id, acquired_at, price_paid, status
		from entitlements
		where identity_id=$1 and course_id=$2 and status='active'
	`, identity.ID, courseID).Scan(
		&existing.ID, &existing.IdentityID, &existing.CourseID,
		&existing.AcquiredAt, &existing.PricePaid, &status,
	)
	if err == nil {
		existing.Status = entitlement.Status(status)
		return existing, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return entitlement.Entitlement{}, false, err
	}

	ent := entitlement.Entitlement{
		ID:         ids.New(),
		IdentityID: identity.ID,
		CourseID:   courseID,
		AcquiredAt: time.Now().UTC(),
		PricePaid:  price,
		Status:     entitlement.StatusActive,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into entitlements(id, identity_id, course_id, acquired_at, price_paid, status)
		values ($1,$2,$3,$4,$5,$6)
	`, ent.ID, ent.IdentityID, ent.CourseID, ent.AcquiredAt, ent.PricePaid, string(ent.Status)); err != nil {
		return entitlement.Entitlement{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return entitlement.Entitlement{}, false, err
	}
	return ent, false, nil
}

func (s *Store) Entitlements(ctx context.Context, identityID string) ([]entitlement.Entitlement, error) {
	if identityID == "" {
		return nil, entitlement.ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, identity_id, course_id, acquired_at, price_paid, status
		from entitlements
		where identity_id=$1
		order by acquired_at asc
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []entitlement.Entitlement
	for rows.Next() {
		var ent entitlement.Entitlement
		var status string
		if err := rows.Scan(&ent.ID, &ent.IdentityID, &ent.CourseID, &ent.AcquiredAt, &ent.PricePaid, &status); err != nil {
			return nil, err
		}
		ent.Status = entitlement.Status(status)
		res = append(res, ent)
	}
	return res, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, identityID, courseID string, status entitlement.Status) error {
	switch status {
	case entitlement.StatusActive, entitlement.StatusExpired, entitlement.StatusRefunded:
	default:
		return entitlement.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		update entitlements set status=$3
		where identity_id=$1 and course_id=$2 and status='active'
	`, identityID, courseID, string(status))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entitlement.ErrNotFound
	}
	return nil
}

func (s *Store) Assign(ctx context.Context, a entitlement.Assignment) error {
	if a.TeacherID == "" || a.CourseID == "" {
		return entitlement.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into assignments(teacher_id, course_id, role)
		values ($1,$2,$3)
		on conflict (teacher_id, course_id) do update set role=excluded.role
	`, a.TeacherID, a.CourseID, string(a.Role))
	return err
}

func (s *Store) Assignments(ctx context.Context, teacherID string) ([]entitlement.Assignment, error) {
	if teacherID == "" {
		return nil, entitlement.ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `
		select teacher_id, course_id, role
		from assignments where teacher_id=$1
		order by course_id asc
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []entitlement.Assignment
	for rows.Next() {
		var a entitlement.Assignment
		var role string
		if err := rows.Scan(&a.TeacherID, &a.CourseID, &role); err != nil {
			return nil, err
		}
		a.Role = entitlement.AssignmentRole(role)
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- progress.Store ---

func (s *Store) SetCompleted(ctx context.Context, identityID, lessonID string, at time.Time) error {
	if identityID == "" || lessonID == "" {
		return progress.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into completions(identity_id, lesson_id, completed_at)
		values ($1,$2,$3)
		on conflict (identity_id, lesson_id) do update set completed_at=excluded.completed_at
	`, identityID, lessonID, at)
	return err
}

func (s *Store) ClearCompleted(ctx context.Context, identityID, lessonID string) error {
	if identityID == "" || lessonID == "" {
		return progress.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		delete from completions where identity_id=$1 and lesson_id=$2
	`, identityID, lessonID)
	return err
}

func (s *Store) IsCompleted(ctx context.Context, identityID, lessonID string) (bool, error) {
	var dummy int
	err := s.db.QueryRowContext(ctx, `
		select 1 from completions where identity_id=$1 and lesson_id=$2
	`, identityID, lessonID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) CompletedSet(ctx context.Context, identityID string, lessonIDs []string) (map[string]bool, error) {
	set := make(map[string]bool, len(lessonIDs))
	if identityID == "" || len(lessonIDs) == 0 {
		return set, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select lesson_id from completions
		where identity_id=$1 and lesson_id = any($2)
	`, identityID, lessonIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}
	return set, rows.Err()
}

// --- forum.Store ---

func (s *Store) ListThreads(ctx context.Context, lessonID string) ([]forum.Thread, error) {
	if lessonID == "" {
		return nil, forum.ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, lesson_id, author_id, topic, created_at
		from threads where lesson_id=$1
		order by created_at asc, id asc
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []forum.Thread
	for rows.Next() {
		var t forum.Thread
		if err := rows.Scan(&t.ID, &t.LessonID, &t.AuthorID, &t.Topic, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *Store) CreateThread(ctx context.Context, lessonID, authorID, topic string) (forum.Thread, error) {
	if lessonID == "" || topic == "" {
		return forum.Thread{}, forum.ErrInvalidInput
	}
	t := forum.Thread{
		ID:        ids.New(),
		LessonID:  lessonID,
		AuthorID:  authorID,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		insert into threads(id, lesson_id, author_id, topic, created_at)
		values ($1,$2,$3,$4,$5)
	`, t.ID, t.LessonID, t.AuthorID, t.Topic, t.CreatedAt)
	if err != nil {
		return forum.Thread{}, err
	}
	return t, nil
}

func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	// Messages go with the thread via on delete cascade.
	res, err := s.db.ExecContext(ctx, `delete from threads where id=$1`, threadID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return forum.ErrNotFound
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, threadID string) ([]forum.Message, error) {
	var dummy int
	err := s.db.QueryRowContext(ctx, `select 1 from threads where id=$1`, threadID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, thread_id, author_id, body, created_at
		from messages where thread_id=$1
		order by created_at asc, id asc
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []forum.Message
	for rows.Next() {
		var m forum.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, threadID, authorID, body string) (forum.Message, error) {
	if threadID == "" || body == "" {
		return forum.Message{}, forum.ErrInvalidInput
	}
	var dummy int
	err := s.db.QueryRowContext(ctx, `select 1 from threads where id=$1`, threadID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return forum.Message{}, forum.ErrNotFound
	}
	if err != nil {
		return forum.Message{}, err
	}

	m := forum.Message{
		ID:        ids.New(),
		ThreadID:  threadID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into messages(id, thread_id, author_id, body, created_at)
		values ($1,$2,$3,$4,$5)
	`, m.ID, m.ThreadID, m.AuthorID, m.Body, m.CreatedAt); err != nil {
		return forum.Message{}, err
	}
	return m, nil
}

// --- content.Catalog ---

func (s *Store) Course(ctx context.Context, id string) (content.Course, error) {
	var c content.Course
	err := s.db.QueryRowContext(ctx, `
		select id, title, price from courses where id=$1
	`, id).Scan(&c.ID, &c.Title, &c.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Course{}, content.ErrNotFound
	}
	if err != nil {
		return content.Course{}, err
	}
	c.Sections, err = s.loadSections(ctx, c.ID)
	if err != nil {
		return content.Course{}, err
	}
	return c, nil
}

func (s *Store) CourseByLesson(ctx context.Context, lessonID string) (content.Course, error) {
	var courseID string
	err := s.db.QueryRowContext(ctx, `
		select course_id from lessons where id=$1
	`, lessonID).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Course{}, content.ErrNotFound
	}
	if err != nil {
		return content.Course{}, err
	}
	return s.Course(ctx, courseID)
}

func (s *Store) loadSections(ctx context.Context, courseID string) ([]content.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, title from sections
		where course_id=$1
		order by position asc
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []content.Section
	index := map[string]int{}
	for rows.Next() {
		var sec content.Section
		if err := rows.Scan(&sec.ID, &sec.Title); err != nil {
			return nil, err
		}
		index[sec.ID] = len(sections)
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lessonRows, err := s.db.QueryContext(ctx, `
		select l.id, l.section_id, l.title, l.kind, l.content_ref, l.required_seconds
		from lessons l
		join sections s on s.id = l.section_id
		where s.course_id=$1
		order by s.position asc, l.position asc
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer lessonRows.Close()

	for lessonRows.Next() {
		var les content.Lesson
		var kind string
		if err := lessonRows.Scan(&les.ID, &les.SectionID, &les.Title, &kind, &les.ContentRef, &les.RequiredSeconds); err != nil {
			return nil, err
		}
		les.Kind = content.Kind(kind)
		if i, ok := index[les.SectionID]; ok {
			sections[i].Lessons = append(sections[i].Lessons, les)
		}
	}
	return sections, lessonRows.Err()
}
