package testutil

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/sikshyahq/sikshya/core"
	"github.com/sikshyahq/sikshya/core/course"
	"github.com/sikshyahq/sikshya/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	title, subject string,
	price float64,
) course.Course {
	tstamp := time.Now().UTC()
	crs := course.Course{
		Title:       title,
		Subject:     subject,
		Price:       price,
		IsPublished: true,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// NewLogger returns a core.Logger that writes to stderr and never exits.
func NewLogger() core.Logger {
	return &testLogger{std: log.New(os.Stderr, "TEST : ", log.LstdFlags|log.Lshortfile)}
}

type testLogger struct {
	std      *log.Logger
	disabled bool
}

var _ core.Logger = (*testLogger)(nil)

func (l *testLogger) Enable(enabled bool) { l.disabled = !enabled }

func (l *testLogger) print(msg string, args []interface{}) {
	if l.disabled {
		return
	}
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l *testLogger) Debug(msg string, args ...interface{}) { l.print(msg, args) }
func (l *testLogger) Info(msg string, args ...interface{})  { l.print(msg, args) }
func (l *testLogger) Warn(msg string, args ...interface{})  { l.print(msg, args) }
func (l *testLogger) Error(msg string, args ...interface{}) { l.print(msg, args) }
func (l *testLogger) Fatal(msg string, args ...interface{}) { l.print(msg, args) }
