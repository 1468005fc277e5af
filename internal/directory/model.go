// Package directory reads recipients and due training-platform records from
// MongoDB. It is read-only: users, certificates, trainings and mentorships
// are owned by the platform's CRUD services.
package directory

import (
	"errors"
	"time"

	"xixu.io/notifier/internal/notification"
)

// ErrNotFound is returned when a requested recipient does not exist.
var ErrNotFound = errors.New("recipient not found")

// Record statuses and roles used in queries.
const (
	StatusActive         = "active"
	RoleManager          = "manager"
	ParticipantCompleted = "completed"
)

// Certificate is an active certificate with its holder resolved.
type Certificate struct {
	ID         string
	Name       string
	Issuer     string
	ExpiryDate time.Time
	Holder     notification.Recipient
}

// Training is an active training with its participants resolved.
type Training struct {
	ID           string
	Title        string
	StartDate    time.Time
	Sessions     []TrainingSession
	Participants []notification.Recipient
}

// TrainingSession is one scheduled session of a training.
type TrainingSession struct {
	Date        time.Time `bson:"date"`
	StartTime   string    `bson:"startTime"`
	Location    string    `bson:"location"`
	MeetingLink string    `bson:"meetingLink"`
}

// Mentorship is an active mentor/mentee pairing with both sides resolved.
type Mentorship struct {
	ID       string
	Mentor   notification.Recipient
	Mentee   notification.Recipient
	Sessions []MentorshipSession
}

// MentorshipSession is one scheduled mentorship meeting.
type MentorshipSession struct {
	Date        time.Time `bson:"date"`
	Time        string    `bson:"time"`
	Topic       string    `bson:"topic"`
	MeetingLink string    `bson:"meetingLink"`
}

// SessionBetween returns the first session dated within [from, to].
func (m Mentorship) SessionBetween(from, to time.Time) (MentorshipSession, bool) {
	for _, s := range m.Sessions {
		if !s.Date.Before(from) && !s.Date.After(to) {
			return s, true
		}
	}
	return MentorshipSession{}, false
}

// Manager is an active manager and the department they report on.
type Manager struct {
	notification.Recipient
	Department string
}

// DepartmentStats summarizes a department's training activity over a period.
type DepartmentStats struct {
	Department           string  `json:"department"`
	TotalTrainings       int     `json:"total_trainings"`
	CompletedTrainings   int     `json:"completed_trainings"`
	AverageRating        float64 `json:"average_rating"`
	ActiveParticipants   int     `json:"active_participants"`
	ExpiringCertificates int     `json:"expiring_certificates"`
}
