package service

import "github.com/noah-isme/autoeval-api/internal/models"

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// IsTeacher reports whether the actor is a teacher.
func (a Actor) IsTeacher() bool { return a.Role == models.RoleTeacher }

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool { return a.Role == models.RoleStudent }

// IsStaff reports whether the actor is a teacher or an administrator.
func (a Actor) IsStaff() bool { return a.IsTeacher() || a.IsAdmin() }

// CanManageTopic reports whether the actor owns the topic or is an administrator.
func (a Actor) CanManageTopic(topic models.Topic) bool {
	if a.ID == 0 {
		return false
	}
	return a.IsAdmin() || (a.IsTeacher() && topic.TeacherID == a.ID)
}

// CanViewTopic reports whether the topic is visible to the actor. Drafts are only
// visible to their owner and administrators.
func (a Actor) CanViewTopic(topic models.Topic) bool {
	return topic.IsPublished() || a.CanManageTopic(topic)
}

// CanViewSubmission reports whether the actor is the author, the topic teacher or an
// administrator. The submission's Topic must be loaded.
func (a Actor) CanViewSubmission(submission models.Submission) bool {
	if a.ID == 0 {
		return false
	}
	if a.IsStudent() {
		return submission.StudentID == a.ID
	}
	return a.CanManageTopic(submission.Topic)
}
