package service

import "errors"

var (
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken indicates an account already uses the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound indicates the referenced student does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTopicNotFound indicates a topic could not be found or is not visible to the actor.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrTopicTitleTaken indicates another topic already uses the title.
	ErrTopicTitleTaken = errors.New("topic title already exists")
	// ErrTopicNotPublished indicates the topic is still a draft.
	ErrTopicNotPublished = errors.New("topic is not published")
	// ErrTopicClosed indicates the topic deadline has passed.
	ErrTopicClosed = errors.New("topic deadline has passed")
	// ErrInvalidDeadline indicates the deadline could not be parsed.
	ErrInvalidDeadline = errors.New("deadline must be an RFC3339 timestamp")

	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrStudentRequired indicates staff uploaded a submission without naming the student.
	ErrStudentRequired = errors.New("student is required")

	// ErrFileRequired indicates the multipart request carried no file.
	ErrFileRequired = errors.New("file is required")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrStoredFileNotFound indicates the requested upload does not exist.
	ErrStoredFileNotFound = errors.New("file not found")

	// ErrCorrectionNotFound indicates a correction could not be found.
	ErrCorrectionNotFound = errors.New("correction not found")
	// ErrDuplicateCorrection indicates the submission already has an active correction.
	ErrDuplicateCorrection = errors.New("submission already graded")
	// ErrCorrectionConflict indicates the correction was superseded by a concurrent request.
	ErrCorrectionConflict = errors.New("correction was changed by another request")
	// ErrEmptyFeedback indicates the feedback is empty once sanitized.
	ErrEmptyFeedback = errors.New("feedback must not be empty")
)
