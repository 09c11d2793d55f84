package util

import "errors"

// 校验错误
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidQuestionType = errors.New("invalid question type")
	ErrOptionsRequired     = errors.New("multiple choice questions must have options")
	ErrTooFewOptions       = errors.New("at least two options are required")
	ErrAnswerNotInOptions  = errors.New("correct answer must be one of the options")
	ErrInvalidTrueFalse    = errors.New("correct answer must be 'true' or 'false'")
	ErrInvalidTotalMarks   = errors.New("total marks must be positive")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrEmptyQuiz           = errors.New("quiz has no questions")
)

// 权限错误
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotEnrolled      = errors.New("not enrolled in this course")
)

// 资源不存在
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrCourseNotFound       = errors.New("course not found")
	ErrLessonNotFound       = errors.New("lesson not found")
	ErrQuizNotFound         = errors.New("quiz not found")
	ErrQuestionNotFound     = errors.New("question not found or not part of this quiz")
	ErrStudentNotFound      = errors.New("student not found")
	ErrEnrollmentNotFound   = errors.New("enrollment not found")
	ErrCertificateNotFound  = errors.New("certificate not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// 冲突
var (
	ErrEmailRegistered   = errors.New("email already registered")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrAlreadyEnrolled   = errors.New("already enrolled in this course")
	ErrCertificateExists = errors.New("certificate already exists for this student in this course")
)

// 状态错误
var (
	ErrQuizClosed         = errors.New("quiz is closed for submissions")
	ErrCourseIncomplete   = errors.New("student has not completed all lessons")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidQuestionType) ||
		errors.Is(err, ErrOptionsRequired) ||
		errors.Is(err, ErrTooFewOptions) ||
		errors.Is(err, ErrAnswerNotInOptions) ||
		errors.Is(err, ErrInvalidTrueFalse) ||
		errors.Is(err, ErrInvalidTotalMarks) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyQuiz) ||
		errors.Is(err, ErrCourseIncomplete)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound) ||
		errors.Is(err, ErrCertificateNotFound) ||
		errors.Is(err, ErrNotificationNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrEmailRegistered) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrCertificateExists) ||
		errors.Is(err, ErrQuizClosed)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotEnrolled)
}
