package domain

// SubjectType differentiates end users from moderators in tokens and chat.
type SubjectType string

const (
	SubjectTypeUser      SubjectType = "USER"
	SubjectTypeModerator SubjectType = "MODERATOR"
)
