package domain

// SubjectType differentiates citizen vs moderator tokens.
type SubjectType string

const (
	SubjectTypeCitizen   SubjectType = "CITIZEN"
	SubjectTypeModerator SubjectType = "MODERATOR"
)
