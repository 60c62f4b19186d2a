package model

type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
	SessionStatusFlagged SessionStatus = "flagged"
)

type SessionType string

const (
	SessionTypeText  SessionType = "text"
	SessionTypeVideo SessionType = "video"
)

type JoinStatus string

const (
	JoinStatusQueued  JoinStatus = "queued"
	JoinStatusMatched JoinStatus = "matched"
)

type ReportCategory string

const (
	ReportCategoryNudity     ReportCategory = "nudity"
	ReportCategoryHarassment ReportCategory = "harassment"
	ReportCategorySpam       ReportCategory = "spam"
	ReportCategoryUnderage   ReportCategory = "underage"
	ReportCategoryOther      ReportCategory = "other"
)
