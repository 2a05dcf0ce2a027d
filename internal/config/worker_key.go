package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	GradeAttemptsQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	GradeAttemptsQueue:     "grade_attempts_queue",
}
