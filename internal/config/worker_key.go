package config

type WorkerKeyStruct struct {
	PersistAnswersQueue     string
	PersistCompletionsQueue string
	DeadCompletionsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:     "persist_answers_queue",
	PersistCompletionsQueue: "persist_completions_queue",
	DeadCompletionsQueue:    "dead_completions_queue",
}
