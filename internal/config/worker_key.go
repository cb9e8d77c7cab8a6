package config

type WorkerKeyStruct struct {
	PersistDraftsQueue          string
	PersistIntegrityEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistDraftsQueue:          "persist_drafts_queue",
	PersistIntegrityEventsQueue: "persist_integrity_events_queue",
}
