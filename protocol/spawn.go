package protocol

// SpawnRequest asks the spawn service to run an executable payload. Any
// capabilities attached after the reply capability become the new unit's
// spawn arguments.
type SpawnRequest struct {
	Executable ContentID `json:"executable"`
	Entrypoint string    `json:"entrypoint,omitempty"`
	Name       string    `json:"name,omitempty"`
}

// SpawnResponse acknowledges a spawn. On success the first attached
// capability addresses the new unit.
type SpawnResponse struct {
	Error string `json:"error,omitempty"`
}
