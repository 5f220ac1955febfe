package protocol

// RegistryKind selects the registry operation.
type RegistryKind string

const (
	RegistryGet      RegistryKind = "get"
	RegistryRegister RegistryKind = "register"
	RegistryList     RegistryKind = "list"
)

// RegistryRequest is sent to a registry unit. Register carries the
// capability to register right after the reply capability.
type RegistryRequest struct {
	Kind RegistryKind `json:"kind"`
	Name string       `json:"name,omitempty"`
}

// RegistryResponse answers a RegistryRequest. A found Get carries the
// capability as the only attachment.
type RegistryResponse struct {
	Kind        RegistryKind `json:"kind"`
	Found       bool         `json:"found,omitempty"`
	Names       []string     `json:"names,omitempty"`
	Unsupported bool         `json:"unsupported,omitempty"`
}

// RegistryBootstrap is the first message a registry unit receives. It
// carries exactly len(Names) capabilities, capability i belonging to name i.
// With Ack set one more capability follows; it receives a RegistryReady.
type RegistryBootstrap struct {
	Names []string `json:"names"`
	Ack   bool     `json:"ack,omitempty"`
}

// RegistryReady acknowledges a bootstrap.
type RegistryReady struct {
	Error string `json:"error,omitempty"`
}
