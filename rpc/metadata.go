package rpc

// Metadata keys of the vgi_rpc wire protocol. They appear as custom
// metadata on Arrow IPC record batch messages.
const (
	MetaMethod         = "vgi_rpc.method"
	MetaRequestVersion = "vgi_rpc.request_version"
	MetaRequestID      = "vgi_rpc.request_id"
	MetaLogLevel       = "vgi_rpc.log_level"
	MetaLogMessage     = "vgi_rpc.log_message"
	MetaLogExtra       = "vgi_rpc.log_extra"
	MetaServerID       = "vgi_rpc.server_id"

	ProtocolVersion = "1"

	// DescribeMethod is the built-in introspection method.
	DescribeMethod = "__describe__"
)
