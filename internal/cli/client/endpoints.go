package client

const (
	endpointChat   = "/api/chat"
	endpointInvoke = "/api/chat/invoke"
	endpointThread = "/api/chat/threads/%s" // GET, DELETE
	endpointHealth = "/health"
)
